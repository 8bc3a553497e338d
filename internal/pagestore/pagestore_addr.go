package pagestore

import "unsafe"

// sliceAddr returns the base address of a page's backing slice. Used
// only to compute the stable identity of a mapping for the fault
// interceptor's page-base comparison; the slice itself is never
// reallocated by Go (it is backed by an OS mapping, not the Go heap),
// so this address is valid for the page's entire lifetime.
func sliceAddr(data []byte) uintptr {
	if len(data) == 0 {
		return 0
	}

	return uintptr(unsafe.Pointer(&data[0]))
}
