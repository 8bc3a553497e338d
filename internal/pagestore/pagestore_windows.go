//go:build windows

package pagestore

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func querySystemPageSize() int {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)

	return int(info.PageSize)
}

func protectFlag(p Protection) uint32 {
	switch p {
	case Read:
		return windows.PAGE_READONLY
	case Write:
		return windows.PAGE_READWRITE
	default:
		return windows.PAGE_NOACCESS
	}
}

func reservePage(size int, protection Protection) (uintptr, []byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, protectFlag(protection))
	if err != nil {
		return 0, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	return addr, data, nil
}

func protectPage(data []byte, protection Protection) error {
	var old uint32

	return windows.VirtualProtect(sliceAddr(data), uintptr(len(data)), protectFlag(protection), &old)
}

func releasePage(data []byte) error {
	return windows.VirtualFree(sliceAddr(data), 0, windows.MEM_RELEASE)
}
