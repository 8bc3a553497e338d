package registry

import (
	"runtime/debug"

	"github.com/tlsregion/tlsregion/internal/thread"
)

// terminateCurrentThread is the fault interceptor's "terminate the
// faulting thread" primitive. It never returns.
func terminateCurrentThread() {
	thread.Terminate()
}

// faultAddr is the interface Go's runtime error implements for a
// recovered invalid-memory-reference panic produced under
// debug.SetPanicOnFault(true).
type faultAddr interface {
	Addr() uintptr
}

// isManaged reports whether addr falls within any live region's
// pages, by rounding down to the containing page base and comparing
// against every slot of every entry. It takes the read lock so the
// scan is safe against concurrent mutation of the registry.
func (r *Registry) isManaged(addr uintptr) bool {
	pageSize := uintptr(r.store.PageSize())
	base := addr &^ (pageSize - 1)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.entries {
		for _, a := range reg.PageAddrs() {
			if a == base {
				return true
			}
		}
	}

	return false
}

// Guard runs fn with Go's fault-on-invalid-memory-access conversion
// enabled for the calling goroutine, and applies the fault
// interceptor's classification to any resulting fault: a faulting
// address that lands on a page belonging to some live region
// terminates the calling thread (Terminate never returns); any other
// fault is re-raised unchanged, the idiomatic analogue of
// reinstating default handlers and re-raising the signal.
//
// Guard exists because Go, unlike sigaction(SA_SIGINFO, ...), only
// delivers a faulting address to the same goroutine that triggered
// the fault (via runtime/debug.SetPanicOnFault), not to an
// independent process-wide handler. Any code that dereferences a raw
// pointer into a region it does not own (exactly the "stray
// access" scenario the fault interceptor exists to catch)
// has to run inside Guard for that interception to take effect.
func Guard[T any](fn func() (T, error)) (T, error) {
	return guardOn(Default(), fn)
}

// guardOn is Guard bound to an explicit Registry, so tests can
// exercise the interception path against a private table instead of
// the process-wide one.
func guardOn[T any](reg *Registry, fn func() (T, error)) (result T, err error) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if fa, ok := r.(faultAddr); ok && reg.isManaged(fa.Addr()) {
			terminateCurrentThread()
		}

		panic(r)
	}()

	result, err = fn()

	return result, err
}
