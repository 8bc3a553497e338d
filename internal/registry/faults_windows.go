//go:build windows

package registry

// Windows has no SIGBUS and the Go runtime does not forward hardware
// access violations through os/signal, so there is no portable second
// line of defense to install here: Guard (faults.go) is the only interception path on this
// platform. A stray access that escapes Guard crashes the process,
// which is at least as strict as the documented fallback behavior.
func installFaultHandler(_ *Registry) {}
