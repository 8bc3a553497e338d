//go:build linux || darwin || freebsd || openbsd || netbsd

package registry

import (
	"os"
	"os/signal"
	"syscall"
)

// installFaultHandler installs a second line of defense: a
// process-wide signal.Notify for SIGSEGV and SIGBUS. The Go runtime
// turns a SIGSEGV or SIGBUS raised by the program's own execution into
// a run-time panic and does not deliver it to this channel, so what
// arrives here is such a signal sent to the process from outside (for
// instance with kill). Unlike Guard, the handler goroutine gets no
// faulting address, so it can never classify the signal as one of
// ours: every delivery here reinstates default handling for both
// signal kinds and re-raises, the direct analogue of
// signal(SIG, SIG_DFL); raise(sig).
func installFaultHandler(_ *Registry) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGSEGV, syscall.SIGBUS)

	go func() {
		for sig := range sigc {
			signal.Reset(syscall.SIGSEGV, syscall.SIGBUS)
			_ = syscall.Kill(os.Getpid(), sig.(syscall.Signal))
		}
	}()
}
