// Package thread models the "current thread identity" and "terminate
// this thread" primitives that tlsregion consumes as an opaque
// collaborator. The core never creates, schedules, or joins threads
// on its own behalf; Spawn exists only so tests and the demonstration
// driver have a symmetric way to stand up a logical thread that
// carries a stable thread id (see ID) for the lifetime of its
// work, matching the pthread_self()/pthread_exit() pair the system
// this package replaces relied on.
package thread

import "runtime"

// ID is a thread identifier: the kernel thread id on Linux and
// Windows, and the goroutine id on other platforms (see
// thread_fallback.go). It is stable for as long as the owning
// goroutine keeps its OS thread locked.
type ID uint64

// Spawn starts fn on a new goroutine pinned to its own OS thread for
// its entire lifetime and passes that thread's ID to fn.
// Spawn returns immediately; call (<-done) on the returned channel to
// wait for fn to return or to call Terminate.
func Spawn(fn func(id ID)) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		runtime.LockOSThread()
		// Intentionally never unlocked on the success path either:
		// a thread's OS resources are reclaimed when its goroutine
		// exits, whether via a normal return or Terminate's Goexit.
		fn(Current())
	}()

	return done
}

// Current returns the calling goroutine's thread ID. It is
// only meaningful for a goroutine that has called
// runtime.LockOSThread (directly, or via Spawn); otherwise the Go
// scheduler is free to move the goroutine between OS threads between
// calls, and the returned id would be a snapshot, not an identity.
func Current() ID {
	return currentThreadID()
}

// Terminate ends the calling thread. It must be called from the
// goroutine whose identity is being terminated, and that goroutine
// must have locked its OS thread (directly or via Spawn): per the Go
// runtime's documented behavior, a goroutine that exits via Goexit
// without first unlocking its OS thread takes that thread down with
// it, while every other thread (and the process) continues running.
// Terminate never returns.
func Terminate() {
	runtime.Goexit()
}
