//go:build linux

package thread

import "golang.org/x/sys/unix"

// On Linux, unix.Gettid reports the real kernel thread id of the
// calling OS thread, the direct analogue of the source's
// pthread_self() (Linux's pthread_t is in practice the kernel tid).
func currentThreadID() ID {
	return ID(unix.Gettid())
}
