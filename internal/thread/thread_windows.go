//go:build windows

package thread

import "golang.org/x/sys/windows"

func currentThreadID() ID {
	return ID(windows.GetCurrentThreadId())
}
