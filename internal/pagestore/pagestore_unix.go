//go:build linux || darwin || freebsd || openbsd || netbsd

package pagestore

import (
	"golang.org/x/sys/unix"
)

func querySystemPageSize() int {
	return unix.Getpagesize()
}

func protToUnix(p Protection) int {
	switch p {
	case Read:
		return unix.PROT_READ
	case Write:
		return unix.PROT_READ | unix.PROT_WRITE
	default:
		return unix.PROT_NONE
	}
}

func reservePage(size int, protection Protection) (uintptr, []byte, error) {
	data, err := unix.Mmap(-1, 0, size, protToUnix(protection), unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, nil, err
	}

	return sliceAddr(data), data, nil
}

func protectPage(data []byte, protection Protection) error {
	return unix.Mprotect(data, protToUnix(protection))
}

func releasePage(data []byte) error {
	return unix.Munmap(data)
}
