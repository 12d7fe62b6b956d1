package tun

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl issues the TUNSETIFF ioctl with a pointer to a raw struct ifreq. Confined
// to its own file since it's the one place this package touches unsafe.Pointer.
func ioctl(fd uintptr, req uint, arg *byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(arg)))
	if errno != 0 {
		return errno
	}
	return nil
}
