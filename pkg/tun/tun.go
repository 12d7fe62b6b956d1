// Package tun provides the minimal Linux TUN device collaborator the core depends
// on as an io.ReadWriteCloser: packet-mode allocation only, no packet logic. The
// allocation mechanism itself (which protocol/ABI a TUN device speaks) is the one
// piece of external platform detail the core subsystem contract treats as given;
// this package supplies a concrete implementation so cmd/tfsd has a real device to
// open.
package tun

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	devNetTun = "/dev/net/tun"

	// ifReqSize is the size of the kernel's struct ifreq, used by the TUNSETIFF
	// ioctl: a 16-byte interface name field followed by a union whose first
	// member (the flags we set) is a 16-bit short.
	ifReqSize = 40
)

// Device is an open Linux TUN device in packet mode (IFF_TUN|IFF_NO_PI): every
// Read returns exactly one inner IP packet, every Write accepts exactly one.
type Device struct {
	file *os.File
	name string
}

// Open allocates (or attaches to, if it already exists) the named TUN device.
func Open(name string) (*Device, error) {
	f, err := os.OpenFile(devNetTun, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tun: open %s: %w", devNetTun, err)
	}

	var req [ifReqSize]byte
	copy(req[:unix.IFNAMSIZ], name)
	flags := uint16(unix.IFF_TUN | unix.IFF_NO_PI)
	req[unix.IFNAMSIZ] = byte(flags)
	req[unix.IFNAMSIZ+1] = byte(flags >> 8)

	if err := ioctl(f.Fd(), unix.TUNSETIFF, &req[0]); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("tun: TUNSETIFF %s: %w", name, err)
	}

	actual := string(req[:unix.IFNAMSIZ])
	if i := indexZero(actual); i >= 0 {
		actual = actual[:i]
	}

	return &Device{file: f, name: actual}, nil
}

// Name returns the kernel-assigned interface name (may differ from the requested
// name if it contained a "%d" template).
func (d *Device) Name() string { return d.name }

// Read yields one inner IP packet per call, up to len(p) bytes.
func (d *Device) Read(p []byte) (int, error) { return d.file.Read(p) }

// Write accepts one inner IP packet per call.
func (d *Device) Write(p []byte) (int, error) { return d.file.Write(p) }

// Close releases the underlying file descriptor.
func (d *Device) Close() error { return d.file.Close() }

func indexZero(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return i
		}
	}
	return -1
}
