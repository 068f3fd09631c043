//go:build linux

package sysinfo

import "golang.org/x/sys/unix"

// ReadMemory reads total/free physical memory via the sysinfo(2) syscall.
func ReadMemory() (Memory, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Memory{}, err
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return Memory{
		TotalBytes: uint64(si.Totalram) * unit,
		FreeBytes:  uint64(si.Freeram) * unit,
	}, nil
}
