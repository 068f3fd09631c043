//go:build !linux

package sysinfo

import "errors"

// ReadMemory is unsupported outside Linux; callers fall back to skipping
// the physical-memory check (see config.Validate).
func ReadMemory() (Memory, error) {
	return Memory{}, errors.New("sysinfo: physical memory probe unsupported on this platform")
}
