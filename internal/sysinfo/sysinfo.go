// Package sysinfo probes physical memory for the cache-size validator,
// wrapping golang.org/x/sys/unix on Linux with a conservative fallback
// elsewhere.
package sysinfo

// Memory reports total and free physical memory in bytes.
type Memory struct {
	TotalBytes uint64
	FreeBytes  uint64
}
