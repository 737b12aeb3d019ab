//go:build linux

package store

import "syscall"

// diskStats reports space on the filesystem holding path. Bavail rather than
// Bfree: the service does not run as root and cannot use reserved blocks.
func diskStats(path string) (avail, total uint64) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0
	}
	bsize := uint64(st.Bsize)
	return st.Bavail * bsize, st.Blocks * bsize
}
