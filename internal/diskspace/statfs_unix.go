//go:build linux || darwin

package diskspace

import "syscall"

// freeBytes returns the bytes available to unprivileged users on the
// filesystem containing path.
func freeBytes(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	// Bavail * Bsize = free space available to unprivileged users.
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
