//go:build !linux && !darwin

package diskspace

import "errors"

// freeBytes is a stub for platforms without Statfs. Production images run on
// Linux where statfs_unix.go is compiled in.
func freeBytes(path string) (int64, error) {
	return 0, errors.New("disk space check not supported on this platform")
}
