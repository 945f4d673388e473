//go:build unix

package scanner

import (
	"os"
	"syscall"
)

// getDeviceID returns the filesystem device a file lives on.
func getDeviceID(info os.FileInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(stat.Dev), true //nolint:unconvert // Dev is int32 on darwin
}
