//go:build windows

package scanner

import (
	"os"
	"syscall"
	"time"
)

// fileMeta reads the access time of path. Ownership needs a security
// descriptor lookup and is left empty.
func fileMeta(_ string, info os.FileInfo) (*time.Time, string) {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return nil, ""
	}
	atime := time.Unix(0, data.LastAccessTime.Nanoseconds())
	return &atime, ""
}
