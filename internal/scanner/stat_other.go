//go:build !unix && !windows

package scanner

import (
	"os"
	"time"
)

func fileMeta(string, os.FileInfo) (*time.Time, string) {
	return nil, ""
}
