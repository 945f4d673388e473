//go:build !unix

package scanner

import "os"

// getDeviceID is unavailable off unix; mount-point detection is skipped.
func getDeviceID(os.FileInfo) (uint64, bool) {
	return 0, false
}
