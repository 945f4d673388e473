package core

import (
	"fmt"
	"runtime"
)

// Platform identifies an operating system family a scanner can run on.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformMacOS   Platform = "macos"
	// PlatformAll is declared by scanners that work everywhere.
	PlatformAll Platform = "all"
)

// DetectPlatform maps a GOOS value to a Platform.
// Unknown systems return ErrUnsupportedPlatform; callers treat this as fatal.
func DetectPlatform(goos string) (Platform, error) {
	switch goos {
	case "windows":
		return PlatformWindows, nil
	case "linux":
		return PlatformLinux, nil
	case "darwin":
		return PlatformMacOS, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}
}

// CurrentPlatform detects the platform the process is running on.
func CurrentPlatform() (Platform, error) {
	return DetectPlatform(runtime.GOOS)
}

// Supports reports whether p is covered by the declared platform set.
func (p Platform) Supports(declared []Platform) bool {
	for _, d := range declared {
		if d == PlatformAll || d == p {
			return true
		}
	}
	return false
}
