package process

import (
	"fmt"
	"runtime"
)

// Platform identifiers as they appear in the resource layout.
const (
	PlatformWindows = "win32"
	PlatformDarwin  = "darwin"
)

// executableNames maps a supported platform identifier to the worker binary name.
var executableNames = map[string]string{
	PlatformWindows: "openceci.exe",
	PlatformDarwin:  "openceci",
}

// UnsupportedPlatformError is returned when no worker binary is shipped for a platform.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("not support %s", e.Platform)
}

// PlatformID maps a Go GOOS value onto the resource directory naming.
// Unknown values pass through unchanged so they can be reported as unsupported.
func PlatformID(goos string) string {
	switch goos {
	case "windows":
		return PlatformWindows
	default:
		return goos
	}
}

// CurrentPlatform returns the platform identifier of the running binary.
func CurrentPlatform() string {
	return PlatformID(runtime.GOOS)
}

// ExecutableName returns the worker binary name for platform.
func ExecutableName(platform string) (string, error) {
	name, ok := executableNames[platform]
	if !ok {
		return "", &UnsupportedPlatformError{Platform: platform}
	}
	return name, nil
}

// IsSupported reports whether a worker binary exists for platform.
func IsSupported(platform string) bool {
	_, ok := executableNames[platform]
	return ok
}

// SupportedPlatforms lists the platform identifiers in a stable order.
func SupportedPlatforms() []string {
	return []string{PlatformWindows, PlatformDarwin}
}
