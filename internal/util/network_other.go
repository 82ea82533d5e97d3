//go:build !linux && !darwin

package util

// detectPlatformNetwork is a stub for unsupported platforms
func detectPlatformNetwork(path string) (*NetworkInfo, error) {
	return &NetworkInfo{}, nil
}
