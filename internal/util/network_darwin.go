//go:build darwin

package util

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// detectPlatformNetwork reads the filesystem type name straight from statfs on macOS
func detectPlatformNetwork(path string) (*NetworkInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	info := &NetworkInfo{}
	fsType := strings.ToLower(unix.ByteSliceToString(stat.Fstypename[:]))
	for _, netType := range []string{"nfs", "smbfs", "afpfs", "cifs", "webdav", "osxfuse"} {
		if strings.Contains(fsType, netType) {
			info.IsNetwork = true
			info.Protocol = fsType
			info.MountPath = unix.ByteSliceToString(stat.Mntonname[:])
			break
		}
	}
	return info, nil
}
