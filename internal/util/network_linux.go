//go:build linux

package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// networkMagic maps kernel VFS magic numbers to protocol names
var networkMagic = map[uint32]string{
	0x6969:     "nfs",   // NFS_SUPER_MAGIC
	0xff534d42: "cifs",  // CIFS_MAGIC_NUMBER
	0x517b:     "smb",   // SMB_SUPER_MAGIC
	0x01021994: "smbfs", // SMBFS_MAGIC (old)
	0x564c:     "ncp",   // NCP_SUPER_MAGIC (Netware)
	0xfe534d42: "smb2",  // SMB2_MAGIC_NUMBER
}

// networkFSTypes are /proc/mounts type names of network filesystems
var networkFSTypes = []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone"}

func detectPlatformNetwork(path string) (*NetworkInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	info := &NetworkInfo{}
	if proto, found := networkMagic[uint32(stat.Type)]; found {
		info.IsNetwork = true
		info.Protocol = proto
	}

	// /proc/mounts confirms the protocol and gives the mount point
	file, err := os.Open("/proc/mounts")
	if err != nil {
		return info, nil
	}
	defer file.Close()

	mounts, err := parseMounts(file)
	if err != nil {
		return info, nil
	}
	if mountPoint, fsType := mountFor(path, mounts); isNetworkFSType(fsType) {
		info.IsNetwork = true
		info.Protocol = fsType
		info.MountPath = mountPoint
	}
	return info, nil
}

// parseMounts reads "device mountpoint fstype options dump pass" lines
// into mount point -> filesystem type
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[fields[1]] = strings.ToLower(fields[2])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mounts, nil
}

// mountFor returns the longest mount point containing path
func mountFor(path string, mounts map[string]string) (mountPoint, fsType string) {
	for mp, fs := range mounts {
		within := path == mp || mp == "/" || strings.HasPrefix(path, mp+"/")
		if within && len(mp) > len(mountPoint) {
			mountPoint, fsType = mp, fs
		}
	}
	return mountPoint, fsType
}

func isNetworkFSType(fsType string) bool {
	for _, name := range networkFSTypes {
		if strings.Contains(fsType, name) {
			return true
		}
	}
	return false
}
