//go:build linux

package systems

import "syscall"

func statfs(path string) (fsStat, error) {
	var s syscall.Statfs_t
	if err := syscall.Statfs(path, &s); err != nil {
		return fsStat{}, err
	}
	return fsStat{
		Bsize:  int64(s.Bsize), // Bsize is int32 on ARMv7, int64 on arm64/amd64
		Blocks: s.Blocks,
		Bfree:  s.Bfree,
	}, nil
}
