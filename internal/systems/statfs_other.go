//go:build !linux

package systems

import "errors"

func statfs(string) (fsStat, error) {
	return fsStat{}, errors.New("statfs not supported on this platform")
}
