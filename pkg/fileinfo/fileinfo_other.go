//go:build !windows

package fileinfo

import "fmt"

// Version is not supported off Windows.
func Version(path string) (string, error) {
	return "", fmt.Errorf("reading version resource of %s: not supported on this platform", path)
}
