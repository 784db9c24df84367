//go:build !windows

package sysinfo

// Domain reports no domain membership off Windows.
func Domain() (string, bool, error) {
	return "", false, nil
}
