//go:build !windows

package preflight

import "os"

// IsAdmin reports whether the process runs as root.
func IsAdmin() (bool, error) {
	return os.Geteuid() == 0, nil
}
