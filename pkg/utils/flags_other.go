//go:build !windows

package utils

import "os"

// CommandLineArgs returns os.Args.
func CommandLineArgs() []string {
	return os.Args
}
