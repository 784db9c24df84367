//go:build windows

package utils

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// CommandLineArgs splits the raw process command line with
// CommandLineToArgvW, which keeps quoted paths with spaces (such as a
// --local-file on a share) in one argument. Falls back to os.Args.
func CommandLineArgs() []string {
	cmdLine := windows.GetCommandLine()
	if cmdLine == nil {
		return os.Args
	}
	var argc int32
	argv, err := windows.CommandLineToArgv(cmdLine, &argc)
	if err != nil || argv == nil || argc < 1 {
		return os.Args
	}
	defer windows.LocalFree(windows.Handle(uintptr(unsafe.Pointer(argv))))

	args := make([]string, 0, argc)
	for _, p := range unsafe.Slice((**uint16)(unsafe.Pointer(argv)), argc) {
		if p != nil {
			args = append(args, windows.UTF16PtrToString(p))
		}
	}
	return args
}
