//go:build windows

package fileinfo

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Version returns the fixed file version (major.minor.build.revision) from
// the executable's VS_VERSIONINFO resource, or "" if it has none.
func Version(path string) (string, error) {
	var zero windows.Handle
	size, err := windows.GetFileVersionInfoSize(path, &zero)
	if err != nil {
		if err == windows.ERROR_RESOURCE_TYPE_NOT_FOUND || err == windows.ERROR_RESOURCE_DATA_NOT_FOUND {
			return "", nil
		}
		return "", fmt.Errorf("GetFileVersionInfoSize %s: %w", path, err)
	}
	if size == 0 {
		return "", nil
	}

	info := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&info[0])); err != nil {
		return "", fmt.Errorf("GetFileVersionInfo %s: %w", path, err)
	}

	var fixed *windows.VS_FIXEDFILEINFO
	var fixedLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&info[0]), `\`, unsafe.Pointer(&fixed), &fixedLen); err != nil {
		return "", fmt.Errorf("VerQueryValue %s: %w", path, err)
	}
	if fixedLen == 0 || fixed == nil {
		return "", nil
	}
	return formatFixed(fixed.FileVersionMS, fixed.FileVersionLS), nil
}
