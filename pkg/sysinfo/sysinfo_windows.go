//go:build windows

package sysinfo

import (
	"fmt"

	"github.com/yusufpapurcu/wmi"
)

type win32ComputerSystem struct {
	Domain       string
	PartOfDomain bool
}

// Domain returns the Active Directory domain the host is joined to. joined is
// false for workgroup machines.
func Domain() (name string, joined bool, err error) {
	var dst []win32ComputerSystem
	if err := wmi.Query("SELECT Domain, PartOfDomain FROM Win32_ComputerSystem", &dst); err != nil {
		return "", false, fmt.Errorf("querying Win32_ComputerSystem: %w", err)
	}
	if len(dst) == 0 {
		return "", false, fmt.Errorf("Win32_ComputerSystem returned no rows")
	}
	return dst[0].Domain, dst[0].PartOfDomain, nil
}
