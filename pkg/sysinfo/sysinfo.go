// Package sysinfo answers questions about the host needed to locate installers.
package sysinfo

import (
	"fmt"
	"strings"
)

// NetlogonPath returns \\<domain>\NETLOGON\<file> for a domain-joined host.
func NetlogonPath(domain, file string) (string, error) {
	domain = strings.Trim(strings.TrimSpace(domain), `\`)
	if domain == "" {
		return "", fmt.Errorf("empty domain name")
	}
	return fmt.Sprintf(`\\%s\NETLOGON\%s`, domain, file), nil
}
