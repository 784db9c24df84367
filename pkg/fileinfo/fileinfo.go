// Package fileinfo reads version resources from Windows executables.
package fileinfo

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"

	"github.com/windowsadmins/agentrepair/pkg/version"
)

// ParsedVersion reads the file version of path and parses it.
func ParsedVersion(path string) (*goversion.Version, error) {
	raw, err := Version(path)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("%s has no version resource", path)
	}
	return version.Parse(raw)
}

func formatFixed(ms, ls uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", ms>>16, ms&0xffff, ls>>16, ls&0xffff)
}
