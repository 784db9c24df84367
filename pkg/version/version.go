// pkg/version/version.go - build information and agent version parsing.

package version

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// These values are private which ensures they can only be set with the build flags.
var (
	version   = "unknown"
	revision  = "unknown"
	buildDate = "unknown"
	appName   = "agentrepair"
)

// Info describes the running binary.
type Info struct {
	AppName   string `json:"app_name" yaml:"app_name"`
	Version   string `json:"version" yaml:"version"`
	Revision  string `json:"revision" yaml:"revision"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

// Version returns the build information of the current binary.
func Version() Info {
	return Info{
		AppName:   appName,
		Version:   version,
		Revision:  revision,
		BuildDate: buildDate,
	}
}

// Print outputs the application name and version string.
func Print() {
	v := Version()
	fmt.Printf("%s %s\n", v.AppName, v.Version)
}

// PrintFull prints the application name and detailed build information.
func PrintFull() {
	v := Version()
	fmt.Printf("%s %s\n", v.AppName, v.Version)
	fmt.Printf("  revision: \t%s\n", v.Revision)
	fmt.Printf("  build date: \t%s\n", v.BuildDate)
}

// Parse reads a Windows file or product version. Resource strings sometimes
// use commas or spaces as separators ("2023, 1, 0, 123"), so those are
// normalised to dots before parsing.
func Parse(raw string) (*goversion.Version, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty version string")
	}
	s = strings.ReplaceAll(s, ", ", ".")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.ReplaceAll(s, " ", "")
	v, err := goversion.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", raw, err)
	}
	return v, nil
}

// Normalize trims trailing ".0" segments from version strings.
func Normalize(version string) string {
	parts := strings.Split(version, ".")
	for len(parts) > 1 && parts[len(parts)-1] == "0" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}
