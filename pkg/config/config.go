// pkg/config/config.go - configuration settings for agentrepair.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const ConfigPath = `C:\ProgramData\AgentRepair\Config.yaml`

// RegistryPath is the HKLM policy key consulted when Config.yaml is missing.
const RegistryPath = `SOFTWARE\AgentRepair\Config`

// Environment variables consulted for invocation-time values.
const (
	EnvCustomerID        = "AGENTREPAIR_CUSTOMER_ID"
	EnvRegistrationToken = "AGENTREPAIR_REGISTRATION_TOKEN"
	EnvServer            = "AGENTREPAIR_SERVER"
)

// DefaultTakeControlInstallerType is the file type tag selected from the
// Take Control version-range manifest.
const DefaultTakeControlInstallerType = "MSPA4NCentral"

// DefaultTakeControlManifestURL is the vendor-hosted Take Control range list.
const DefaultTakeControlManifestURL = "https://swi-rc.cdn-sw.net/n-central/updates/xml/TakeControlRanges.xml"

var errRegistryUnavailable = errors.New("registry configuration is not available on this platform")

// Configuration holds the options for an agentrepair run.
//
// CustomerID and RegistrationToken identify the tenant the agent is bound to.
// The token is never read from Config.yaml; it comes from flags or the
// environment at invocation time.
type Configuration struct {
	Server            string `yaml:"Server" validate:"required,hostname_rfc1123|ip"`
	CustomerID        string `yaml:"CustomerID" validate:"required"`
	RegistrationToken string `yaml:"-" validate:"required"`
	UseHTTPS          bool   `yaml:"UseHTTPS"`

	AgentVersion           string   `yaml:"AgentVersion"`
	AgentBinaryPath        string   `yaml:"AgentBinaryPath" validate:"required"`
	AgentServices          []string `yaml:"AgentServices" validate:"required,min=1,dive,required"`
	AgentConfigDir         string   `yaml:"AgentConfigDir"`
	AgentInstallerFileName string   `yaml:"AgentInstallerFileName" validate:"required"`
	AgentInstallerURL      string   `yaml:"AgentInstallerURL" validate:"omitempty,url"`
	AgentInstallerSHA256   string   `yaml:"AgentInstallerSHA256" validate:"omitempty,len=64,hexadecimal"`
	AgentSharePath         string   `yaml:"AgentSharePath"`

	TakeControlBinaryPath    string   `yaml:"TakeControlBinaryPath" validate:"required"`
	TakeControlServices      []string `yaml:"TakeControlServices" validate:"required,min=1,dive,required"`
	TakeControlManifestURL   string   `yaml:"TakeControlManifestURL" validate:"required,url"`
	TakeControlInstallerType string   `yaml:"TakeControlInstallerType" validate:"required"`

	SkipAgent       bool `yaml:"SkipAgent"`
	SkipTakeControl bool `yaml:"SkipTakeControl"`

	TempPath                   string `yaml:"TempPath"`
	LogPath                    string `yaml:"LogPath"`
	LogLevel                   string `yaml:"LogLevel"`
	LogRetentionRuns           int    `yaml:"LogRetentionRuns"`
	DownloadTimeoutMinutes     int    `yaml:"DownloadTimeoutMinutes" validate:"gte=1"`
	ServiceStartTimeoutSeconds int    `yaml:"ServiceStartTimeoutSeconds" validate:"gte=1"`

	// Per-run switches, never persisted.
	ForceReinstall bool   `yaml:"-"`
	LocalFile      string `yaml:"-"`
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	// Use ProgramFiles(x86) since both vendor products install as 32-bit.
	programFiles := os.Getenv("ProgramFiles(x86)")
	if programFiles == "" {
		programFiles = `C:\Program Files (x86)`
	}
	programData := os.Getenv("ProgramData")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	agentDir := filepath.Join(programFiles, "N-able Technologies", "Windows Agent")
	return &Configuration{
		UseHTTPS:               true,
		AgentBinaryPath:        filepath.Join(agentDir, "bin", "agent.exe"),
		AgentServices:          []string{"Windows Agent Service", "Windows Agent Maintenance Service"},
		AgentConfigDir:         filepath.Join(agentDir, "config"),
		AgentInstallerFileName: "WindowsAgentSetup.exe",

		TakeControlBinaryPath:    filepath.Join(programFiles, "BeAnywhere Support Express", "GetSupportService_N-Central", "BASupSrvc.exe"),
		TakeControlServices:      []string{"BASupportExpressStandaloneService_N_Central", "BASupportExpressSrvcUpdater_N_Central"},
		TakeControlManifestURL:   DefaultTakeControlManifestURL,
		TakeControlInstallerType: DefaultTakeControlInstallerType,

		TempPath:                   filepath.Join(programData, "AgentRepair", "temp"),
		LogPath:                    filepath.Join(programData, "AgentRepair", "logs"),
		LogLevel:                   "INFO",
		LogRetentionRuns:           20,
		DownloadTimeoutMinutes:     10,
		ServiceStartTimeoutSeconds: 60,
	}
}

// LoadConfig loads the configuration from path (ConfigPath when empty).
// Values in the file overlay the defaults. When the file does not exist the
// registry policy key is tried, and when that is missing too the defaults are
// returned unchanged.
func LoadConfig(path string) (*Configuration, error) {
	if path == "" {
		path = ConfigPath
	}
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
		}
		cfg.trimIdentity()
		return cfg, nil
	case errors.Is(err, os.ErrNotExist):
		if regErr := loadFromRegistry(RegistryPath, cfg); regErr != nil && !errors.Is(regErr, errRegistryUnavailable) && !errors.Is(regErr, os.ErrNotExist) {
			return nil, regErr
		}
		cfg.trimIdentity()
		return cfg, nil
	default:
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
}

// ApplyEnv copies invocation-time values from the environment over whatever
// the file or registry provided. Flags are applied after this, so they still
// win.
func (c *Configuration) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvCustomerID)); v != "" {
		c.CustomerID = v
	}
	if v := strings.TrimSpace(getenv(EnvRegistrationToken)); v != "" {
		c.RegistrationToken = v
	}
	if v := strings.TrimSpace(getenv(EnvServer)); v != "" {
		c.Server = v
	}
}

// trimIdentity strips whitespace from values that are embedded verbatim in
// the installer command line.
func (c *Configuration) trimIdentity() {
	c.Server = strings.TrimSpace(c.Server)
	c.CustomerID = strings.TrimSpace(c.CustomerID)
	c.AgentVersion = strings.TrimSpace(c.AgentVersion)
}

// Redacted returns a copy safe to print or log.
func (c *Configuration) Redacted() *Configuration {
	cp := *c
	if cp.RegistrationToken != "" {
		cp.RegistrationToken = "********"
	}
	return &cp
}

// YAML renders the redacted configuration, including the token placeholder.
func (c *Configuration) YAML() (string, error) {
	r := c.Redacted()
	out := struct {
		Configuration     `yaml:",inline"`
		RegistrationToken string `yaml:"RegistrationToken,omitempty"`
		ForceReinstall    bool   `yaml:"ForceReinstall"`
		LocalFile         string `yaml:"LocalFile,omitempty"`
	}{*r, r.RegistrationToken, r.ForceReinstall, r.LocalFile}
	data, err := yaml.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AgentDownloadURL is the configured installer URL, or the server's own
// download path for AgentVersion when no URL is configured.
func (c *Configuration) AgentDownloadURL() string {
	if c.AgentInstallerURL != "" {
		return c.AgentInstallerURL
	}
	if c.Server == "" || c.AgentVersion == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/download/%s/winnt/N-central/%s", c.Server, c.AgentVersion, c.AgentInstallerFileName)
}

// parseRegistryBool accepts "true"/"false" and "1"/"0" string forms.
func parseRegistryBool(s string) (bool, bool) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return b, err == nil
}

// splitList splits REG_SZ lists stored as comma separated values.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
