// pkg/cli/cli.go - flags, configuration loading and exit codes shared by the
// agentrepair and agentreregister commands.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/windowsadmins/agentrepair/pkg/config"
	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1 // one or more components failed
	ExitUsage    = 2 // bad flags or parameters
	ExitNotAdmin = 3
	ExitConfig   = 4 // configuration could not be loaded
)

// Options are the parsed command-line flags.
type Options struct {
	Server            string
	CustomerID        string
	RegistrationToken string
	HTTPS             bool

	AgentVersion    string
	LocalFile       string
	ForceReinstall  bool
	SkipAgent       bool
	SkipTakeControl bool

	ConfigPath  string
	EnvFile     string
	ShowConfig  bool
	ShowVersion bool
	Verbosity   int

	flags *pflag.FlagSet
}

// NewFlagSet registers the identity and housekeeping flags. With install
// set, the repair flags are registered too.
func NewFlagSet(name string, install bool, output io.Writer) (*pflag.FlagSet, *Options) {
	o := &Options{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.Server, "server", "", "N-central server hostname or IP address.")
	fs.StringVar(&o.CustomerID, "customer-id", "", "Customer ID the agent registers under (env "+config.EnvCustomerID+").")
	fs.StringVar(&o.RegistrationToken, "registration-token", "", "Registration token GUID (env "+config.EnvRegistrationToken+").")
	fs.BoolVar(&o.HTTPS, "https", true, "Register the agent over HTTPS on port 443.")
	if install {
		fs.StringVar(&o.AgentVersion, "agent-version", "", "Agent version to download from the server when no share copy exists.")
		fs.StringVar(&o.LocalFile, "local-file", "", "Use this agent installer instead of a share copy or download.")
		fs.BoolVar(&o.ForceReinstall, "force-reinstall", false, "Reinstall the agent and Take Control even when healthy.")
		fs.BoolVar(&o.SkipAgent, "skip-agent", false, "Do not check or repair the agent.")
		fs.BoolVar(&o.SkipTakeControl, "skip-takecontrol", false, "Do not check or repair Take Control.")
	}
	fs.StringVar(&o.ConfigPath, "config", config.ConfigPath, "Path to the configuration file.")
	fs.StringVar(&o.EnvFile, "env-file", "", "Load environment variables from this file before reading the configuration.")
	fs.BoolVar(&o.ShowConfig, "show-config", false, "Display the effective configuration and exit.")
	fs.BoolVar(&o.ShowVersion, "version", false, "Print the version and exit.")
	fs.CountVarP(&o.Verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv, -vvv)")

	o.flags = fs
	return fs, o
}

// Load reads the env file (if any) and the configuration, then layers flags
// and environment variables on top. Flags win over the environment, which
// wins over the file.
func (o *Options) Load() (*config.Configuration, error) {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", o.EnvFile, err)
		}
	}
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	o.Apply(cfg)
	return cfg, nil
}

// Apply copies explicitly set flags into cfg. Identity values are trimmed
// because they end up verbatim in the installer command line.
func (o *Options) Apply(cfg *config.Configuration) {
	changed := func(name string) bool { return o.flags != nil && o.flags.Changed(name) }

	if v := strings.TrimSpace(o.Server); v != "" {
		cfg.Server = v
	}
	if v := strings.TrimSpace(o.CustomerID); v != "" {
		cfg.CustomerID = v
	}
	if v := strings.TrimSpace(o.RegistrationToken); v != "" {
		cfg.RegistrationToken = v
	}
	if changed("https") {
		cfg.UseHTTPS = o.HTTPS
	}
	if v := strings.TrimSpace(o.AgentVersion); v != "" {
		cfg.AgentVersion = v
	}
	if changed("skip-agent") {
		cfg.SkipAgent = o.SkipAgent
	}
	if changed("skip-takecontrol") {
		cfg.SkipTakeControl = o.SkipTakeControl
	}
	cfg.ForceReinstall = o.ForceReinstall
	cfg.LocalFile = o.LocalFile
}

// ParseError distinguishes -h from real usage errors.
func ParseError(err error) int {
	if errors.Is(err, pflag.ErrHelp) {
		return ExitOK
	}
	return ExitUsage
}

// LogLevel maps the -v count onto a level; without -v the configured level
// is used.
func LogLevel(verbosity int, configured string) logging.LogLevel {
	switch {
	case verbosity >= 2:
		return logging.LevelDebug
	case verbosity == 1:
		return logging.LevelInfo
	default:
		return logging.ParseLevel(configured)
	}
}

// InitLogging starts the run log for component.
func InitLogging(cfg *config.Configuration, component string, verbosity int) error {
	return logging.Init(logging.LoggerConfig{
		BaseDir:       cfg.LogPath,
		Component:     component,
		Level:         LogLevel(verbosity, cfg.LogLevel),
		RetainRuns:    cfg.LogRetentionRuns,
		EnableJSON:    true,
		EnableConsole: verbosity > 0,
	})
}
