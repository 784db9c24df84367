// cmd/agentrepair/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/windowsadmins/agentrepair/pkg/blocking"
	"github.com/windowsadmins/agentrepair/pkg/cli"
	"github.com/windowsadmins/agentrepair/pkg/config"
	"github.com/windowsadmins/agentrepair/pkg/download"
	"github.com/windowsadmins/agentrepair/pkg/installer"
	"github.com/windowsadmins/agentrepair/pkg/logging"
	"github.com/windowsadmins/agentrepair/pkg/preflight"
	"github.com/windowsadmins/agentrepair/pkg/probe"
	"github.com/windowsadmins/agentrepair/pkg/procedure"
	"github.com/windowsadmins/agentrepair/pkg/resolver"
	"github.com/windowsadmins/agentrepair/pkg/service"
	"github.com/windowsadmins/agentrepair/pkg/utils"
	"github.com/windowsadmins/agentrepair/pkg/version"
)

var logger *logging.Logger

func main() {
	os.Exit(run(utils.CommandLineArgs()[1:]))
}

func run(args []string) int {
	fs, opts := cli.NewFlagSet("agentrepair", true, os.Stderr)
	if err := fs.Parse(args); err != nil {
		return cli.ParseError(err)
	}
	logger = logging.New(opts.Verbosity > 0)

	if opts.ShowVersion {
		if opts.Verbosity > 0 {
			version.PrintFull()
		} else {
			version.Print()
		}
		return cli.ExitOK
	}

	cfg, err := opts.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return cli.ExitConfig
	}

	if opts.ShowConfig {
		out, err := cfg.YAML()
		if err != nil {
			logger.Error("Failed to render configuration: %v", err)
			return cli.ExitConfig
		}
		fmt.Print(out)
		return cli.ExitOK
	}

	if err := cli.InitLogging(cfg, "agentrepair", opts.Verbosity); err != nil {
		logger.Error("Error initializing logger: %v", err)
		return cli.ExitConfig
	}
	defer logging.CloseLogger()
	start := time.Now()
	logging.Info("agentrepair starting", "version", version.Version().Version, "config", cfg.Redacted())

	if err := preflight.RequireAdmin(); err != nil {
		logger.Error("%v", err)
		logging.Error("Administrative rights check failed", "error", err)
		return finish(start, cli.ExitNotAdmin, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := preflight.NewValidator().Validate(ctx, cfg, !cfg.SkipAgent); err != nil {
		logger.Error("%v", err)
		fs.Usage()
		return finish(start, cli.ExitUsage, nil)
	}
	logging.PruneRuns()

	scm, err := service.Connect()
	if err != nil {
		logger.Error("Failed to connect to the service control manager: %v", err)
		logging.Error("Service manager unavailable", "error", err)
		return finish(start, cli.ExitFailure, nil)
	}
	defer scm.Close()

	detector := blocking.NewDetector(nil)
	proc := procedure.New(
		probe.New(scm),
		service.NewStarter(scm, time.Duration(cfg.ServiceStartTimeoutSeconds)*time.Second),
		installer.NewRunner(installer.ExecLauncher{}, detector.IsRunning),
	)
	res := resolver.New(cfg, download.NewClient(time.Duration(cfg.DownloadTimeoutMinutes)*time.Minute))

	// The Take Control installer is chosen by the agent's version, so the
	// agent always goes first.
	var outcomes []procedure.Outcome
	for _, c := range components(cfg, res) {
		if ctx.Err() != nil {
			logging.Warn("Interrupted, skipping remaining components", "component", c.Name)
			break
		}
		out := proc.Run(ctx, c)
		report(out)
		outcomes = append(outcomes, out)
	}

	code := cli.ExitOK
	if err := procedure.Report(outcomes...); err != nil {
		logging.Error("Repair finished with failures", "error", err)
		code = cli.ExitFailure
	} else if errors.Is(ctx.Err(), context.Canceled) {
		code = cli.ExitFailure
	}
	return finish(start, code, outcomes)
}

func components(cfg *config.Configuration, res *resolver.Resolver) []procedure.Component {
	var list []procedure.Component
	if cfg.SkipAgent {
		logging.Info("Skipping agent", "reason", "disabled by configuration")
	} else {
		params := installer.AgentParams{
			CustomerID:        cfg.CustomerID,
			RegistrationToken: cfg.RegistrationToken,
			Server:            cfg.Server,
			HTTPS:             cfg.UseHTTPS,
		}
		list = append(list, procedure.Component{
			Name:       "Agent",
			BinaryPath: cfg.AgentBinaryPath,
			Services:   cfg.AgentServices,
			Force:      cfg.ForceReinstall,
			Resolve:    res.AgentInstaller,
			Arguments:  func() []string { return installer.AgentArguments(params) },
			Secrets:    []string{cfg.RegistrationToken},
		})
	}
	if cfg.SkipTakeControl {
		logging.Info("Skipping Take Control", "reason", "disabled by configuration")
	} else {
		list = append(list, procedure.Component{
			Name:       "Take Control",
			BinaryPath: cfg.TakeControlBinaryPath,
			Services:   cfg.TakeControlServices,
			Force:      cfg.ForceReinstall,
			Resolve:    res.TakeControlInstaller,
			Arguments:  installer.TakeControlArguments,
		})
	}
	return list
}

func report(out procedure.Outcome) {
	if err := out.Err(); err != nil {
		logger.Error("%s: %v", out.Component, err)
		return
	}
	switch {
	case out.Installed && out.RebootRequired:
		logger.Warning("%s installed; a reboot is required to finish.", out.Component)
	case out.Installed:
		logger.Success("%s installed (%s).", out.Component, out.Decision.Reason)
	case len(out.Started) > 0:
		logger.Success("%s started: %v", out.Component, out.Started)
	default:
		logger.Success("%s is installed and running.", out.Component)
	}
}

func finish(start time.Time, code int, outcomes []procedure.Outcome) int {
	status := "completed"
	if code != cli.ExitOK {
		status = "failed"
	}
	summaries := make([]logging.ComponentOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		summaries = append(summaries, o.Summary())
	}
	if err := logging.EndSession(status, code, start, summaries); err != nil {
		logging.Warn("Failed to write session summary", "error", err)
	}
	logging.Info("agentrepair finished", "status", status, "exit_code", code, "log_dir", logging.GetCurrentLogDir())
	return code
}
