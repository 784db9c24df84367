// cmd/agentreregister/main.go - points an installed agent at a new customer
// and server by editing its XML configuration in place.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/windowsadmins/agentrepair/pkg/cli"
	"github.com/windowsadmins/agentrepair/pkg/config"
	"github.com/windowsadmins/agentrepair/pkg/logging"
	"github.com/windowsadmins/agentrepair/pkg/preflight"
	"github.com/windowsadmins/agentrepair/pkg/reregister"
	"github.com/windowsadmins/agentrepair/pkg/service"
	"github.com/windowsadmins/agentrepair/pkg/utils"
	"github.com/windowsadmins/agentrepair/pkg/version"
)

func main() {
	os.Exit(run(utils.CommandLineArgs()[1:]))
}

func run(args []string) int {
	fs, opts := cli.NewFlagSet("agentreregister", false, os.Stderr)
	if err := fs.Parse(args); err != nil {
		return cli.ParseError(err)
	}
	logger := logging.New(opts.Verbosity > 0)

	if opts.ShowVersion {
		version.Print()
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

	if err := cli.InitLogging(cfg, "agentreregister", opts.Verbosity); err != nil {
		logger.Error("Error initializing logger: %v", err)
		return cli.ExitConfig
	}
	defer logging.CloseLogger()
	start := time.Now()

	code := reregisterAgent(logger, cfg, fs.Usage)
	status := "completed"
	if code != cli.ExitOK {
		status = "failed"
	}
	if err := logging.EndSession(status, code, start, nil); err != nil {
		logging.Warn("Failed to write session summary", "error", err)
	}
	return code
}

func reregisterAgent(logger *logging.Logger, cfg *config.Configuration, usage func()) int {
	if err := preflight.RequireAdmin(); err != nil {
		logger.Error("%v", err)
		return cli.ExitNotAdmin
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := preflight.NewValidator().Validate(ctx, cfg, true); err != nil {
		logger.Error("%v", err)
		usage()
		return cli.ExitUsage
	}
	logging.PruneRuns()

	scm, err := service.Connect()
	if err != nil {
		logger.Error("Failed to connect to the service control manager: %v", err)
		return cli.ExitFailure
	}
	defer scm.Close()

	starter := service.NewStarter(scm, time.Duration(cfg.ServiceStartTimeoutSeconds)*time.Second)
	logging.Info("Re-registering agent", "server", cfg.Server, "customer_id", cfg.CustomerID, "config_dir", cfg.AgentConfigDir)
	if err := reregister.Run(ctx, starter, cfg.AgentServices, reregister.AgentSettings(cfg)); err != nil {
		logger.Error("Re-registration failed: %v", err)
		logging.Error("Re-registration failed", "error", err)
		return cli.ExitFailure
	}
	logger.Success("Agent re-registered to %s (customer %s).", cfg.Server, cfg.CustomerID)
	return cli.ExitOK
}
