// pkg/installer/installer.go - builds silent-install command lines and runs
// installers to completion.

package installer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// Exit codes the Windows Installer uses for "succeeded, reboot needed".
const (
	ExitSuccessRebootRequired  = 3010
	ExitSuccessRebootInitiated = 1641
)

// ErrAlreadyRunning is returned when another copy of the installer image is
// already executing.
var ErrAlreadyRunning = errors.New("installer is already running")

// Invocation describes one installer launch. It is created when the installer
// is started and discarded after logging.
type Invocation struct {
	Path           string
	Arguments      []string
	ExitCode       int
	RebootRequired bool

	// Secrets are masked when the invocation is logged.
	Secrets []string
}

// CommandLine renders the invocation the way it is handed to the OS, with
// secrets masked.
func (inv Invocation) CommandLine() string {
	line := strings.Join(append([]string{quote(inv.Path)}, inv.Arguments...), " ")
	for _, s := range inv.Secrets {
		if s != "" {
			line = strings.ReplaceAll(line, s, "********")
		}
	}
	return line
}

// ExitError reports a launched installer that finished with a failure code.
type ExitError struct {
	Path string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("installer %s exited with code %d", filepath.Base(e.Path), e.Code)
}

// AgentParams are the tenant values embedded in the agent install command.
type AgentParams struct {
	CustomerID        string
	RegistrationToken string
	Server            string
	HTTPS             bool
}

// AgentArguments builds the agent setup switches. The setup stub passes the
// quoted /v"..." block straight to msiexec, so spacing and key names must
// stay exactly as the vendor documents them.
func AgentArguments(p AgentParams) []string {
	props := []string{
		"/qn",
		"CUSTOMERID=" + p.CustomerID,
		"CUSTOMERSPECIFIC=1",
		"REGISTRATION_TOKEN=" + p.RegistrationToken,
	}
	if p.HTTPS {
		props = append(props, "SERVERPROTOCOL=HTTPS")
	}
	props = append(props, "SERVERADDRESS="+p.Server)
	if p.HTTPS {
		props = append(props, "SERVERPORT=443")
	}
	return []string{"/s", `/v" ` + strings.Join(props, " ") + ` "`}
}

// TakeControlArguments are the silent switches of the Take Control installer.
func TakeControlArguments() []string {
	return []string{"/S", "/R", "/L"}
}

// Launcher starts a process and waits for it. A non-nil error means the
// process could not be started or waited on; the exit code is only
// meaningful when err is nil.
type Launcher interface {
	Launch(ctx context.Context, path string, args []string) (exitCode int, err error)
}

// RunningCheck reports whether a process with the given image name exists.
type RunningCheck func(image string) (bool, error)

// Runner launches installers synchronously.
type Runner struct {
	launcher Launcher
	running  RunningCheck
}

// NewRunner creates a Runner. running may be nil to skip the busy check.
func NewRunner(l Launcher, running RunningCheck) *Runner {
	if l == nil {
		l = ExecLauncher{}
	}
	return &Runner{launcher: l, running: running}
}

// Run launches inv and blocks until it exits. Exit code 0 is success, and so
// are the MSI reboot codes (with RebootRequired set). Any other exit code is
// returned as an *ExitError alongside the completed invocation.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Invocation, error) {
	if inv.Path == "" {
		return inv, fmt.Errorf("installer path is empty")
	}
	image := filepath.Base(inv.Path)
	if r.running != nil {
		busy, err := r.running(image)
		if err != nil {
			logging.Warn("Could not check for running installers", "image", image, "error", err)
		} else if busy {
			return inv, fmt.Errorf("%s: %w", image, ErrAlreadyRunning)
		}
	}

	logging.Info("Launching installer", "command", inv.CommandLine())
	code, err := r.launcher.Launch(ctx, inv.Path, inv.Arguments)
	if err != nil {
		return inv, fmt.Errorf("failed to launch installer %s: %w", image, err)
	}
	inv.ExitCode = code

	switch code {
	case 0:
		logging.Info("Installer completed successfully", "installer", image, "exit_code", code)
		return inv, nil
	case ExitSuccessRebootRequired, ExitSuccessRebootInitiated:
		inv.RebootRequired = true
		logging.Warn("Installer completed, reboot required", "installer", image, "exit_code", code)
		return inv, nil
	default:
		logging.Error("Installer failed", "installer", image, "exit_code", code)
		return inv, &ExitError{Path: inv.Path, Code: code}
	}
}

func quote(s string) string {
	if strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, `"`) {
		return `"` + s + `"`
	}
	return s
}
