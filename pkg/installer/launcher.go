package installer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// ExecLauncher runs installers with os/exec. The child is not tied to ctx:
// once started, an installer is always allowed to finish.
type ExecLauncher struct{}

// Launch runs path with args and returns its exit code.
func (ExecLauncher) Launch(_ context.Context, path string, args []string) (int, error) {
	cmd := exec.Command(path, args...)
	setProcAttr(cmd, path, args)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if out := strings.TrimSpace(stdout.String()); out != "" {
		logging.Debug("Installer output", "stdout", out)
	}
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		logging.Debug("Installer output", "stderr", errOut)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}
