//go:build windows

package installer

import (
	"os/exec"
	"strings"
	"syscall"
)

// setProcAttr hides the console window and hands the command line to
// CreateProcess verbatim. exec's own argument escaping would turn the
// /v" ... " block into /v\" ... \", which the setup stub does not accept.
func setProcAttr(cmd *exec.Cmd, path string, args []string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow: true,
		CmdLine:    strings.Join(append([]string{quote(path)}, args...), " "),
	}
}
