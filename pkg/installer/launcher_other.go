//go:build !windows

package installer

import "os/exec"

func setProcAttr(*exec.Cmd, string, []string) {}
