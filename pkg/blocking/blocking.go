// pkg/blocking/blocking.go - detects installer processes that are already
// running, so a second copy is never launched on top of them.

package blocking

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// ProcessLister returns the image names (or full paths) of running processes.
type ProcessLister func() ([]string, error)

// SystemProcesses lists running processes via gopsutil.
func SystemProcesses() ([]string, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to get process list: %w", err)
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Detector matches process names against an image.
type Detector struct {
	list ProcessLister
}

// NewDetector returns a Detector over list; nil uses SystemProcesses.
func NewDetector(list ProcessLister) *Detector {
	if list == nil {
		list = SystemProcesses
	}
	return &Detector{list: list}
}

// IsRunning reports whether a process with the given image is running.
// A bare name matches with or without the .exe suffix; a full path is
// reduced to its base name. Comparison is case-insensitive.
func (d *Detector) IsRunning(image string) (bool, error) {
	want := normalize(image)
	if want == "" {
		return false, nil
	}
	names, err := d.list()
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if normalize(n) == want {
			logging.Debug("Found running process", "image", image, "process", n)
			return true, nil
		}
	}
	return false, nil
}

// Running returns the subset of images that currently have a process.
func (d *Detector) Running(images ...string) ([]string, error) {
	var running []string
	for _, img := range images {
		ok, err := d.IsRunning(img)
		if err != nil {
			return nil, err
		}
		if ok {
			running = append(running, img)
		}
	}
	return running, nil
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".exe")
}
