// pkg/probe/probe.go - inspects the install and run state of a managed component.

package probe

import (
	"errors"
	"fmt"
	"os"

	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// ServiceStatus is the coarse run state of a Windows service.
type ServiceStatus int

const (
	Absent ServiceStatus = iota
	Stopped
	Running
	// Unknown covers transitional and paused states.
	Unknown
)

func (s ServiceStatus) String() string {
	switch s {
	case Absent:
		return "Absent"
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	default:
		return "Unknown"
	}
}

// ServiceState pairs a service name with its observed status.
type ServiceState struct {
	Name   string
	Status ServiceStatus
}

// ComponentState is a fresh snapshot of one component. It is never persisted.
type ComponentState struct {
	Component     string
	BinaryPath    string
	BinaryPresent bool
	Services      []ServiceState
}

// Status returns the observed status of the named service, Absent if the
// service was not part of the probe.
func (c ComponentState) Status(name string) ServiceStatus {
	for _, s := range c.Services {
		if s.Name == name {
			return s.Status
		}
	}
	return Absent
}

// Healthy reports whether the binary exists and every service is running.
func (c ComponentState) Healthy() bool {
	if !c.BinaryPresent {
		return false
	}
	for _, s := range c.Services {
		if s.Status != Running {
			return false
		}
	}
	return true
}

// ServiceQuerier reports service status. A service that does not exist must
// be reported as Absent with a nil error.
type ServiceQuerier interface {
	Status(name string) (ServiceStatus, error)
}

// Prober inspects the file system and the service manager.
type Prober struct {
	services ServiceQuerier
	stat     func(string) (os.FileInfo, error)
}

// New creates a Prober backed by the given service querier.
func New(services ServiceQuerier) *Prober {
	return &Prober{services: services, stat: os.Stat}
}

// Probe reports presence of binaryPath and the status of each service.
// Absence is an expected outcome; only access failures are returned as errors.
func (p *Prober) Probe(component, binaryPath string, serviceNames ...string) (ComponentState, error) {
	state := ComponentState{Component: component, BinaryPath: binaryPath}

	present, err := p.binaryPresent(binaryPath)
	if err != nil {
		return state, fmt.Errorf("checking %s binary %s: %w", component, binaryPath, err)
	}
	state.BinaryPresent = present

	for _, name := range serviceNames {
		status, err := p.services.Status(name)
		if err != nil {
			return state, fmt.Errorf("querying %s service %q: %w", component, name, err)
		}
		state.Services = append(state.Services, ServiceState{Name: name, Status: status})
	}

	logging.Debug("Probed component",
		"component", component,
		"binary", binaryPath,
		"binary_present", state.BinaryPresent,
		"services", state.Services,
	)
	return state, nil
}

func (p *Prober) binaryPresent(path string) (bool, error) {
	info, err := p.stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
