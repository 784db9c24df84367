// pkg/service/service.go - starts and stops component services and waits for
// the service manager to confirm the transition.

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/windowsadmins/agentrepair/pkg/logging"
	"github.com/windowsadmins/agentrepair/pkg/probe"
)

// ErrServiceNotFound is returned when asked to start a service that does not exist.
var ErrServiceNotFound = errors.New("service does not exist")

// SCM is the subset of the service control manager driven by Starter.
type SCM interface {
	Status(name string) (probe.ServiceStatus, error)
	RequestStart(name string) error
	RequestStop(name string) error
	// RequestContinue resumes a paused service; other states are left alone.
	RequestContinue(name string) error
}

// Starter requests service transitions and polls until they are confirmed.
type Starter struct {
	scm          SCM
	pollInterval time.Duration
	timeout      time.Duration
	sleep        func(context.Context, time.Duration) error
}

// NewStarter creates a Starter. timeout bounds each wait for a transition.
func NewStarter(scm SCM, timeout time.Duration) *Starter {
	return &Starter{
		scm:          scm,
		pollInterval: 500 * time.Millisecond,
		timeout:      timeout,
		sleep:        sleepContext,
	}
}

// Start starts name if it exists and is not running, then blocks until the
// service manager reports it running. A service in a transitional state is
// sent a continue (which resumes it if paused) and is started as soon as it
// settles at Stopped.
func (s *Starter) Start(ctx context.Context, name string) error {
	status, err := s.scm.Status(name)
	if err != nil {
		return fmt.Errorf("querying service %q: %w", name, err)
	}
	if status == probe.Running {
		logging.Debug("Service already running", "service", name)
		return nil
	}

	var (
		deadline  = time.Now().Add(s.timeout)
		requested bool // start request sent
		pending   bool // transitional state seen since the request
		continued bool
	)
	for {
		switch status {
		case probe.Running:
			logging.Info("Service running", "service", name)
			return nil
		case probe.Absent:
			return fmt.Errorf("starting %q: %w", name, ErrServiceNotFound)
		case probe.Stopped:
			if requested && pending {
				return fmt.Errorf("service %q stopped again after the start request", name)
			}
			if !requested {
				logging.Info("Starting service", "service", name)
				if err := s.scm.RequestStart(name); err != nil {
					return fmt.Errorf("could not start service %q: %w", name, err)
				}
				requested = true
			}
		default:
			if requested {
				pending = true
			} else if !continued {
				logging.Info("Service is in a transitional state, sending continue", "service", name)
				if err := s.scm.RequestContinue(name); err != nil {
					return fmt.Errorf("could not resume service %q: %w", name, err)
				}
				continued = true
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for service %q to reach %s (last status %s)", name, probe.Running, status)
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return fmt.Errorf("waiting for service %q: %w", name, err)
		}
		if status, err = s.scm.Status(name); err != nil {
			return fmt.Errorf("could not retrieve status of service %q: %w", name, err)
		}
	}
}

// Stop stops name if it is running. An absent service is not an error.
func (s *Starter) Stop(ctx context.Context, name string) error {
	status, err := s.scm.Status(name)
	if err != nil {
		return fmt.Errorf("querying service %q: %w", name, err)
	}
	if status == probe.Absent || status == probe.Stopped {
		return nil
	}
	logging.Info("Stopping service", "service", name)
	if err := s.scm.RequestStop(name); err != nil {
		return fmt.Errorf("could not stop service %q: %w", name, err)
	}
	return s.waitFor(ctx, name, probe.Stopped)
}

func (s *Starter) waitFor(ctx context.Context, name string, want probe.ServiceStatus) error {
	deadline := time.Now().Add(s.timeout)
	for {
		status, err := s.scm.Status(name)
		if err != nil {
			return fmt.Errorf("could not retrieve status of service %q: %w", name, err)
		}
		if status == want {
			return nil
		}
		if status == probe.Absent {
			return fmt.Errorf("waiting for %q: %w", name, ErrServiceNotFound)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for service %q to reach %s (last status %s)", name, want, status)
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return fmt.Errorf("waiting for service %q: %w", name, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
