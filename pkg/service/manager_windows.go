//go:build windows

package service

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/windowsadmins/agentrepair/pkg/probe"
)

// Manager talks to the Windows service control manager. It implements both
// probe.ServiceQuerier and SCM.
type Manager struct {
	m *mgr.Mgr
}

// Connect opens a handle to the local service control manager.
func Connect() (*Manager, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, fmt.Errorf("connecting to service control manager: %w", err)
	}
	return &Manager{m: m}, nil
}

// Close releases the service control manager handle.
func (m *Manager) Close() error {
	return m.m.Disconnect()
}

// Status maps the SCM state of name onto probe.ServiceStatus.
func (m *Manager) Status(name string) (probe.ServiceStatus, error) {
	s, err := m.m.OpenService(name)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return probe.Absent, nil
		}
		return probe.Unknown, fmt.Errorf("could not access service: %w", err)
	}
	defer s.Close()

	st, err := s.Query()
	if err != nil {
		return probe.Unknown, fmt.Errorf("could not retrieve service status: %w", err)
	}
	switch st.State {
	case svc.Running:
		return probe.Running, nil
	case svc.Stopped:
		return probe.Stopped, nil
	default:
		return probe.Unknown, nil
	}
}

// RequestStart asks the SCM to start name without waiting.
func (m *Manager) RequestStart(name string) error {
	s, err := m.m.OpenService(name)
	if err != nil {
		return fmt.Errorf("could not access service: %w", err)
	}
	defer s.Close()
	if err := s.Start(); err != nil && !errors.Is(err, windows.ERROR_SERVICE_ALREADY_RUNNING) {
		return err
	}
	return nil
}

// RequestStop sends a stop control to name without waiting.
func (m *Manager) RequestStop(name string) error {
	s, err := m.m.OpenService(name)
	if err != nil {
		return fmt.Errorf("could not access service: %w", err)
	}
	defer s.Close()
	if _, err := s.Control(svc.Stop); err != nil && !errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
		return fmt.Errorf("could not send stop control: %w", err)
	}
	return nil
}

// RequestContinue sends a continue control to name if it is paused.
func (m *Manager) RequestContinue(name string) error {
	s, err := m.m.OpenService(name)
	if err != nil {
		return fmt.Errorf("could not access service: %w", err)
	}
	defer s.Close()
	st, err := s.Query()
	if err != nil {
		return fmt.Errorf("could not retrieve service status: %w", err)
	}
	if st.State != svc.Paused {
		return nil
	}
	if _, err := s.Control(svc.Continue); err != nil {
		return fmt.Errorf("could not send continue control: %w", err)
	}
	return nil
}
