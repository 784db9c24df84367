//go:build !windows

package service

import (
	"errors"

	"github.com/windowsadmins/agentrepair/pkg/probe"
)

var errUnsupported = errors.New("service control manager is only available on Windows")

// Manager is a stub on non-Windows platforms.
type Manager struct{}

// Connect always fails on non-Windows platforms.
func Connect() (*Manager, error) { return nil, errUnsupported }

func (m *Manager) Close() error                               { return nil }
func (m *Manager) Status(string) (probe.ServiceStatus, error) { return probe.Unknown, errUnsupported }
func (m *Manager) RequestStart(string) error                  { return errUnsupported }
func (m *Manager) RequestStop(string) error                   { return errUnsupported }
func (m *Manager) RequestContinue(string) error               { return errUnsupported }
