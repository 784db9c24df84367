// pkg/logging/session.go - end-of-run summary written next to the run log.

package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ComponentOutcome is one managed component's result for the run.
type ComponentOutcome struct {
	Component string   `json:"component"`
	Decision  string   `json:"decision"`
	Installed bool     `json:"installed"`
	Started   []string `json:"started,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// SessionSummary is written to session.json when the run ends.
type SessionSummary struct {
	SessionID  string             `json:"session_id"`
	Status     string             `json:"status"` // completed, failed
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time"`
	Duration   string             `json:"duration"`
	ExitCode   int                `json:"exit_code"`
	Components []ComponentOutcome `json:"components"`
}

// EndSession writes session.json into the current run directory.
func EndSession(status string, exitCode int, start time.Time, components []ComponentOutcome) error {
	instanceMu.RLock()
	l := instance
	instanceMu.RUnlock()
	if l == nil {
		return fmt.Errorf("logging not initialized")
	}

	end := l.now()
	summary := SessionSummary{
		SessionID:  l.sessionID,
		Status:     status,
		StartTime:  start,
		EndTime:    end,
		Duration:   end.Sub(start).Round(time.Millisecond).String(),
		ExitCode:   exitCode,
		Components: components,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session summary: %w", err)
	}
	return os.WriteFile(filepath.Join(l.logDir, "session.json"), data, 0644)
}
