// pkg/logging/logging.go - timestamped run logging for agentrepair.
//
// Every invocation gets its own directory under the base log directory
// (YYYY-MM-DD-HHMMss) holding:
// - run.log: human readable lines, also mirrored to the console
// - events.jsonl: one JSON object per log call for external tooling
// Older run directories beyond the retention count are removed at Init.

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/windowsadmins/agentrepair/pkg/version"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a LogLevel. Unknown values yield LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LogEntry is the structured form written to events.jsonl.
type LogEntry struct {
	Time       int64                  `json:"time"`
	Timestamp  string                 `json:"timestamp"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	PID        int                    `json:"pid"`
	Hostname   string                 `json:"hostname"`
	Version    string                 `json:"version"`
	SessionID  string                 `json:"session_id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// LoggerConfig holds configuration for the run logger.
type LoggerConfig struct {
	BaseDir       string   // Base logging directory
	Component     string   // Tool name recorded on every entry
	Level         LogLevel // Most verbose level written
	RetainRuns    int      // Run directories to keep, including this one; <=0 keeps all
	EnableJSON    bool     // Write events.jsonl
	EnableConsole bool     // Mirror run.log lines to stdout
}

// runLogger writes one run's log files.
type runLogger struct {
	mu        sync.Mutex
	logger    *log.Logger
	cfg       LoggerConfig
	logFile   *os.File
	jsonFile  *os.File
	logDir    string
	hostname  string
	version   string
	sessionID string
	now       func() time.Time
}

var (
	instanceMu sync.RWMutex
	instance   *runLogger
)

// Init (re)initializes the package logger. A previously initialized logger is
// closed first, so Init may be called again after configuration changes.
func Init(cfg LoggerConfig) error {
	l, err := newRunLogger(cfg, time.Now)
	if err != nil {
		return err
	}
	instanceMu.Lock()
	prev := instance
	instance = l
	instanceMu.Unlock()
	if prev != nil {
		prev.close()
	}
	return nil
}

func newRunLogger(cfg LoggerConfig, now func() time.Time) (*runLogger, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("log base directory is empty")
	}
	if cfg.Component == "" {
		cfg.Component = version.Version().AppName
	}
	start := now()

	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base log directory: %w", err)
	}
	logDir := filepath.Join(cfg.BaseDir, start.Format("2006-01-02-150405"))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory %s: %w", logDir, err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	l := &runLogger{
		cfg:       cfg,
		logDir:    logDir,
		hostname:  hostname,
		version:   version.Version().Version,
		sessionID: fmt.Sprintf("%s-%d", cfg.Component, start.Unix()),
		now:       now,
	}

	var err error
	l.logFile, err = os.OpenFile(filepath.Join(logDir, "run.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	if cfg.EnableJSON {
		l.jsonFile, err = os.OpenFile(filepath.Join(logDir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			l.logFile.Close()
			return nil, fmt.Errorf("failed to open events log: %w", err)
		}
	}

	var w io.Writer = l.logFile
	if cfg.EnableConsole {
		w = io.MultiWriter(os.Stdout, l.logFile)
	}
	l.logger = log.New(w, "", 0)
	return l, nil
}

// PruneRuns removes run directories beyond the configured retention count.
// Init never deletes anything; callers prune once the run is known to go
// ahead.
func PruneRuns() {
	instanceMu.RLock()
	l := instance
	instanceMu.RUnlock()
	if l == nil {
		return
	}
	pruneRunDirs(l.cfg.BaseDir, l.cfg.RetainRuns)
}

// pruneRunDirs keeps the newest `keep` timestamped run directories.
func pruneRunDirs(baseDir string, keep int) {
	if keep <= 0 {
		return
	}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return
	}
	var runs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse("2006-01-02-150405", e.Name()); err == nil {
			runs = append(runs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	for i := keep; i < len(runs); i++ {
		os.RemoveAll(filepath.Join(baseDir, runs[i]))
	}
}

func (l *runLogger) logMessage(level LogLevel, message string, keyValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.cfg.Level || l.logger == nil {
		return
	}

	properties := make(map[string]interface{}, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		v := keyValues[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		properties[fmt.Sprintf("%v", keyValues[i])] = v
	}

	now := l.now()
	l.logger.Printf("[%s] %-5s %s%s", now.Format("2006-01-02 15:04:05"), level.String(), message, formatKeyValues(keyValues))

	if l.jsonFile != nil {
		entry := LogEntry{
			Time:       now.Unix(),
			Timestamp:  now.Format(time.RFC3339),
			Level:      level.String(),
			Message:    message,
			Component:  l.cfg.Component,
			PID:        os.Getpid(),
			Hostname:   l.hostname,
			Version:    l.version,
			SessionID:  l.sessionID,
			Properties: properties,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.jsonFile.Write(append(data, '\n'))
		}
	}
}

// formatKeyValues renders "k=v" pairs; an odd trailing key is dropped.
func formatKeyValues(keyValues []interface{}) string {
	if len(keyValues) < 2 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(keyValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyValues[i], keyValues[i+1])
	}
	return b.String()
}

func (l *runLogger) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
	if l.jsonFile != nil {
		l.jsonFile.Close()
		l.jsonFile = nil
	}
	l.logger = nil
}

func emit(level LogLevel, message string, keyValues ...interface{}) {
	instanceMu.RLock()
	l := instance
	instanceMu.RUnlock()
	if l == nil {
		if level <= LevelWarn {
			log.Printf("%s %s%s", level.String(), message, formatKeyValues(keyValues))
		}
		return
	}
	l.logMessage(level, message, keyValues...)
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) { emit(LevelInfo, message, keyValues...) }

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) { emit(LevelDebug, message, keyValues...) }

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) { emit(LevelWarn, message, keyValues...) }

// Error logs error messages.
func Error(message string, keyValues ...interface{}) { emit(LevelError, message, keyValues...) }

// CloseLogger closes the run log files.
func CloseLogger() {
	instanceMu.Lock()
	l := instance
	instance = nil
	instanceMu.Unlock()
	if l != nil {
		l.close()
	}
}

// GetCurrentLogDir returns the current run's log directory, or "" before Init.
func GetCurrentLogDir() string {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	if instance == nil {
		return ""
	}
	return instance.logDir
}
