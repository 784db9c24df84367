// pkg/resolver/resolver.go - locates installer executables for the agent and
// Take Control, copying or downloading them into a scratch directory.

package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	goversion "github.com/hashicorp/go-version"

	"github.com/windowsadmins/agentrepair/pkg/config"
	"github.com/windowsadmins/agentrepair/pkg/download"
	"github.com/windowsadmins/agentrepair/pkg/fileinfo"
	"github.com/windowsadmins/agentrepair/pkg/logging"
	"github.com/windowsadmins/agentrepair/pkg/manifest"
	"github.com/windowsadmins/agentrepair/pkg/sysinfo"
)

// ErrNoSource is returned when no installer location is configured or reachable.
var ErrNoSource = errors.New("no installer source available")

// Source says where an artifact came from.
type Source int

const (
	SourceLocal Source = iota
	SourceShare
	SourceDownload
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceShare:
		return "share"
	case SourceDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Artifact is an installer ready to run. Artifacts copied or downloaded by
// the resolver live in their own temp directory, which Cleanup removes.
// Caller-supplied local files are never deleted.
type Artifact struct {
	Path   string
	Source Source

	tempDir string
}

// Cleanup removes the artifact's temp directory, if it has one.
func (a *Artifact) Cleanup() error {
	if a == nil || a.tempDir == "" {
		return nil
	}
	dir := a.tempDir
	a.tempDir = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove temp directory %s: %w", dir, err)
	}
	logging.Debug("Removed installer temp directory", "dir", dir)
	return nil
}

// ManifestFetcher retrieves the Take Control version-range manifest.
type ManifestFetcher interface {
	Fetch(ctx context.Context) (*manifest.Manifest, error)
}

// Resolver finds installers according to a configuration.
type Resolver struct {
	cfg  *config.Configuration
	http *http.Client

	// Host seams; the defaults query the running system.
	Domain       func() (string, bool, error)
	AgentVersion func(path string) (*goversion.Version, error)
	Manifest     ManifestFetcher
}

// New returns a Resolver for cfg. A nil client gets the download default.
func New(cfg *config.Configuration, client *http.Client) *Resolver {
	if client == nil {
		client = download.NewClient(0)
	}
	return &Resolver{
		cfg:          cfg,
		http:         client,
		Domain:       sysinfo.Domain,
		AgentVersion: fileinfo.ParsedVersion,
		Manifest:     &manifest.Client{HTTP: client, URL: cfg.TakeControlManifestURL},
	}
}

// AgentInstaller returns the agent setup executable. The caller-supplied
// local file wins; then the LAN share; then an HTTPS download.
func (r *Resolver) AgentInstaller(ctx context.Context) (*Artifact, error) {
	if r.cfg.LocalFile != "" {
		info, err := os.Stat(r.cfg.LocalFile)
		if err != nil {
			return nil, fmt.Errorf("local installer: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("local installer %s is not a regular file", r.cfg.LocalFile)
		}
		logging.Info("Using caller-supplied installer", "path", r.cfg.LocalFile)
		return &Artifact{Path: r.cfg.LocalFile, Source: SourceLocal}, nil
	}

	if share := r.sharePath(); share != "" {
		a, err := r.fromShare(share)
		if err == nil {
			return a, nil
		}
		logging.Warn("Share installer unavailable, falling back to download", "path", share, "error", err)
	}

	url := r.cfg.AgentDownloadURL()
	if url == "" {
		return nil, fmt.Errorf("agent installer: %w (set AgentInstallerURL or --agent-version, or publish %s on a share)",
			ErrNoSource, r.cfg.AgentInstallerFileName)
	}
	return r.fromURL(ctx, url, r.cfg.AgentInstallerFileName, r.cfg.AgentInstallerSHA256)
}

// TakeControlInstaller picks the Take Control installer compatible with the
// installed agent's file version and downloads it.
func (r *Resolver) TakeControlInstaller(ctx context.Context) (*Artifact, error) {
	v, err := r.AgentVersion(r.cfg.AgentBinaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent version: %w", err)
	}
	logging.Info("Installed agent version", "version", v.Original(), "path", r.cfg.AgentBinaryPath)

	m, err := r.Manifest.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	rng, uri, err := m.Resolve(v, r.cfg.TakeControlInstallerType)
	if err != nil {
		return nil, err
	}
	logging.Info("Selected Take Control installer", "range", rng.String(), "type", r.cfg.TakeControlInstallerType, "uri", uri)
	return r.fromURL(ctx, uri, "", "")
}

func (r *Resolver) sharePath() string {
	if r.cfg.AgentSharePath != "" {
		return r.cfg.AgentSharePath
	}
	if r.Domain == nil {
		return ""
	}
	domain, joined, err := r.Domain()
	if err != nil {
		logging.Warn("Could not determine domain membership", "error", err)
		return ""
	}
	if !joined {
		logging.Debug("Host is not domain-joined, skipping NETLOGON share")
		return ""
	}
	p, err := sysinfo.NetlogonPath(domain, r.cfg.AgentInstallerFileName)
	if err != nil {
		return ""
	}
	return p
}

func (r *Resolver) fromShare(share string) (*Artifact, error) {
	if _, err := os.Stat(share); err != nil {
		return nil, err
	}
	dir, err := r.tempDir("agent-")
	if err != nil {
		return nil, err
	}
	a := &Artifact{Source: SourceShare, tempDir: dir}
	a.Path, err = download.Copy(share, dir)
	if err == nil {
		err = verify(a.Path, r.cfg.AgentInstallerSHA256)
	}
	if err != nil {
		a.Cleanup()
		return nil, err
	}
	return a, nil
}

func (r *Resolver) fromURL(ctx context.Context, url, name, sha string) (*Artifact, error) {
	dir, err := r.tempDir("download-")
	if err != nil {
		return nil, err
	}
	a := &Artifact{Source: SourceDownload, tempDir: dir}
	a.Path, err = download.File(ctx, r.http, url, dir, name)
	if err == nil {
		err = verify(a.Path, sha)
	}
	if err != nil {
		a.Cleanup()
		return nil, err
	}
	return a, nil
}

func (r *Resolver) tempDir(prefix string) (string, error) {
	base := r.cfg.TempPath
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp path %s: %w", base, err)
	}
	dir, err := os.MkdirTemp(base, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	return dir, nil
}

func verify(path, sha string) error {
	if sha == "" {
		return nil
	}
	ok, err := download.Verify(path, sha)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("hash mismatch for %s", path)
	}
	return nil
}
