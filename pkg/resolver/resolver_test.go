package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	goversion "github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/agentrepair/pkg/config"
	"github.com/windowsadmins/agentrepair/pkg/manifest"
)

var payload = []byte("MZ installer bytes")

func testConfig(t *testing.T) *config.Configuration {
	cfg := config.GetDefaultConfig()
	cfg.Server = "ncentral.example.com"
	cfg.TempPath = filepath.Join(t.TempDir(), "scratch")
	return cfg
}

func notJoined() (string, bool, error) { return "", false, nil }

func tlsServer(t *testing.T) *httptest.Server {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAgentInstallerLocalFileIsNeverDeleted(t *testing.T) {
	cfg := testConfig(t)
	cfg.LocalFile = filepath.Join(t.TempDir(), "WindowsAgentSetup.exe")
	require.NoError(t, os.WriteFile(cfg.LocalFile, payload, 0644))

	r := New(cfg, nil)
	r.Domain = notJoined
	a, err := r.AgentInstaller(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.LocalFile, a.Path)
	assert.Equal(t, SourceLocal, a.Source)

	require.NoError(t, a.Cleanup())
	_, err = os.Stat(cfg.LocalFile)
	assert.NoError(t, err)
}

func TestAgentInstallerLocalFileMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.LocalFile = filepath.Join(t.TempDir(), "nope.exe")
	_, err := New(cfg, nil).AgentInstaller(context.Background())
	assert.Error(t, err)
}

func TestAgentInstallerFromShare(t *testing.T) {
	cfg := testConfig(t)
	cfg.AgentSharePath = filepath.Join(t.TempDir(), "WindowsAgentSetup.exe")
	require.NoError(t, os.WriteFile(cfg.AgentSharePath, payload, 0644))
	sum := sha256.Sum256(payload)
	cfg.AgentInstallerSHA256 = hex.EncodeToString(sum[:])

	a, err := New(cfg, nil).AgentInstaller(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceShare, a.Source)
	assert.NotEqual(t, cfg.AgentSharePath, a.Path)

	dir := filepath.Dir(a.Path)
	require.NoError(t, a.Cleanup())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	// The share copy stays.
	_, err = os.Stat(cfg.AgentSharePath)
	assert.NoError(t, err)
}

func TestAgentInstallerNetlogonLookup(t *testing.T) {
	cfg := testConfig(t)
	var asked bool
	r := New(cfg, nil)
	r.Domain = func() (string, bool, error) {
		asked = true
		return "corp.example.com", true, nil
	}
	assert.Equal(t, `\\corp.example.com\NETLOGON\WindowsAgentSetup.exe`, r.sharePath())
	assert.True(t, asked)
}

func TestAgentInstallerFallsBackToDownload(t *testing.T) {
	srv := tlsServer(t)
	cfg := testConfig(t)
	cfg.AgentSharePath = filepath.Join(t.TempDir(), "missing", "WindowsAgentSetup.exe")
	cfg.AgentInstallerURL = srv.URL + "/download/2023.1.0.1/winnt/N-central/WindowsAgentSetup.exe"

	a, err := New(cfg, srv.Client()).AgentInstaller(context.Background())
	require.NoError(t, err)
	defer a.Cleanup()
	assert.Equal(t, SourceDownload, a.Source)
	assert.Equal(t, "WindowsAgentSetup.exe", filepath.Base(a.Path))

	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestAgentInstallerHashMismatchCleansUp(t *testing.T) {
	srv := tlsServer(t)
	cfg := testConfig(t)
	cfg.AgentInstallerURL = srv.URL + "/WindowsAgentSetup.exe"
	cfg.AgentInstallerSHA256 = "0000000000000000000000000000000000000000000000000000000000000000"

	r := New(cfg, srv.Client())
	r.Domain = notJoined
	_, err := r.AgentInstaller(context.Background())
	require.Error(t, err)

	entries, err := os.ReadDir(cfg.TempPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAgentInstallerNoSource(t *testing.T) {
	cfg := testConfig(t)
	r := New(cfg, nil)
	r.Domain = notJoined
	_, err := r.AgentInstaller(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
}

type stubManifest struct {
	m   *manifest.Manifest
	err error
}

func (s stubManifest) Fetch(context.Context) (*manifest.Manifest, error) { return s.m, s.err }

func rangesFor(t *testing.T, uri string) *manifest.Manifest {
	doc := fmt.Sprintf(`<TakeControlRanges>
  <Range Name="old" Minimum="12.0.0.0" Maximum="2021.1.0.0"><File Type="MSPA4NCentral" URI="https://unused.example.com/old.exe"/></Range>
  <Range Name="new" Minimum="2021.1.0.0" Maximum="2099.1.0.0"><File Type="MSPA4NCentral" URI="%s"/></Range>
</TakeControlRanges>`, uri)
	m, err := manifest.Parse([]byte(doc))
	require.NoError(t, err)
	return m
}

func fixedVersion(s string) func(string) (*goversion.Version, error) {
	return func(string) (*goversion.Version, error) { return goversion.NewVersion(s) }
}

func TestTakeControlInstaller(t *testing.T) {
	srv := tlsServer(t)
	cfg := testConfig(t)

	r := New(cfg, srv.Client())
	r.AgentVersion = fixedVersion("2023.1.0.55")
	r.Manifest = stubManifest{m: rangesFor(t, srv.URL+"/tc/MSPA4NCentral-7.00.exe")}

	a, err := r.TakeControlInstaller(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MSPA4NCentral-7.00.exe", filepath.Base(a.Path))
	require.NoError(t, a.Cleanup())
	_, err = os.Stat(a.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestTakeControlInstallerNoCompatibleRange(t *testing.T) {
	cfg := testConfig(t)
	r := New(cfg, nil)
	r.AgentVersion = fixedVersion("11.0.0.0")
	r.Manifest = stubManifest{m: rangesFor(t, "https://unused.example.com/tc.exe")}

	_, err := r.TakeControlInstaller(context.Background())
	assert.ErrorIs(t, err, manifest.ErrNoCompatibleVersion)
}

func TestTakeControlInstallerPropagatesFailures(t *testing.T) {
	cfg := testConfig(t)

	r := New(cfg, nil)
	r.AgentVersion = func(string) (*goversion.Version, error) { return nil, errors.New("no version resource") }
	_, err := r.TakeControlInstaller(context.Background())
	assert.Error(t, err)

	r.AgentVersion = fixedVersion("2023.1.0.0")
	r.Manifest = stubManifest{err: errors.New("unexpected HTTP status code fetching version manifest: 503")}
	_, err = r.TakeControlInstaller(context.Background())
	assert.ErrorContains(t, err, "503")
}

func TestArtifactCleanupIsIdempotent(t *testing.T) {
	var a *Artifact
	assert.NoError(t, a.Cleanup())

	dir := t.TempDir()
	b := &Artifact{Path: filepath.Join(dir, "x.exe"), tempDir: dir}
	assert.NoError(t, b.Cleanup())
	assert.NoError(t, b.Cleanup())
}
