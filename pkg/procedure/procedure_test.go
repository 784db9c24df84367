package procedure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/agentrepair/pkg/config"
	"github.com/windowsadmins/agentrepair/pkg/installer"
	"github.com/windowsadmins/agentrepair/pkg/manifest"
	"github.com/windowsadmins/agentrepair/pkg/planner"
	"github.com/windowsadmins/agentrepair/pkg/probe"
	"github.com/windowsadmins/agentrepair/pkg/resolver"
)

const (
	agentBinary  = `C:\Program Files (x86)\N-able Technologies\Windows Agent\bin\agent.exe`
	agentService = "Windows Agent Service"
	maintService = "Windows Agent Maintenance Service"
	customerID   = "1042"
	token        = "6f9619ff-8b86-d011-b42d-00c04fc964ff"
)

// fakeHost stands in for the file system, the service manager and the
// installer process.
type fakeHost struct {
	binaries map[string]bool
	services map[string]probe.ServiceStatus

	probeErr  error
	startErr  error
	exitCode  int
	installs  []string // service status after a successful install
	launches  [][]string
	starts    []string
	installed bool
}

func newHost() *fakeHost {
	return &fakeHost{
		binaries: map[string]bool{},
		services: map[string]probe.ServiceStatus{},
	}
}

func (h *fakeHost) healthy() *fakeHost {
	h.binaries[agentBinary] = true
	h.services[agentService] = probe.Running
	h.services[maintService] = probe.Running
	return h
}

func (h *fakeHost) Probe(component, binaryPath string, names ...string) (probe.ComponentState, error) {
	if h.probeErr != nil {
		return probe.ComponentState{}, h.probeErr
	}
	st := probe.ComponentState{Component: component, BinaryPath: binaryPath, BinaryPresent: h.binaries[binaryPath]}
	for _, n := range names {
		status, ok := h.services[n]
		if !ok {
			status = probe.Absent
		}
		st.Services = append(st.Services, probe.ServiceState{Name: n, Status: status})
	}
	return st, nil
}

func (h *fakeHost) Start(_ context.Context, name string) error {
	h.starts = append(h.starts, name)
	if h.startErr != nil {
		return h.startErr
	}
	h.services[name] = probe.Running
	return nil
}

func (h *fakeHost) Launch(_ context.Context, path string, args []string) (int, error) {
	h.launches = append(h.launches, append([]string{path}, args...))
	if h.exitCode == 0 || h.exitCode == installer.ExitSuccessRebootRequired {
		h.installed = true
		h.binaries[agentBinary] = true
		for _, n := range h.installs {
			h.services[n] = probe.Stopped
		}
	}
	return h.exitCode, nil
}

func (h *fakeHost) procedure() *Procedure {
	return New(h, h, installer.NewRunner(h, nil))
}

type countingResolver struct {
	calls    int
	artifact *resolver.Artifact
	err      error
}

func (r *countingResolver) resolve(context.Context) (*resolver.Artifact, error) {
	r.calls++
	return r.artifact, r.err
}

func agentComponent(res *countingResolver, force bool) Component {
	return Component{
		Name:       "Agent",
		BinaryPath: agentBinary,
		Services:   []string{agentService, maintService},
		Force:      force,
		Resolve:    res.resolve,
		Arguments: func() []string {
			return installer.AgentArguments(installer.AgentParams{
				CustomerID:        customerID,
				RegistrationToken: token,
				Server:            "ncentral.example.com",
				HTTPS:             true,
			})
		},
		Secrets: []string{token},
	}
}

func localArtifact(t *testing.T) *resolver.Artifact {
	path := filepath.Join(t.TempDir(), "WindowsAgentSetup.exe")
	require.NoError(t, os.WriteFile(path, []byte("MZ"), 0644))
	return &resolver.Artifact{Path: path, Source: resolver.SourceLocal}
}

func steps(o Outcome) []Step {
	var out []Step
	for _, s := range o.Steps {
		out = append(out, s.Step)
	}
	return out
}

func TestNotInstalledInstallsAndStarts(t *testing.T) {
	h := newHost()
	h.installs = []string{agentService, maintService}
	res := &countingResolver{artifact: localArtifact(t)}

	out := h.procedure().Run(context.Background(), agentComponent(res, false))
	require.NoError(t, out.Err())

	assert.Equal(t, planner.InstallDecision{ShouldInstall: true, Reason: planner.NotInstalled}, out.Decision)
	assert.True(t, out.Installed)
	assert.Equal(t, 1, res.calls)
	require.Len(t, h.launches, 1)
	cmd := strings.Join(h.launches[0], " ")
	assert.Contains(t, cmd, "CUSTOMERID="+customerID)
	assert.Contains(t, cmd, "REGISTRATION_TOKEN="+token)

	assert.Equal(t, []string{agentService, maintService}, out.Started)
	assert.Equal(t, []Step{StepProbe, StepDecide, StepResolve, StepCleanup, StepInstall, StepVerify, StepStart, StepStart}, steps(out))
}

func TestStoppedServiceIsStartedWithoutReinstall(t *testing.T) {
	h := newHost().healthy()
	h.services[maintService] = probe.Stopped
	res := &countingResolver{artifact: localArtifact(t)}

	out := h.procedure().Run(context.Background(), agentComponent(res, false))
	require.NoError(t, out.Err())

	assert.False(t, out.Decision.ShouldInstall)
	assert.Equal(t, 0, res.calls)
	assert.Empty(t, h.launches)
	assert.Equal(t, []string{maintService}, h.starts)
	assert.Equal(t, probe.Running, h.services[maintService])
}

func TestHealthySystemIsIdempotent(t *testing.T) {
	h := newHost().healthy()
	h.services[agentService] = probe.Stopped
	res := &countingResolver{artifact: localArtifact(t)}
	p := h.procedure()

	first := p.Run(context.Background(), agentComponent(res, false))
	second := p.Run(context.Background(), agentComponent(res, false))

	require.NoError(t, first.Err())
	require.NoError(t, second.Err())
	assert.False(t, first.Decision.ShouldInstall)
	assert.False(t, second.Decision.ShouldInstall)
	assert.Equal(t, []string{agentService}, h.starts, "only the first run starts anything")
	assert.Empty(t, h.launches)
}

func TestForceReinstallsHealthySystem(t *testing.T) {
	h := newHost().healthy()
	res := &countingResolver{artifact: localArtifact(t)}

	out := h.procedure().Run(context.Background(), agentComponent(res, true))
	require.NoError(t, out.Err())
	assert.Equal(t, planner.ForcedByCaller, out.Decision.Reason)
	assert.Len(t, h.launches, 1)
}

func TestLocalFileSurvivesInstall(t *testing.T) {
	h := newHost()
	h.installs = []string{agentService, maintService}
	a := localArtifact(t)
	res := &countingResolver{artifact: a}

	out := h.procedure().Run(context.Background(), agentComponent(res, false))
	require.NoError(t, out.Err())
	assert.Equal(t, a.Path, h.launches[0][0])
	_, err := os.Stat(a.Path)
	assert.NoError(t, err)
}

func TestInstallerFailureStillCleansUp(t *testing.T) {
	h := newHost()
	h.exitCode = 1603

	cfg := config.GetDefaultConfig()
	cfg.TempPath = filepath.Join(t.TempDir(), "scratch")
	cfg.AgentSharePath = filepath.Join(t.TempDir(), "WindowsAgentSetup.exe")
	require.NoError(t, os.WriteFile(cfg.AgentSharePath, []byte("MZ"), 0644))
	r := resolver.New(cfg, nil)

	c := agentComponent(&countingResolver{}, false)
	c.Resolve = r.AgentInstaller

	out := h.procedure().Run(context.Background(), c)
	err := out.Err()
	require.Error(t, err)
	assert.Equal(t, KindExecution, KindOf(err))
	var exitErr *installer.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1603, exitErr.Code)

	entries, err := os.ReadDir(cfg.TempPath)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp copy removed after failed install")
	assert.Contains(t, steps(out), StepCleanup)
}

func TestRebootRequiredCountsAsSuccess(t *testing.T) {
	h := newHost()
	h.exitCode = installer.ExitSuccessRebootRequired
	h.installs = []string{agentService, maintService}
	res := &countingResolver{artifact: localArtifact(t)}

	out := h.procedure().Run(context.Background(), agentComponent(res, false))
	require.NoError(t, out.Err())
	assert.True(t, out.RebootRequired)
}

func TestResolutionFailure(t *testing.T) {
	h := newHost()
	res := &countingResolver{err: manifest.ErrNoCompatibleVersion}

	out := h.procedure().Run(context.Background(), agentComponent(res, false))
	err := out.Err()
	assert.Equal(t, KindResolution, KindOf(err))
	assert.ErrorIs(t, err, manifest.ErrNoCompatibleVersion)
	assert.Empty(t, h.launches)
}

func TestProbeFailure(t *testing.T) {
	h := newHost()
	h.probeErr = errors.New("access is denied")

	out := h.procedure().Run(context.Background(), agentComponent(&countingResolver{}, false))
	assert.Equal(t, KindProbe, KindOf(out.Err()))
	assert.Equal(t, []Step{StepProbe}, steps(out))
}

func TestServiceStartFailure(t *testing.T) {
	h := newHost().healthy()
	h.services[agentService] = probe.Stopped
	h.startErr = errors.New("timeout waiting for service")

	out := h.procedure().Run(context.Background(), agentComponent(&countingResolver{}, false))
	assert.Equal(t, KindServiceStart, KindOf(out.Err()))
	assert.Empty(t, out.Started)
}

func TestVerifyCatchesMissingService(t *testing.T) {
	h := newHost()
	h.installs = []string{agentService} // maintenance service never appears
	res := &countingResolver{artifact: localArtifact(t)}

	out := h.procedure().Run(context.Background(), agentComponent(res, false))
	err := out.Err()
	require.Error(t, err)
	assert.Equal(t, KindExecution, KindOf(err))
	assert.Contains(t, err.Error(), maintService)
	assert.True(t, out.Installed)
}

func TestReport(t *testing.T) {
	ok := Outcome{Component: "Agent", Steps: []StepResult{{Step: StepProbe}}}
	assert.NoError(t, Report(ok))

	bad := Outcome{Component: "Take Control", Steps: []StepResult{
		{Step: StepResolve, Err: &StepError{Kind: KindResolution, Component: "Take Control", Op: "resolve", Err: manifest.ErrAmbiguousVersionRange}},
	}}
	err := Report(ok, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrAmbiguousVersionRange)
	assert.Contains(t, err.Error(), "Take Control")

	s := bad.Summary()
	assert.Equal(t, "Take Control", s.Component)
	assert.NotEmpty(t, s.Error)
}
