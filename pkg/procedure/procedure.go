// pkg/procedure/procedure.go - runs the repair procedure for one managed
// component: probe, decide, start or install, verify.

package procedure

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/windowsadmins/agentrepair/pkg/installer"
	"github.com/windowsadmins/agentrepair/pkg/logging"
	"github.com/windowsadmins/agentrepair/pkg/planner"
	"github.com/windowsadmins/agentrepair/pkg/probe"
	"github.com/windowsadmins/agentrepair/pkg/resolver"
)

// Step names the stage a StepResult belongs to.
type Step string

const (
	StepProbe   Step = "probe"
	StepDecide  Step = "decide"
	StepStart   Step = "start-service"
	StepResolve Step = "resolve"
	StepInstall Step = "install"
	StepCleanup Step = "cleanup"
	StepVerify  Step = "verify"
)

// StepResult records one step. Success is Err == nil.
type StepResult struct {
	Component string
	Step      Step
	Detail    string
	Err       error
}

// OK reports whether the step succeeded.
func (r StepResult) OK() bool { return r.Err == nil }

// Component describes one managed product.
type Component struct {
	Name       string
	BinaryPath string
	Services   []string
	Force      bool

	// Resolve acquires the installer; Arguments builds its switches.
	Resolve   func(ctx context.Context) (*resolver.Artifact, error)
	Arguments func() []string
	// Secrets are masked in logged command lines.
	Secrets []string
}

// Outcome is the full result of running one component.
type Outcome struct {
	Component      string
	Decision       planner.InstallDecision
	Installed      bool
	RebootRequired bool
	Started        []string
	Steps          []StepResult
}

// Err returns the failing step's error, or nil.
func (o Outcome) Err() error {
	for _, s := range o.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Prober inspects a component.
type Prober interface {
	Probe(component, binaryPath string, serviceNames ...string) (probe.ComponentState, error)
}

// ServiceStarter starts a service and waits for it to run.
type ServiceStarter interface {
	Start(ctx context.Context, name string) error
}

// InstallRunner launches an installer and waits for it.
type InstallRunner interface {
	Run(ctx context.Context, inv installer.Invocation) (installer.Invocation, error)
}

// Procedure wires the prober, service starter and installer runner together.
type Procedure struct {
	prober  Prober
	starter ServiceStarter
	runner  InstallRunner
}

// New creates a Procedure.
func New(p Prober, s ServiceStarter, r InstallRunner) *Procedure {
	return &Procedure{prober: p, starter: s, runner: r}
}

// Run executes the procedure for c. The first failing step ends the
// component's run; the returned Outcome lists every step that ran.
func (p *Procedure) Run(ctx context.Context, c Component) Outcome {
	out := Outcome{Component: c.Name}
	logging.Info("Checking component", "component", c.Name)

	state, ok := p.probe(&out, c, StepProbe)
	if !ok {
		return out
	}

	out.Decision = planner.Decide(state, c.Force)
	out.record(StepResult{Step: StepDecide, Detail: out.Decision.Reason.String()})
	logging.Info("Install decision",
		"component", c.Name,
		"install", out.Decision.ShouldInstall,
		"reason", out.Decision.Reason.String(),
	)

	if !out.Decision.ShouldInstall {
		p.startStopped(ctx, &out, state)
		return out
	}

	if !p.install(ctx, &out, c) {
		return out
	}

	state, ok = p.probe(&out, c, StepVerify)
	if !ok {
		return out
	}
	if missing := missingParts(state); len(missing) > 0 {
		out.fail(StepVerify, KindExecution, fmt.Errorf("installer finished but %s still missing", strings.Join(missing, ", ")))
		return out
	}
	p.startStopped(ctx, &out, state)
	return out
}

func (p *Procedure) probe(out *Outcome, c Component, step Step) (probe.ComponentState, bool) {
	state, err := p.prober.Probe(c.Name, c.BinaryPath, c.Services...)
	if err != nil {
		out.fail(step, KindProbe, err)
		return state, false
	}
	out.record(StepResult{Step: step, Detail: describe(state)})
	return state, true
}

func (p *Procedure) startStopped(ctx context.Context, out *Outcome, state probe.ComponentState) {
	for _, name := range planner.ServicesToStart(state) {
		if err := p.starter.Start(ctx, name); err != nil {
			out.fail(StepStart, KindServiceStart, err)
			return
		}
		out.Started = append(out.Started, name)
		out.record(StepResult{Step: StepStart, Detail: name})
	}
}

// install resolves, runs and cleans up the installer. Cleanup always runs
// once an artifact was acquired.
func (p *Procedure) install(ctx context.Context, out *Outcome, c Component) bool {
	if c.Resolve == nil {
		out.fail(StepResolve, KindResolution, fmt.Errorf("no installer source configured"))
		return false
	}
	artifact, err := c.Resolve(ctx)
	if err != nil {
		out.fail(StepResolve, KindResolution, err)
		return false
	}
	out.record(StepResult{Step: StepResolve, Detail: fmt.Sprintf("%s (%s)", artifact.Path, artifact.Source)})

	var args []string
	if c.Arguments != nil {
		args = c.Arguments()
	}
	inv, runErr := p.runner.Run(ctx, installer.Invocation{
		Path:      artifact.Path,
		Arguments: args,
		Secrets:   c.Secrets,
	})

	if err := artifact.Cleanup(); err != nil {
		logging.Warn("Failed to clean up installer", "component", c.Name, "error", err)
		out.record(StepResult{Step: StepCleanup, Detail: err.Error()})
	} else {
		out.record(StepResult{Step: StepCleanup})
	}

	if runErr != nil {
		out.fail(StepInstall, KindExecution, runErr)
		return false
	}
	out.Installed = true
	out.RebootRequired = inv.RebootRequired
	out.record(StepResult{Step: StepInstall, Detail: fmt.Sprintf("exit code %d", inv.ExitCode)})
	return true
}

func (o *Outcome) record(r StepResult) {
	r.Component = o.Component
	o.Steps = append(o.Steps, r)
}

func (o *Outcome) fail(step Step, kind Kind, err error) {
	se := &StepError{Kind: kind, Component: o.Component, Op: string(step), Err: err}
	logging.Error("Step failed", "component", o.Component, "step", string(step), "kind", kind.String(), "error", err)
	o.record(StepResult{Step: step, Err: se})
}

func missingParts(state probe.ComponentState) []string {
	var missing []string
	if !state.BinaryPresent {
		missing = append(missing, state.BinaryPath)
	}
	for _, s := range state.Services {
		if s.Status == probe.Absent {
			missing = append(missing, "service "+s.Name)
		}
	}
	return missing
}

func describe(state probe.ComponentState) string {
	parts := []string{fmt.Sprintf("binary present=%t", state.BinaryPresent)}
	for _, s := range state.Services {
		parts = append(parts, fmt.Sprintf("%s=%s", s.Name, s.Status))
	}
	return strings.Join(parts, " ")
}

// Report combines the failures of all outcomes into one error, or nil when
// every component succeeded.
func Report(outcomes ...Outcome) error {
	var result *multierror.Error
	for _, o := range outcomes {
		if err := o.Err(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Summary converts an outcome for the session log.
func (o Outcome) Summary() logging.ComponentOutcome {
	co := logging.ComponentOutcome{
		Component: o.Component,
		Decision:  o.Decision.Reason.String(),
		Installed: o.Installed,
		Started:   o.Started,
	}
	if err := o.Err(); err != nil {
		co.Error = err.Error()
	}
	return co
}
