// pkg/planner/planner.go - decides whether a component needs a (re)install.

package planner

import "github.com/windowsadmins/agentrepair/pkg/probe"

// Reason explains an InstallDecision.
type Reason int

const (
	None Reason = iota
	NotInstalled
	ServiceMissing
	ForcedByCaller
)

func (r Reason) String() string {
	switch r {
	case NotInstalled:
		return "NotInstalled"
	case ServiceMissing:
		return "ServiceMissing"
	case ForcedByCaller:
		return "ForcedByCaller"
	default:
		return "None"
	}
}

// InstallDecision is the planner's verdict for one component.
type InstallDecision struct {
	ShouldInstall bool
	Reason        Reason
}

// Decide returns whether the component must be installed. A stopped service
// is not a reinstall trigger; see ServicesToStart.
func Decide(state probe.ComponentState, force bool) InstallDecision {
	switch {
	case force:
		return InstallDecision{ShouldInstall: true, Reason: ForcedByCaller}
	case !state.BinaryPresent:
		return InstallDecision{ShouldInstall: true, Reason: NotInstalled}
	}
	for _, s := range state.Services {
		if s.Status == probe.Absent {
			return InstallDecision{ShouldInstall: true, Reason: ServiceMissing}
		}
	}
	return InstallDecision{}
}

// ServicesToStart lists services that exist but are not running.
func ServicesToStart(state probe.ComponentState) []string {
	var names []string
	for _, s := range state.Services {
		if s.Status == probe.Stopped || s.Status == probe.Unknown {
			names = append(names, s.Name)
		}
	}
	return names
}
