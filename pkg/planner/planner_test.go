package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/windowsadmins/agentrepair/pkg/probe"
)

func state(binary bool, services ...probe.ServiceStatus) probe.ComponentState {
	s := probe.ComponentState{Component: "Agent", BinaryPresent: binary}
	for i, st := range services {
		s.Services = append(s.Services, probe.ServiceState{Name: string(rune('a' + i)), Status: st})
	}
	return s
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		state probe.ComponentState
		force bool
		want  InstallDecision
	}{
		{"absent everything", state(false, probe.Absent), false, InstallDecision{true, NotInstalled}},
		{"binary absent services running", state(false, probe.Running), false, InstallDecision{true, NotInstalled}},
		{"one service missing", state(true, probe.Running, probe.Absent), false, InstallDecision{true, ServiceMissing}},
		{"stopped is not a trigger", state(true, probe.Stopped), false, InstallDecision{false, None}},
		{"healthy", state(true, probe.Running, probe.Running), false, InstallDecision{false, None}},
		{"forced on healthy", state(true, probe.Running, probe.Running), true, InstallDecision{true, ForcedByCaller}},
		{"forced on absent", state(false, probe.Absent), true, InstallDecision{true, ForcedByCaller}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state, tt.force))
		})
	}
}

func TestDecideIsIdempotentOnHealthySystem(t *testing.T) {
	s := state(true, probe.Running, probe.Running)
	first := Decide(s, false)
	second := Decide(s, false)
	assert.False(t, first.ShouldInstall)
	assert.Equal(t, first, second)
	assert.Empty(t, ServicesToStart(s))
}

func TestServicesToStart(t *testing.T) {
	s := state(true, probe.Running, probe.Stopped, probe.Absent, probe.Unknown)
	assert.Equal(t, []string{"b", "d"}, ServicesToStart(s))
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "NotInstalled", NotInstalled.String())
	assert.Equal(t, "ServiceMissing", ServiceMissing.String())
	assert.Equal(t, "ForcedByCaller", ForcedByCaller.String())
	assert.Equal(t, "None", None.String())
}
