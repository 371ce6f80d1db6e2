package tahoma

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLookupProfile(t *testing.T) {
	tests := []struct {
		name      string
		wantState string
		wantPos   string
	}{
		{"awning", "core:DeploymentState", "setDeployment"},
		{"Pergola", "core:TargetClosureState", "setDeployment"},
		{"rollershutter", "core:ClosureState", "setClosure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LookupProfile(tt.name)
			if err != nil {
				t.Fatalf("LookupProfile() error: %v", err)
			}
			if got := p.StateNames[ChannelControl]; got != tt.wantState {
				t.Errorf("control state = %q, want %q", got, tt.wantState)
			}
			if p.PositionCommand != tt.wantPos {
				t.Errorf("PositionCommand = %q, want %q", p.PositionCommand, tt.wantPos)
			}
			if err := p.Validate(); err != nil {
				t.Errorf("Validate() error: %v", err)
			}
		})
	}

	if _, err := LookupProfile("venetian"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("LookupProfile(venetian) error = %v, want %v", err, ErrUnknownProfile)
	}
}

func TestPergolaSharesAwningCommands(t *testing.T) {
	awning, pergola := AwningProfile(), PergolaProfile()
	if diff := cmp.Diff(awning.Commands, pergola.Commands); diff != "" {
		t.Errorf("commands mismatch (-awning +pergola):\n%s", diff)
	}
	if pergola.Name != ProfilePergola {
		t.Errorf("Name = %q, want %q", pergola.Name, ProfilePergola)
	}
}

func TestWithStateNameCopies(t *testing.T) {
	base := AwningProfile()
	derived := base.WithStateName("tilt", "core:SlateOrientationState")
	derived.Commands["MY"] = "my"

	if _, ok := base.StateNames["tilt"]; ok {
		t.Error("WithStateName modified the base state names")
	}
	if _, ok := base.Commands["MY"]; ok {
		t.Error("WithStateName shares the commands map")
	}
	if diff := cmp.Diff([]string{"control", "tilt"}, derived.Channels()); diff != "" {
		t.Errorf("Channels() mismatch (-want +got):\n%s", diff)
	}
}

func TestProfileValidate(t *testing.T) {
	err := Profile{}.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	want := "tahoma profile errors: name is required; at least one state name is required; at least one command is required"
	if err.Error() != want {
		t.Errorf("Validate() error = %q, want %q", err.Error(), want)
	}

	positionOnly := Profile{Name: "p", StateNames: map[string]string{"control": "x"}, PositionCommand: "set"}
	if err := positionOnly.Validate(); err != nil {
		t.Errorf("position-only Validate() error: %v", err)
	}
}

func TestProfileNamesResolve(t *testing.T) {
	for _, name := range ProfileNames() {
		if _, err := LookupProfile(name); err != nil {
			t.Errorf("LookupProfile(%q) error: %v", name, err)
		}
	}
}
