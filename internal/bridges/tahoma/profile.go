package tahoma

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ChannelControl is the position/deployment channel shared by all
// built-in profiles.
const ChannelControl = "control"

// Gray Logic commands accepted on a channel. ON and OFF are aliases the
// built-in profiles map like UP and DOWN.
const (
	CommandUp   = "UP"
	CommandDown = "DOWN"
	CommandStop = "STOP"
	CommandOn   = "ON"
	CommandOff  = "OFF"
)

// Built-in profile names.
const (
	ProfileAwning        = "awning"
	ProfilePergola       = "pergola"
	ProfileRollerShutter = "rollershutter"
)

// Profile configures a Handler for one TaHoma device type.
type Profile struct {
	// Name identifies the profile in configuration.
	Name string

	// StateNames maps a channel to the TaHoma attribute that reports it.
	StateNames map[string]string

	// Commands maps a Gray Logic command to a TaHoma command.
	Commands map[string]string

	// PositionCommand takes a 0-100 value. Empty disables numeric commands.
	PositionCommand string
}

// WithStateName returns a copy of p with channel backed by attribute.
func (p Profile) WithStateName(channel, attribute string) Profile {
	p.StateNames = maps.Clone(p.StateNames)
	if p.StateNames == nil {
		p.StateNames = make(map[string]string)
	}
	p.StateNames[channel] = attribute
	p.Commands = maps.Clone(p.Commands)
	return p
}

// Channels returns the mapped channels in sorted order.
func (p Profile) Channels() []string {
	return slices.Sorted(maps.Keys(p.StateNames))
}

// Validate checks that the profile can drive a Handler.
func (p Profile) Validate() error {
	var errs []string
	if p.Name == "" {
		errs = append(errs, "name is required")
	}
	if len(p.StateNames) == 0 {
		errs = append(errs, "at least one state name is required")
	}
	if len(p.Commands) == 0 && p.PositionCommand == "" {
		errs = append(errs, "at least one command is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("tahoma profile errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// AwningProfile drives awnings through core:DeploymentState.
func AwningProfile() Profile {
	return Profile{
		Name:       ProfileAwning,
		StateNames: map[string]string{ChannelControl: "core:DeploymentState"},
		Commands: map[string]string{
			CommandDown: "deploy",
			CommandOff:  "deploy",
			CommandUp:   "undeploy",
			CommandOn:   "undeploy",
			CommandStop: "stop",
		},
		PositionCommand: "setDeployment",
	}
}

// PergolaProfile is an awning reporting core:TargetClosureState.
func PergolaProfile() Profile {
	p := AwningProfile().WithStateName(ChannelControl, "core:TargetClosureState")
	p.Name = ProfilePergola
	return p
}

// RollerShutterProfile drives roller shutters through core:ClosureState.
func RollerShutterProfile() Profile {
	return Profile{
		Name:       ProfileRollerShutter,
		StateNames: map[string]string{ChannelControl: "core:ClosureState"},
		Commands: map[string]string{
			CommandDown: "close",
			CommandOff:  "close",
			CommandUp:   "open",
			CommandOn:   "open",
			CommandStop: "stop",
		},
		PositionCommand: "setClosure",
	}
}

// LookupProfile returns a built-in profile by name.
func LookupProfile(name string) (Profile, error) {
	switch strings.ToLower(name) {
	case ProfileAwning:
		return AwningProfile(), nil
	case ProfilePergola:
		return PergolaProfile(), nil
	case ProfileRollerShutter:
		return RollerShutterProfile(), nil
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	return []string{ProfileAwning, ProfilePergola, ProfileRollerShutter}
}
