package tahoma

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Action is a TaHoma command with its parameters.
type Action struct {
	Command string `json:"command"`
	Params  []any  `json:"parameters"`
}

// State is one attribute reported by the TaHoma gateway.
type State struct {
	Name  string `json:"name"`
	Type  int    `json:"type,omitempty"`
	Value any    `json:"value"`
}

// ChannelUpdate is a channel value derived from a State.
type ChannelUpdate struct {
	Channel string `json:"channel"`
	Value   any    `json:"value"`
}

// CommandSender delivers actions to a TaHoma device.
type CommandSender interface {
	Execute(ctx context.Context, deviceID string, action Action) error
}

// CommandSenderFunc adapts a function to CommandSender.
type CommandSenderFunc func(ctx context.Context, deviceID string, action Action) error

// Execute calls f.
func (f CommandSenderFunc) Execute(ctx context.Context, deviceID string, action Action) error {
	return f(ctx, deviceID, action)
}

// Handler translates channel commands for one device according to its
// Profile.
type Handler struct {
	deviceID string
	profile  Profile
	sender   CommandSender
}

// NewHandler creates a handler for deviceID.
func NewHandler(deviceID string, profile Profile, sender CommandSender) (*Handler, error) {
	if sender == nil {
		return nil, ErrSenderRequired
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Handler{deviceID: deviceID, profile: profile, sender: sender}, nil
}

// DeviceID returns the TaHoma device the handler drives.
func (h *Handler) DeviceID() string {
	return h.deviceID
}

// Profile returns the handler's profile.
func (h *Handler) Profile() Profile {
	return h.profile
}

// HandleCommand translates command on channel and sends the action.
func (h *Handler) HandleCommand(ctx context.Context, channel, command string) (Action, error) {
	action, err := h.Translate(channel, command)
	if err != nil {
		return Action{}, err
	}
	if err := h.sender.Execute(ctx, h.deviceID, action); err != nil {
		return action, fmt.Errorf("execute %s on %s: %w", action.Command, h.deviceID, err)
	}
	return action, nil
}

// Translate maps a channel command to a TaHoma action without sending it.
// UP, DOWN, STOP, ON and OFF are case-insensitive. A number is a position.
func (h *Handler) Translate(channel, command string) (Action, error) {
	if _, ok := h.profile.StateNames[channel]; !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	command = strings.TrimSpace(command)
	if cmd, ok := h.profile.Commands[strings.ToUpper(command)]; ok {
		return Action{Command: cmd, Params: []any{}}, nil
	}

	pos, err := strconv.ParseFloat(command, 64)
	if err != nil || h.profile.PositionCommand == "" {
		return Action{}, fmt.Errorf("%w: %q", ErrUnsupportedCommand, command)
	}
	if pos < 0 || pos > 100 || math.IsNaN(pos) {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidPosition, pos)
	}
	return Action{Command: h.profile.PositionCommand, Params: []any{int(math.Round(pos))}}, nil
}

// UpdateStates maps reported attributes onto channels. Attributes the
// profile does not map are skipped. Numeric values become integer
// percentages clamped to 0-100.
func (h *Handler) UpdateStates(states []State) []ChannelUpdate {
	var updates []ChannelUpdate
	for _, channel := range h.profile.Channels() {
		attr := h.profile.StateNames[channel]
		for _, s := range states {
			if s.Name != attr {
				continue
			}
			updates = append(updates, ChannelUpdate{Channel: channel, Value: channelValue(s.Value)})
		}
	}
	return updates
}

// channelValue converts a reported value to a channel value.
func channelValue(v any) any {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return n
		}
		f = parsed
	default:
		return v
	}
	if math.IsNaN(f) {
		return v
	}
	return int(math.Round(max(0, min(100, f))))
}
