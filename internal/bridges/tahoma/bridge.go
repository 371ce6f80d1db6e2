package tahoma

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// commandTimeout bounds a single action publish.
const commandTimeout = 5 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	Config     Config
	MQTTClient MQTTClient
	Logger     Logger
}

// BridgeStats counts bridge activity.
type BridgeStats struct {
	Commands      uint64 `json:"commands"`
	CommandErrors uint64 `json:"command_errors"`
	StateUpdates  uint64 `json:"state_updates"`
}

// Bridge connects TaHoma device handlers to MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	handlers map[string]*Handler
	order    []string

	// Last published value per device and channel
	stateCache   map[string]map[string]any
	stateCacheMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	commands      atomic.Uint64
	commandErrors atomic.Uint64
	stateUpdates  atomic.Uint64

	logger Logger
}

// NewBridge creates a bridge with one Handler per configured device.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, ErrMQTTRequired
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		mqtt:       opts.MQTTClient,
		handlers:   make(map[string]*Handler, len(opts.Config.Devices)),
		stateCache: make(map[string]map[string]any),
		ctx:        ctx,
		cancel:     cancel,
		logger:     opts.Logger,
	}

	sender := CommandSenderFunc(b.publishAction)
	for _, d := range opts.Config.Devices {
		profile, err := LookupProfile(d.Profile)
		if err != nil {
			cancel()
			return nil, err
		}
		h, err := NewHandler(d.ID, profile, sender)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		b.handlers[d.ID] = h
		b.order = append(b.order, d.ID)
	}

	return b, nil
}

// Start subscribes to command and state topics for every device.
func (b *Bridge) Start(_ context.Context) error {
	for _, deviceID := range b.order {
		if err := b.mqtt.Subscribe(CommandTopic(deviceID), 1, func(_ string, payload []byte) {
			b.handleCommand(deviceID, payload)
		}); err != nil {
			return fmt.Errorf("subscribe commands for %s: %w", deviceID, err)
		}
		if err := b.mqtt.Subscribe(StatesTopic(deviceID), 1, func(_ string, payload []byte) {
			b.handleStates(deviceID, payload)
		}); err != nil {
			return fmt.Errorf("subscribe states for %s: %w", deviceID, err)
		}
	}

	b.logInfo("tahoma bridge started", "devices", len(b.order))
	return nil
}

// Stop makes the bridge ignore further messages. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.logInfo("tahoma bridge stopped")
	})
}

// Handler returns the handler for a device.
func (b *Bridge) Handler(deviceID string) (*Handler, error) {
	h, ok := b.handlers[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return h, nil
}

// Devices returns the configured device ids in configuration order.
func (b *Bridge) Devices() []string {
	return append([]string(nil), b.order...)
}

// Stats returns bridge counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		Commands:      b.commands.Load(),
		CommandErrors: b.commandErrors.Load(),
		StateUpdates:  b.stateUpdates.Load(),
	}
}

func (b *Bridge) stopped() bool {
	return b.ctx.Err() != nil
}

// handleCommand translates a Core command and acknowledges it.
func (b *Bridge) handleCommand(deviceID string, payload []byte) {
	if b.stopped() {
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.Channel == "" {
		cmd.Channel = ChannelControl
	}
	b.commands.Add(1)

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", deviceID,
		"channel", cmd.Channel,
		"command", cmd.Command)

	h, err := b.Handler(deviceID)
	if err != nil {
		b.commandErrors.Add(1)
		b.publishAck(cmd, deviceID, nil, err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	action, err := h.HandleCommand(ctx, cmd.Channel, cmd.Command)
	if err != nil {
		b.commandErrors.Add(1)
		b.logError("command failed", err)
		b.publishAck(cmd, deviceID, nil, err)
		return
	}
	b.publishAck(cmd, deviceID, &action, nil)
}

// handleStates maps gateway attributes to channels and publishes changes.
func (b *Bridge) handleStates(deviceID string, payload []byte) {
	if b.stopped() {
		return
	}

	var msg StatesMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logError("failed to parse states", err)
		return
	}

	h, err := b.Handler(deviceID)
	if err != nil {
		b.logError("states for unknown device", err)
		return
	}

	changed := make(map[string]any)
	for _, u := range h.UpdateStates(msg.States) {
		if b.stateUnchanged(deviceID, u.Channel, u.Value) {
			continue
		}
		changed[u.Channel] = u.Value
	}
	if len(changed) == 0 {
		return
	}

	state := StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     changed,
		Protocol:  Protocol,
	}
	data, err := json.Marshal(state)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(StateTopic(deviceID), data, 1, true); err != nil {
		b.logError("failed to publish state", err)
		return
	}
	b.stateUpdates.Add(1)
	b.logDebug("published state", "device_id", deviceID, "state", changed)
}

// stateUnchanged reports whether value matches the last published value
// and records it otherwise.
func (b *Bridge) stateUnchanged(deviceID, channel string, value any) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	if b.stateCache[deviceID] == nil {
		b.stateCache[deviceID] = make(map[string]any)
	}
	if cached, ok := b.stateCache[deviceID][channel]; ok && reflect.DeepEqual(cached, value) {
		return true
	}
	b.stateCache[deviceID][channel] = value
	return false
}

// publishAction is the CommandSender used by every handler.
func (b *Bridge) publishAction(ctx context.Context, deviceID string, action Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := ExecMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Action:    action,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	return b.mqtt.Publish(ExecTopic(deviceID), data, 1, false)
}

func (b *Bridge) publishAck(cmd CommandMessage, deviceID string, action *Action, cmdErr error) {
	ack := AckMessage{
		CommandID: cmd.ID,
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Status:    AckAccepted,
		Protocol:  Protocol,
		Action:    action,
	}
	if cmdErr != nil {
		ack.Status = AckFailed
		ack.Error = cmdErr.Error()
	}

	data, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(deviceID), data, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
