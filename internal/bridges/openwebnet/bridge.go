package openwebnet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

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

// DongleLink is a discovery.Link owned by the bridge.
type DongleLink interface {
	discovery.Link
	Stats() SerialStats
	Close() error
}

// LinkFactory creates the link for a dongle.
type LinkFactory func(DongleConfig) DongleLink

// DefaultLinkFactory opens dongles with NewSerialLink.
func DefaultLinkFactory(d DongleConfig) DongleLink {
	return NewSerialLink(d.SerialConfig())
}

// ScannerStatus describes one dongle scanner for the API.
type ScannerStatus struct {
	Name        string                   `json:"name"`
	Kind        discovery.DeviceKind     `json:"kind"`
	State       string                   `json:"state"`
	Scanning    bool                     `json:"scanning"`
	SessionID   string                   `json:"session_id,omitempty"`
	Identity    discovery.DeviceIdentity `json:"identity"`
	Link        SerialStats              `json:"link"`
	Stats       discovery.Stats          `json:"stats"`
	LastCause   discovery.EndCause       `json:"last_cause,omitempty"`
	LastError   string                   `json:"last_error,omitempty"`
	LastEndedAt *time.Time               `json:"last_ended_at,omitempty"`
}

// scanner pairs a dongle link with its Machine and remembers the last
// scan outcome.
type scanner struct {
	name    string
	link    DongleLink
	machine *discovery.Machine

	mu   sync.RWMutex
	last *discovery.ScanOutcome
}

func (s *scanner) ScanStarted(discovery.ScanInfo) {}

func (s *scanner) ScanEnded(outcome discovery.ScanOutcome) {
	s.mu.Lock()
	s.last = &outcome
	s.mu.Unlock()
}

func (s *scanner) status() ScannerStatus {
	st := ScannerStatus{
		Name:      s.name,
		Kind:      s.machine.Profile().Kind,
		State:     s.machine.State().String(),
		Scanning:  s.machine.Scanning(),
		SessionID: s.machine.SessionID(),
		Identity:  s.machine.Identity(),
		Link:      s.link.Stats(),
		Stats:     s.machine.Stats(),
	}

	s.mu.RLock()
	if s.last != nil {
		st.LastCause = s.last.Cause
		if s.last.Err != nil {
			st.LastError = s.last.Err.Error()
		}
		ended := s.last.EndedAt
		st.LastEndedAt = &ended
	}
	s.mu.RUnlock()

	return st
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the bridge configuration.
	Config Config

	// MQTTClient publishes results and health and receives scan commands.
	MQTTClient MQTTClient

	// Sinks also receive every result (inbox, telemetry, WebSocket).
	Sinks []discovery.Sink

	// Observer is optionally notified of scan sessions.
	Observer discovery.Observer

	// LinkFactory creates dongle links. Default: DefaultLinkFactory.
	LinkFactory LinkFactory

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge runs one discovery Machine per configured dongle and publishes
// results to MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      Config
	mqtt     MQTTClient
	health   *HealthReporter
	scanners []*scanner
	byName   map[string]*scanner

	// Shutdown coordination
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, ErrMQTTRequired
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	cfg := opts.Config.withDefaults()
	factory := opts.LinkFactory
	if factory == nil {
		factory = DefaultLinkFactory
	}

	b := &Bridge{
		cfg:    cfg,
		mqtt:   opts.MQTTClient,
		byName: make(map[string]*scanner, len(cfg.Dongles)),
		done:   make(chan struct{}),
		logger: opts.Logger,
	}

	for _, d := range cfg.Dongles {
		sc, err := b.newScanner(d, factory, opts)
		if err != nil {
			return nil, fmt.Errorf("dongle %s: %w", d.Name, err)
		}
		b.scanners = append(b.scanners, sc)
		b.byName[d.Name] = sc
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  cfg.BridgeID,
		Version:   cfg.Version,
		Interval:  cfg.HealthInterval,
		Publisher: opts.MQTTClient,
		Source:    b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

func (b *Bridge) newScanner(d DongleConfig, factory LinkFactory, opts BridgeOptions) (*scanner, error) {
	link := factory(d)
	if sl, ok := link.(*SerialLink); ok && opts.Logger != nil {
		sl.SetLogger(opts.Logger)
	}

	sc := &scanner{name: d.Name, link: link}

	name := d.Name
	publish := discovery.SinkFunc(func(r discovery.Result) {
		b.publishResult(name, r)
	})
	sinks := append([]discovery.Sink{publish}, opts.Sinks...)

	observers := discovery.MultiObserver{sc}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}

	mopts := discovery.Options{
		Link:            link,
		Decoder:         Decoder{},
		Sink:            discovery.NewMultiSink(opts.Logger, sinks...),
		Observer:        observers,
		Profile:         DongleProfile,
		SupportedKinds:  SupportedKinds(),
		IdentifyTimeout: b.cfg.IdentifyTimeout,
		IdentifyRetries: b.cfg.IdentifyRetries,
	}
	if opts.Logger != nil {
		mopts.Logger = opts.Logger
	}

	m, err := discovery.NewMachine(mopts)
	if err != nil {
		return nil, err
	}
	sc.machine = m
	return sc, nil
}

// Start subscribes to scan commands, starts health reporting and, when
// configured, the initial and periodic scans.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	if err := b.mqtt.Subscribe(CommandTopic(), 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to scan commands", "topic", CommandTopic())

	b.health.Start(ctx)

	if b.cfg.AutoScan {
		b.StartScan()
	}

	if b.cfg.ScanInterval > 0 {
		b.wg.Add(1)
		go b.scanLoop(ctx)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.BridgeID,
		"dongles", len(b.scanners),
		"auto_scan", b.cfg.AutoScan)
	return nil
}

// Stop ends all scans, closes the dongle links and stops health reporting.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()

		b.StopScan()
		b.health.Stop()

		var g errgroup.Group
		for _, sc := range b.scanners {
			g.Go(func() error {
				if err := sc.link.Close(); err != nil {
					return fmt.Errorf("close %s: %w", sc.name, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			b.logError("failed to close dongle link", err)
		}

		b.logInfo("bridge stopped")
	})
}

// scanLoop re-runs StartScan every ScanInterval.
func (b *Bridge) scanLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.logDebug("periodic scan")
			b.StartScan()
		}
	}
}

// StartScan starts (or re-announces on) every dongle.
func (b *Bridge) StartScan() {
	for _, sc := range b.scanners {
		sc.machine.Start()
	}
}

// StopScan stops every dongle scan.
func (b *Bridge) StopScan() {
	for _, sc := range b.scanners {
		sc.machine.Stop()
	}
}

// StartScanOn starts a scan on one dongle.
func (b *Bridge) StartScanOn(name string) error {
	sc, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDongle, name)
	}
	sc.machine.Start()
	return nil
}

// StopScanOn stops the scan on one dongle.
func (b *Bridge) StopScanOn(name string) error {
	sc, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDongle, name)
	}
	sc.machine.Stop()
	return nil
}

// SupportedKinds returns the device kinds the bridge can discover.
func (b *Bridge) SupportedKinds() []discovery.DeviceKind {
	if len(b.scanners) == 0 {
		return SupportedKinds()
	}
	return b.scanners[0].machine.SupportedKinds()
}

// Scanners returns the status of every dongle in configuration order.
func (b *Bridge) Scanners() []ScannerStatus {
	out := make([]ScannerStatus, 0, len(b.scanners))
	for _, sc := range b.scanners {
		out = append(out, sc.status())
	}
	return out
}

// DongleHealth implements HealthSource.
func (b *Bridge) DongleHealth() []DongleHealth {
	out := make([]DongleHealth, 0, len(b.scanners))
	for _, sc := range b.scanners {
		id := sc.machine.Identity()
		stats := sc.link.Stats()
		out = append(out, DongleHealth{
			Name:       sc.name,
			Port:       stats.Port,
			State:      sc.machine.State().String(),
			Connected:  stats.Connected,
			Identified: id.Known(),
			DeviceID:   id.ID,
		})
	}
	return out
}

// Statistics implements HealthSource.
func (b *Bridge) Statistics() BridgeStatistics {
	var s BridgeStatistics
	for _, sc := range b.scanners {
		ls := sc.link.Stats()
		s.FramesReceived += ls.FramesRx
		s.FramesSent += ls.FramesTx
		s.Errors += ls.ErrorsTotal
		s.Reconnects += ls.ReconnectsTotal
		s.Results += sc.machine.Stats().ResultsEmitted
	}
	return s
}

// handleCommand processes a scan command.
func (b *Bridge) handleCommand(_ string, payload []byte) {
	select {
	case <-b.done:
		return
	default:
	}

	var cmd ScanCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse scan command", err)
		return
	}

	b.logInfo("received scan command", "action", cmd.Action, "dongle", cmd.Dongle)

	var err error
	switch cmd.Action {
	case ActionStart:
		if cmd.Dongle == "" {
			b.StartScan()
		} else {
			err = b.StartScanOn(cmd.Dongle)
		}
	case ActionStop:
		if cmd.Dongle == "" {
			b.StopScan()
		} else {
			err = b.StopScanOn(cmd.Dongle)
		}
	default:
		err = fmt.Errorf("unknown action %q", cmd.Action)
	}

	if err != nil {
		b.logError("scan command failed", err)
	}
}

// publishResult publishes a retained result message.
func (b *Bridge) publishResult(dongle string, r discovery.Result) {
	msg := ResultMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    b.cfg.BridgeID,
		Dongle:    dongle,
		Result:    r,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal result", err)
		return
	}

	if err := b.mqtt.Publish(ResultTopic(r.UID), payload, 1, true); err != nil {
		b.logError("failed to publish result", err)
		return
	}
	b.logInfo("dongle discovered", "uid", r.UID, "dongle", dongle, "label", r.Label)
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
