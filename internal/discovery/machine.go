package discovery

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the Machine's scan state.
type State int

// Machine states.
const (
	StateIdle State = iota
	StateConnecting
	StateConnectedUnidentified
	StateIdentified
)

// String returns the state name used in logs and the API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnectedUnidentified:
		return "connected_unidentified"
	case StateIdentified:
		return "identified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options holds configuration for creating a Machine.
type Options struct {
	// Link is the transport to scan. Required.
	Link Link

	// Decoder extracts identities from payloads. Required unless Correlator is set.
	Decoder Decoder

	// Correlator is optional; by default one is built from Link and Decoder.
	Correlator *Correlator

	// Sink receives discovery results. Required.
	Sink Sink

	// Observer is optionally notified when scan sessions start and end.
	Observer Observer

	// Profile names the device kind and result properties.
	Profile Profile

	// SupportedKinds is the static set reported by SupportedKinds.
	// Default: the profile's kind.
	SupportedKinds []DeviceKind

	// IdentifyTimeout bounds how long identification requests stay pending.
	// Zero disables the timeout.
	IdentifyTimeout time.Duration

	// IdentifyRetries is how many times identification is re-requested after
	// a timeout before the scan is abandoned.
	IdentifyRetries int

	// Logger is optional structured logger.
	Logger Logger

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time

	// NewSessionID generates scan session ids. Default: random UUIDs.
	NewSessionID func() string
}

// Stats holds Machine counters.
type Stats struct {
	ScansStarted     uint64 `json:"scans_started"`
	ResultsEmitted   uint64 `json:"results_emitted"`
	MessagesSeen     uint64 `json:"messages_seen"`
	MessagesIgnored  uint64 `json:"messages_ignored"`
	ConnectionErrors uint64 `json:"connection_errors"`
	IdentifyTimeouts uint64 `json:"identify_timeouts"`
}

// session is an active scan session.
type session struct {
	id         string
	endpoint   string
	startedAt  time.Time
	discovered int
}

// Machine is the device-discovery correlation state machine.
//
// Start, Stop and Link events are queued and executed one at a time in
// arrival order by whichever caller found the queue idle. A call made while
// another operation is running returns once its operation is queued: from a
// Sink it runs before the outer call returns, from another goroutine it runs
// on the goroutine that is draining the queue.
type Machine struct {
	link            Link
	correlator      *Correlator
	sink            Sink
	observer        Observer
	profile         Profile
	kinds           []DeviceKind
	identifyTimeout time.Duration
	identifyRetries int
	clock           func() time.Time
	newSessionID    func() string
	logger          Logger

	// Serial executor
	queueMu  sync.Mutex
	queue    []func()
	draining bool

	// Guarded by mu; written only by queued operations
	mu       sync.RWMutex
	state    State
	armed    bool
	identity DeviceIdentity
	session  *session

	// Identify timeout; touched only by queued operations
	timer    *time.Timer
	timerGen uint64
	attempts int

	// Statistics
	scansStarted     atomic.Uint64
	resultsEmitted   atomic.Uint64
	messagesSeen     atomic.Uint64
	messagesIgnored  atomic.Uint64
	connectionErrors atomic.Uint64
	identifyTimeouts atomic.Uint64
}

// NewMachine creates a Machine and subscribes it to the Link's events.
// The Machine starts IDLE; call Start to begin a scan.
func NewMachine(opts Options) (*Machine, error) {
	if opts.Link == nil {
		return nil, ErrLinkRequired
	}
	if opts.Sink == nil {
		return nil, ErrSinkRequired
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	correlator := opts.Correlator
	if correlator == nil {
		var err error
		correlator, err = NewCorrelator(CorrelatorOptions{
			Sender:  opts.Link,
			Decoder: opts.Decoder,
			Timeout: opts.IdentifyTimeout,
			Clock:   clock,
		})
		if err != nil {
			return nil, err
		}
	}

	profile := opts.Profile.withDefaults()
	kinds := append([]DeviceKind(nil), opts.SupportedKinds...)
	if len(kinds) == 0 {
		kinds = []DeviceKind{profile.Kind}
	}

	newSessionID := opts.NewSessionID
	if newSessionID == nil {
		newSessionID = uuid.NewString
	}

	m := &Machine{
		link:            opts.Link,
		correlator:      correlator,
		sink:            opts.Sink,
		observer:        opts.Observer,
		profile:         profile,
		kinds:           kinds,
		identifyTimeout: opts.IdentifyTimeout,
		identifyRetries: opts.IdentifyRetries,
		clock:           clock,
		newSessionID:    newSessionID,
		logger:          opts.Logger,
	}

	opts.Link.Subscribe(m.HandleEvent)
	return m, nil
}

// Start begins or resumes a scan.
//
//   - transport not connected: connect and wait for EventConnected
//   - connected, device already identified: re-announce the result
//   - connected, device unknown: request identification again
//
// Start never blocks on the transport and is safe to call repeatedly. While
// another goroutine is processing an operation, Start only queues the scan
// and returns; observe the outcome through State or the Observer.
func (m *Machine) Start() {
	m.dispatch(m.start)
}

// Stop ends the scan session. Events arriving afterwards are ignored until
// the next Start. The transport is left connected. Like Start, Stop may
// return before the session has ended when another goroutine is processing
// an operation.
func (m *Machine) Stop() {
	m.dispatch(m.stop)
}

// HandleEvent processes a Link event. It is registered with the Link by
// NewMachine and may also be called directly.
func (m *Machine) HandleEvent(ev Event) {
	m.dispatch(func() { m.handle(ev) })
}

// SupportedKinds returns the static set of device kinds this Machine discovers.
func (m *Machine) SupportedKinds() []DeviceKind {
	return append([]DeviceKind(nil), m.kinds...)
}

// Profile returns the profile results are built with.
func (m *Machine) Profile() Profile {
	return m.profile
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns what is currently known about the device.
func (m *Machine) Identity() DeviceIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// SessionID returns the active scan session id, or "" when no scan is active.
func (m *Machine) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.id
}

// Scanning reports whether a scan session is active.
func (m *Machine) Scanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

// Stats returns a snapshot of the Machine counters.
func (m *Machine) Stats() Stats {
	return Stats{
		ScansStarted:     m.scansStarted.Load(),
		ResultsEmitted:   m.resultsEmitted.Load(),
		MessagesSeen:     m.messagesSeen.Load(),
		MessagesIgnored:  m.messagesIgnored.Load(),
		ConnectionErrors: m.connectionErrors.Load(),
		IdentifyTimeouts: m.identifyTimeouts.Load(),
	}
}

// dispatch queues op and drains the queue unless another caller already is.
func (m *Machine) dispatch(op func()) {
	m.queueMu.Lock()
	m.queue = append(m.queue, op)
	if m.draining {
		m.queueMu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.queueMu.Unlock()
		m.run(next)
		m.queueMu.Lock()
	}
	m.draining = false
	m.queueMu.Unlock()
}

// run executes one queued operation, recovering panics so the queue keeps draining.
func (m *Machine) run(op func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logError("discovery operation panic", fmt.Errorf("%v", r))
		}
	}()
	op()
}

func (m *Machine) start() {
	connected := m.link.IsConnected()
	var endpoint string
	if r, ok := m.link.(EndpointReporter); ok && connected {
		endpoint = r.Endpoint()
	}

	m.mu.Lock()
	m.armed = true
	if endpoint != "" {
		m.identity.Endpoint = endpoint
	}
	state := m.state
	identity := m.identity

	switch {
	case !connected:
		if state == StateConnecting {
			m.mu.Unlock()
			m.logDebug("scan already connecting")
			return
		}
		info := m.setStateLocked(StateConnecting)
		m.mu.Unlock()

		m.notifyStarted(info)
		m.logInfo("connecting transport", "kind", m.profile.Kind)
		m.link.Connect()

	case identity.Known():
		info := m.setStateLocked(StateIdentified)
		result := m.resultLocked()
		m.mu.Unlock()

		m.notifyStarted(info)
		m.logDebug("device already identified, re-announcing", "uid", result.UID)
		m.emit(result)

	default:
		info := m.setStateLocked(StateConnectedUnidentified)
		m.mu.Unlock()

		m.notifyStarted(info)
		m.logDebug("transport already connected, requesting identity again", "endpoint", identity.Endpoint)
		m.attempts = 0
		m.requestIdentity()
	}
}

func (m *Machine) stop() {
	m.disarmIdentifyTimer()
	m.correlator.Reset()

	m.mu.Lock()
	wasArmed := m.armed
	m.armed = false
	m.state = StateIdle
	outcome := m.endSessionLocked(EndStopped, nil)
	m.mu.Unlock()

	if wasArmed {
		m.logInfo("scan stopped", "kind", m.profile.Kind)
	}
	m.notifyEnded(outcome)
}

func (m *Machine) handle(ev Event) {
	switch ev.Kind {
	case EventConnected:
		m.handleConnected(ev.Endpoint)
	case EventMessageReceived:
		m.handleMessage(ev.Payload)
	case EventConnectionError, EventConnectionClosed, EventDisconnected:
		m.handleTransportLoss(ev)
	case EventReconnected:
		m.logInfo("transport reconnected")
	default:
		m.logDebug("ignoring unknown transport event", "event", ev.Kind)
	}
}

func (m *Machine) handleConnected(endpoint string) {
	m.mu.Lock()
	if !m.armed {
		// Keep the endpoint so a later Start on this connection reports it.
		if !m.identity.Known() {
			m.identity = DeviceIdentity{Endpoint: endpoint}
		}
		m.mu.Unlock()
		m.logDebug("connected while stopped, endpoint recorded", "endpoint", endpoint)
		return
	}
	if m.state == StateIdentified {
		m.mu.Unlock()
		m.logDebug("ignoring connected event, device already identified", "endpoint", endpoint)
		return
	}
	m.identity = DeviceIdentity{Endpoint: endpoint}
	info := m.setStateLocked(StateConnectedUnidentified)
	if m.session != nil {
		m.session.endpoint = endpoint
	}
	m.mu.Unlock()

	m.notifyStarted(info)
	m.logInfo("transport connected, requesting identity", "endpoint", endpoint)
	m.correlator.Reset()
	m.attempts = 0
	m.requestIdentity()
}

func (m *Machine) handleMessage(payload []byte) {
	m.messagesSeen.Add(1)

	m.mu.RLock()
	active := m.armed && m.state == StateConnectedUnidentified
	m.mu.RUnlock()

	if !active {
		m.messagesIgnored.Add(1)
		return
	}

	id, ok := m.correlator.OnMessage(payload)
	if !ok {
		return
	}

	m.disarmIdentifyTimer()

	m.mu.Lock()
	m.identity.ID = id
	m.identity.FirmwareVersion = m.correlator.Firmware()
	m.state = StateIdentified
	result := m.resultLocked()
	m.mu.Unlock()

	m.logInfo("device discovered", "uid", result.UID, "label", result.Label)
	m.emit(result)
}

func (m *Machine) handleTransportLoss(ev Event) {
	cause, err := classify(ev)

	m.disarmIdentifyTimer()
	m.correlator.Reset()

	m.mu.Lock()
	armed := m.armed
	m.identity = DeviceIdentity{}
	m.state = StateIdle
	var outcome *ScanOutcome
	if armed {
		outcome = m.endSessionLocked(cause, err)
	}
	m.mu.Unlock()

	if !armed {
		m.logDebug("transport event while stopped", "event", ev.Kind)
		return
	}

	switch cause {
	case EndNoTransport:
		m.logInfo("no transport found")
	case EndConnectionError:
		m.connectionErrors.Add(1)
		m.logWarn("transport connection error", "error", ev.Err)
	case EndDisconnected:
		m.logWarn("transport disconnected")
	default:
		m.logDebug("transport connection closed")
	}

	m.notifyEnded(outcome)
}

// classify maps a transport-loss event to a scan end cause. Only failures
// carry an error.
func classify(ev Event) (EndCause, error) {
	switch ev.Kind {
	case EventConnectionError:
		switch {
		case errors.Is(ev.Err, ErrNoTransport):
			return EndNoTransport, nil
		case ev.Err == nil:
			return EndConnectionError, ErrConnectionFailed
		case errors.Is(ev.Err, ErrConnectionFailed):
			return EndConnectionError, ev.Err
		default:
			return EndConnectionError, fmt.Errorf("%w: %w", ErrConnectionFailed, ev.Err)
		}
	case EventDisconnected:
		return EndDisconnected, ErrUnexpectedDisconnect
	default:
		return EndConnectionClosed, nil
	}
}

func (m *Machine) requestIdentity() {
	if err := m.correlator.RequestIdentity(); err != nil {
		m.logWarn("identity request failed", "error", err)
	}
	m.armIdentifyTimer()
}

func (m *Machine) armIdentifyTimer() {
	m.disarmIdentifyTimer()
	if m.identifyTimeout <= 0 {
		return
	}
	gen := m.timerGen
	m.timer = time.AfterFunc(m.identifyTimeout, func() {
		m.dispatch(func() { m.identifyTimedOut(gen) })
	})
}

func (m *Machine) disarmIdentifyTimer() {
	m.timerGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// identifyTimedOut re-requests identification or, once retries are spent,
// ends the scan.
func (m *Machine) identifyTimedOut(gen uint64) {
	if gen != m.timerGen {
		return
	}
	m.disarmIdentifyTimer()

	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state != StateConnectedUnidentified {
		return
	}

	expired := m.correlator.Expire(m.clock())
	if m.attempts < m.identifyRetries {
		m.attempts++
		m.logWarn("identification timed out, retrying",
			"expired", len(expired),
			"attempt", m.attempts,
			"max_retries", m.identifyRetries)
		m.requestIdentity()
		return
	}

	m.identifyTimeouts.Add(1)
	m.correlator.Reset()

	m.mu.Lock()
	m.identity.ID = 0
	m.state = StateIdle
	outcome := m.endSessionLocked(EndIdentifyTimeout, ErrIdentifyTimeout)
	m.mu.Unlock()

	m.logWarn("identification timed out, ending scan", "attempts", m.attempts+1)
	m.notifyEnded(outcome)
}

// setStateLocked moves to a new state and opens a session when leaving IDLE.
// Callers hold mu. It returns the new session, if one was opened.
func (m *Machine) setStateLocked(to State) *ScanInfo {
	from := m.state
	m.state = to
	if from != StateIdle || to == StateIdle {
		return nil
	}

	m.session = &session{
		id:        m.newSessionID(),
		endpoint:  m.identity.Endpoint,
		startedAt: m.clock(),
	}
	m.scansStarted.Add(1)
	return &ScanInfo{
		SessionID: m.session.id,
		Kind:      m.profile.Kind,
		Endpoint:  m.session.endpoint,
		StartedAt: m.session.startedAt,
	}
}

// endSessionLocked closes the active session. Callers hold mu.
func (m *Machine) endSessionLocked(cause EndCause, err error) *ScanOutcome {
	if m.session == nil {
		return nil
	}
	s := m.session
	m.session = nil
	return &ScanOutcome{
		SessionID:  s.id,
		Kind:       m.profile.Kind,
		Endpoint:   s.endpoint,
		Cause:      cause,
		Err:        err,
		Discovered: s.discovered,
		StartedAt:  s.startedAt,
		EndedAt:    m.clock(),
	}
}

// resultLocked builds the result for the current identity. Callers hold mu.
func (m *Machine) resultLocked() Result {
	sessionID := ""
	if m.session != nil {
		sessionID = m.session.id
		m.session.discovered++
	}
	return NewResult(m.profile, m.identity, sessionID, m.clock())
}

func (m *Machine) emit(result Result) {
	m.resultsEmitted.Add(1)
	defer func() {
		if r := recover(); r != nil {
			m.logError("discovery sink panic", fmt.Errorf("%v", r))
		}
	}()
	m.sink.OnDiscovered(result)
}

func (m *Machine) notifyStarted(info *ScanInfo) {
	if info == nil || m.observer == nil {
		return
	}
	m.observer.ScanStarted(*info)
}

func (m *Machine) notifyEnded(outcome *ScanOutcome) {
	if outcome == nil || m.observer == nil {
		return
	}
	m.observer.ScanEnded(*outcome)
}

// logInfo logs an info message if logger is set.
func (m *Machine) logInfo(msg string, keysAndValues ...any) {
	if m.logger != nil {
		m.logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (m *Machine) logWarn(msg string, keysAndValues ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (m *Machine) logError(msg string, err error) {
	if m.logger != nil {
		m.logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (m *Machine) logDebug(msg string, keysAndValues ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, keysAndValues...)
	}
}
