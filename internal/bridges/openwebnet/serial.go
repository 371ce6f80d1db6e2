package openwebnet

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default serial settings and reconnect intervals.
const (
	// DefaultBaudRate is the dongle's factory baud rate.
	DefaultBaudRate = 19200

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 1 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// readBufferSize is the scanner's initial buffer size.
	readBufferSize = 256
)

// PortOpener opens a serial port. serial.Open in production.
type PortOpener func(name string, mode *serial.Mode) (serial.Port, error)

// PortLister enumerates serial ports. enumerator.GetDetailedPortsList in
// production.
type PortLister func() ([]*enumerator.PortDetails, error)

// SerialConfig holds serial link configuration.
type SerialConfig struct {
	// Port is the serial device, e.g. "/dev/ttyUSB0" or "COM3".
	// Empty means: use the first port matching USBVID/USBPID.
	Port string

	// BaudRate is the line speed. Default: 19200.
	BaudRate int

	// USBVID and USBPID filter enumerated ports (hex, case-insensitive).
	// Empty matches any port.
	USBVID string
	USBPID string

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 1 second.
	ReconnectInterval time.Duration

	// Open overrides how ports are opened. Default: serial.Open.
	Open PortOpener

	// List overrides port enumeration. Default: enumerator.GetDetailedPortsList.
	List PortLister
}

// SerialStats holds operational statistics.
type SerialStats struct {
	FramesRx        uint64    `json:"frames_rx"`
	FramesTx        uint64    `json:"frames_tx"`
	ErrorsTotal     uint64    `json:"errors_total"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	LastActivity    time.Time `json:"last_activity"`
	Connected       bool      `json:"connected"`
	Reconnecting    bool      `json:"reconnecting"`
	Port            string    `json:"port,omitempty"`
}

// SerialLink is a discovery.Link over an OpenWebNet USB dongle.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Events are delivered from the link's goroutines, in order per link.
//
// Auto-Reconnection:
//   - When the port fails, Disconnected is emitted and the link reopens the
//     port with exponential backoff from ReconnectInterval up to 2 minutes.
//   - A reopened port emits Reconnected followed by Connected.
//   - Reconnection stops only when Close() is called.
type SerialLink struct {
	cfg  SerialConfig
	open PortOpener
	list PortLister

	// Connection state
	connMu    sync.RWMutex
	port      serial.Port
	portName  string
	connected bool
	busy      atomic.Bool // connecting or reconnecting
	reconnect atomic.Bool

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   []discovery.EventHandler

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	framesRx        atomic.Uint64
	framesTx        atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// Ensure SerialLink implements discovery.Link.
var _ discovery.Link = (*SerialLink)(nil)

// NewSerialLink creates an unconnected link. Call Connect (usually via a
// discovery.Machine) to open the port.
func NewSerialLink(cfg SerialConfig) *SerialLink {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	open := cfg.Open
	if open == nil {
		open = serial.Open
	}
	list := cfg.List
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}

	return &SerialLink{
		cfg:  cfg,
		open: open,
		list: list,
		done: newCloseOnce(),
	}
}

// Connect opens the port in the background. The outcome is reported as
// EventConnected or EventConnectionError. Calls while connected or while a
// connection attempt is in progress are ignored.
func (l *SerialLink) Connect() {
	if l.isClosed() {
		l.emit(discovery.ConnectionError(ErrLinkClosed))
		return
	}
	if l.IsConnected() || !l.busy.CompareAndSwap(false, true) {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		name, err := l.openPort()
		l.busy.Store(false)
		if err != nil {
			l.errorsTotal.Add(1)
			l.logError("dongle connection failed", err)
			l.emit(discovery.ConnectionError(err))
			return
		}

		l.logInfo("dongle connected", "port", name)
		l.emit(discovery.Connected(name))

		l.wg.Add(1)
		go l.receiveLoop()
	}()
}

// openPort resolves and opens the port and marks the link connected.
func (l *SerialLink) openPort() (string, error) {
	name, err := l.resolvePort()
	if err != nil {
		return "", err
	}

	port, err := l.open(name, l.mode())
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", discovery.ErrConnectionFailed, name, err)
	}

	l.connMu.Lock()
	if l.isClosed() {
		l.connMu.Unlock()
		port.Close()
		return "", ErrLinkClosed
	}
	l.port = port
	l.portName = name
	l.connected = true
	l.connMu.Unlock()

	l.lastActivity.Store(time.Now().Unix())
	return name, nil
}

// resolvePort returns the configured port or the first enumerated port
// matching the USB filter. No candidate yields discovery.ErrNoTransport.
func (l *SerialLink) resolvePort() (string, error) {
	if l.cfg.Port != "" {
		return l.cfg.Port, nil
	}

	ports, err := l.list()
	if err != nil {
		return "", fmt.Errorf("%w: enumerate ports: %w", discovery.ErrConnectionFailed, err)
	}

	for _, p := range ports {
		if p == nil || !l.matches(p) {
			continue
		}
		return p.Name, nil
	}
	return "", discovery.ErrNoTransport
}

// matches applies the USB VID/PID filter.
func (l *SerialLink) matches(p *enumerator.PortDetails) bool {
	if l.cfg.USBVID == "" && l.cfg.USBPID == "" {
		return true
	}
	if !p.IsUSB {
		return false
	}
	if l.cfg.USBVID != "" && !strings.EqualFold(p.VID, l.cfg.USBVID) {
		return false
	}
	if l.cfg.USBPID != "" && !strings.EqualFold(p.PID, l.cfg.USBPID) {
		return false
	}
	return true
}

func (l *SerialLink) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: l.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// receiveLoop reads frames until the port fails, then reconnects.
func (l *SerialLink) receiveLoop() {
	defer l.wg.Done()

	for {
		l.connMu.RLock()
		port := l.port
		l.connMu.RUnlock()

		if port != nil {
			err := l.readFrames(port)
			if l.isClosed() {
				return
			}
			l.handleReadError(err)
		}

		if !l.reconnectPort() {
			return
		}
	}
}

// readFrames delivers frames from port until a read fails. io.EOF is
// reported as a nil error.
func (l *SerialLink) readFrames(port serial.Port) error {
	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, readBufferSize), maxFrameLength+len(frameTerminator))
	scanner.Split(SplitFrames)

	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)
		l.framesRx.Add(1)
		l.lastActivity.Store(time.Now().Unix())
		l.emit(discovery.MessageReceived(frame))
	}
	return scanner.Err()
}

// handleReadError marks the link disconnected and emits Disconnected.
func (l *SerialLink) handleReadError(err error) {
	if err == nil {
		err = errors.New("port closed by device")
	}
	l.errorsTotal.Add(1)
	l.logError("dongle read failed", err)

	l.connMu.Lock()
	wasConnected := l.connected
	l.connected = false
	if l.port != nil {
		l.port.Close()
		l.port = nil
	}
	l.connMu.Unlock()

	if wasConnected {
		l.logInfo("dongle lost, will attempt reconnection", "port", l.portName)
		l.emit(discovery.Disconnected())
	}
}

// reconnectPort reopens the port with exponential backoff.
// Returns true once reconnected, false if the link was closed.
func (l *SerialLink) reconnectPort() bool {
	l.busy.Store(true)
	l.reconnect.Store(true)
	defer func() {
		l.reconnect.Store(false)
		l.busy.Store(false)
	}()

	backoff := l.cfg.ReconnectInterval
	attempt := 0

	for {
		select {
		case <-l.done.Done():
			return false
		case <-time.After(backoff):
		}

		attempt++
		l.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		name, err := l.openPort()
		if err != nil {
			if l.isClosed() {
				return false
			}
			l.errorsTotal.Add(1)
			l.logError("reconnect failed", err)
			backoff = nextBackoff(backoff)
			continue
		}

		l.reconnectsTotal.Add(1)
		l.logInfo("reconnection successful", "port", name, "total_reconnects", l.reconnectsTotal.Load())
		l.emit(discovery.Reconnected())
		l.emit(discovery.Connected(name))
		return true
	}
}

// nextBackoff grows the delay by half, capped at maxReconnectInterval.
func nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * 1.5)
	if next > maxReconnectInterval {
		next = maxReconnectInterval
	}
	return next
}

// Send writes the frame for an identification request.
func (l *SerialLink) Send(kind discovery.RequestKind) error {
	frame, err := EncodeRequest(kind)
	if err != nil {
		return err
	}

	l.connMu.RLock()
	port := l.port
	connected := l.connected
	l.connMu.RUnlock()

	if !connected || port == nil {
		return ErrNotConnected
	}

	l.writeMu.Lock()
	_, err = port.Write(frame)
	l.writeMu.Unlock()
	if err != nil {
		l.errorsTotal.Add(1)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	l.framesTx.Add(1)
	l.lastActivity.Store(time.Now().Unix())
	l.logDebug("frame sent", "request", kind.String(), "frame", string(frame))
	return nil
}

// Subscribe registers a handler for all subsequent events.
func (l *SerialLink) Subscribe(handler discovery.EventHandler) {
	if handler == nil {
		return
	}
	l.handlersMu.Lock()
	l.handlers = append(l.handlers, handler)
	l.handlersMu.Unlock()
}

// emit delivers an event to every handler, recovering handler panics.
func (l *SerialLink) emit(ev discovery.Event) {
	l.handlersMu.RLock()
	handlers := append([]discovery.EventHandler(nil), l.handlers...)
	l.handlersMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logError("event handler panic", fmt.Errorf("%v", r))
				}
			}()
			h(ev)
		}()
	}
}

// IsConnected returns true while the port is open.
func (l *SerialLink) IsConnected() bool {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.connected
}

// Port returns the name of the open (or last opened) port.
func (l *SerialLink) Port() string {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.portName
}

// Endpoint implements discovery.EndpointReporter.
func (l *SerialLink) Endpoint() string {
	return l.Port()
}

// Stats returns current operational statistics.
func (l *SerialLink) Stats() SerialStats {
	return SerialStats{
		FramesRx:        l.framesRx.Load(),
		FramesTx:        l.framesTx.Load(),
		ErrorsTotal:     l.errorsTotal.Load(),
		ReconnectsTotal: l.reconnectsTotal.Load(),
		LastActivity:    time.Unix(l.lastActivity.Load(), 0),
		Connected:       l.IsConnected(),
		Reconnecting:    l.reconnect.Load(),
		Port:            l.Port(),
	}
}

// Close closes the port and stops reconnection. It emits
// EventConnectionClosed once. Safe to call multiple times.
func (l *SerialLink) Close() error {
	if l.isClosed() {
		return nil
	}
	l.done.Close()

	l.connMu.Lock()
	l.connected = false
	var err error
	if l.port != nil {
		err = l.port.Close()
		l.port = nil
	}
	l.connMu.Unlock()

	l.wg.Wait()

	l.logInfo("dongle link closed", "port", l.Port())
	l.emit(discovery.ConnectionClosed())
	return err
}

// SetLogger sets the logger for this link.
func (l *SerialLink) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// isClosed returns true if the link has been closed.
func (l *SerialLink) isClosed() bool {
	select {
	case <-l.done.Done():
		return true
	default:
		return false
	}
}

func (l *SerialLink) getLogger() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

func (l *SerialLink) logInfo(msg string, keysAndValues ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (l *SerialLink) logDebug(msg string, keysAndValues ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (l *SerialLink) logError(msg string, err error) {
	if logger := l.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
