package openwebnet

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	connected bool
	handlers  map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

// Deliver simulates an inbound message on a subscribed topic.
func (m *MockMQTTClient) Deliver(topic string, payload []byte) {
	m.mu.Lock()
	handler := m.handlers[topic]
	m.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// PublishedTo returns messages published to topics with the given prefix.
func (m *MockMQTTClient) PublishedTo(prefix string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// fakePort is a serial.Port backed by a pipe. Frames written to it are
// answered from replies, in order, on a single feeder goroutine.
type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written []string
	closed  bool
	replies map[string][]byte
	feed    chan []byte
}

// Ensure fakePort implements serial.Port.
var _ serial.Port = (*fakePort)(nil)

func newFakePort(replies map[string][]byte) *fakePort {
	r, w := io.Pipe()
	p := &fakePort{r: r, w: w, replies: replies, feed: make(chan []byte, 16)}
	go func() {
		for b := range p.feed {
			if _, err := p.w.Write(b); err != nil {
				return
			}
		}
	}()
	return p
}

// dongleReplies answers identification requests like a dongle with the
// given id and firmware.
func dongleReplies(id uint32, firmware string) map[string][]byte {
	return map[string][]byte{
		"*#13**16##": append([]byte(FrameACK), EncodeFirmwareReply(firmware)...),
		"*#13**12##": append([]byte(FrameACK), EncodeMACReply(id)...),
	}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	p.written = append(p.written, string(b))
	if reply, ok := p.replies[string(b)]; ok {
		select {
		case p.feed <- reply:
		default:
		}
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.r.CloseWithError(io.ErrClosedPipe)
	close(p.feed)
	return nil
}

// unplug simulates the dongle being removed.
func (p *fakePort) unplug() {
	p.w.CloseWithError(errors.New("device removed"))
}

func (p *fakePort) writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func (p *fakePort) SetMode(*serial.Mode) error { return nil }
func (p *fakePort) Drain() error { return nil }
func (p *fakePort) ResetInputBuffer() error { return nil }
func (p *fakePort) ResetOutputBuffer() error { return nil }
func (p *fakePort) SetDTR(bool) error { return nil }
func (p *fakePort) SetRTS(bool) error { return nil }
func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return &serial.ModemStatusBits{}, nil }
func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (p *fakePort) Break(time.Duration) error { return nil }

// portOpener hands out fake ports and records what was opened.
type portOpener struct {
	mu      sync.Mutex
	replies map[string][]byte
	err     error
	opened  []string
	modes   []serial.Mode
	ports   []*fakePort
}

func (o *portOpener) open(name string, mode *serial.Mode) (serial.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, name)
	o.modes = append(o.modes, *mode)
	if o.err != nil {
		return nil, o.err
	}
	p := newFakePort(o.replies)
	o.ports = append(o.ports, p)
	return p, nil
}

func (o *portOpener) last() *fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.ports) == 0 {
		return nil
	}
	return o.ports[len(o.ports)-1]
}

func (o *portOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

// eventRecorder collects link events.
type eventRecorder struct {
	mu     sync.Mutex
	events []discovery.Event
}

func (r *eventRecorder) handle(ev discovery.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) kinds() []discovery.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]discovery.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *eventRecorder) find(kind discovery.EventKind) (discovery.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return discovery.Event{}, false
}

// fakeDongleLink is a synchronous DongleLink for bridge tests.
type fakeDongleLink struct {
	mu        sync.Mutex
	port      string
	connected bool
	closed    bool
	sent      []discovery.RequestKind
	handlers  []discovery.EventHandler
	autoReply uint32
}

func (l *fakeDongleLink) Connect() {
	l.mu.Lock()
	l.connected = true
	port := l.port
	l.mu.Unlock()
	l.emit(discovery.Connected(port))
}

func (l *fakeDongleLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *fakeDongleLink) Send(kind discovery.RequestKind) error {
	l.mu.Lock()
	l.sent = append(l.sent, kind)
	id := l.autoReply
	l.mu.Unlock()

	if id == 0 {
		return nil
	}
	switch kind {
	case discovery.RequestFirmwareVersion:
		l.emit(discovery.MessageReceived(EncodeFirmwareReply("1.2.4")))
	case discovery.RequestMACAddress:
		l.emit(discovery.MessageReceived(EncodeMACReply(id)))
	}
	return nil
}

func (l *fakeDongleLink) Subscribe(handler discovery.EventHandler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, handler)
	l.mu.Unlock()
}

func (l *fakeDongleLink) emit(ev discovery.Event) {
	l.mu.Lock()
	handlers := append([]discovery.EventHandler(nil), l.handlers...)
	l.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (l *fakeDongleLink) Stats() SerialStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return SerialStats{Connected: l.connected, Port: l.port}
}

func (l *fakeDongleLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.connected = false
	l.mu.Unlock()
	l.emit(discovery.ConnectionClosed())
	return nil
}

func (l *fakeDongleLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
