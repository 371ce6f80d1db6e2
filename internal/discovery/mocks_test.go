package discovery

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeLink is a synchronous Link. Events are delivered on the caller's
// goroutine by the emit helpers.
type fakeLink struct {
	mu        sync.Mutex
	connected bool
	connects  int
	sent      []RequestKind
	sendErr   error
	handlers  []EventHandler
}

func (l *fakeLink) Connect() {
	l.mu.Lock()
	l.connects++
	l.mu.Unlock()
}

func (l *fakeLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *fakeLink) Send(kind RequestKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, kind)
	return l.sendErr
}

func (l *fakeLink) Subscribe(handler EventHandler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, handler)
	l.mu.Unlock()
}

func (l *fakeLink) emit(ev Event) {
	l.mu.Lock()
	handlers := append([]EventHandler(nil), l.handlers...)
	l.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// reportingLink is a fakeLink that also names its endpoint.
type reportingLink struct {
	*fakeLink
	endpoint string
}

func (l *reportingLink) Endpoint() string { return l.endpoint }

// connect marks the link connected and emits EventConnected.
func (l *fakeLink) connect(endpoint string) {
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
	l.emit(Connected(endpoint))
}

// drop marks the link disconnected and emits ev.
func (l *fakeLink) drop(ev Event) {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	l.emit(ev)
}

func (l *fakeLink) message(s string) {
	l.emit(MessageReceived([]byte(s)))
}

func (l *fakeLink) sentKinds() []RequestKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RequestKind(nil), l.sent...)
}

func (l *fakeLink) connectCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects
}

var errGarbage = errors.New("garbage payload")

// textDecoder understands "fw:<version>", "id:<n>" and "ack".
type textDecoder struct{}

func (textDecoder) Decode(payload []byte) (Reply, error) {
	s := string(payload)
	switch {
	case s == "ack":
		return Reply{}, nil
	case strings.HasPrefix(s, "fw:"):
		return Reply{Kind: RequestFirmwareVersion, FirmwareVersion: strings.TrimPrefix(s, "fw:")}, nil
	case strings.HasPrefix(s, "id:"):
		n, err := strconv.ParseUint(strings.TrimPrefix(s, "id:"), 10, 32)
		if err != nil {
			return Reply{}, errGarbage
		}
		return Reply{Kind: RequestMACAddress, DeviceID: uint32(n)}, nil
	default:
		return Reply{}, errGarbage
	}
}

// recordingSink records every result it receives.
type recordingSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *recordingSink) OnDiscovered(r Result) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

func (s *recordingSink) all() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// recordingObserver records scan starts and ends.
type recordingObserver struct {
	mu      sync.Mutex
	started []ScanInfo
	ended   []ScanOutcome
}

func (o *recordingObserver) ScanStarted(info ScanInfo) {
	o.mu.Lock()
	o.started = append(o.started, info)
	o.mu.Unlock()
}

func (o *recordingObserver) ScanEnded(outcome ScanOutcome) {
	o.mu.Lock()
	o.ended = append(o.ended, outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) outcomes() []ScanOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ScanOutcome(nil), o.ended...)
}

func (o *recordingObserver) starts() []ScanInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ScanInfo(nil), o.started...)
}

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

// sequentialIDs returns a session id generator yielding "s1", "s2", ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "s" + strconv.Itoa(n)
	}
}

var testProfile = Profile{
	Kind:             "openwebnet:dongle",
	Label:            "ZigBee USB Gateway",
	EndpointProperty: "serialPort",
	FirmwareProperty: "firmwareVersion",
	IDProperty:       "zigbeeid",
}

type harness struct {
	link     *fakeLink
	sink     *recordingSink
	observer *recordingObserver
	machine  *Machine
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		link:     &fakeLink{},
		sink:     &recordingSink{},
		observer: &recordingObserver{},
	}
	opts := Options{
		Link:         h.link,
		Decoder:      textDecoder{},
		Sink:         h.sink,
		Observer:     h.observer,
		Profile:      testProfile,
		Clock:        fixedClock,
		NewSessionID: sequentialIDs(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	m, err := NewMachine(opts)
	if err != nil {
		t.Fatalf("NewMachine() error: %v", err)
	}
	h.machine = m
	return h
}

// identify drives a fresh harness to IDENTIFIED with id 42 on COM3.
func (h *harness) identify() {
	h.machine.Start()
	h.link.connect("COM3")
	h.link.message("fw:1.2.3")
	h.link.message("id:42")
}
