package discovery

import (
	"fmt"
	"time"
)

// Sink receives deduplicated discovery results.
//
// A Machine calls OnDiscovered at most once per identified device per
// connection session, plus once for every explicit re-announce via Start.
// Deduplication across Machines is the sink's responsibility.
type Sink interface {
	OnDiscovered(result Result)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Result)

// OnDiscovered calls f(result).
func (f SinkFunc) OnDiscovered(result Result) {
	f(result)
}

// MultiSink fans a result out to several sinks in order.
// A panicking sink is recovered so the remaining sinks still run.
type MultiSink struct {
	sinks  []Sink
	logger Logger
}

// NewMultiSink creates a fan-out sink. Nil sinks are skipped.
func NewMultiSink(logger Logger, sinks ...Sink) *MultiSink {
	m := &MultiSink{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends a sink.
func (m *MultiSink) Add(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// OnDiscovered delivers the result to every sink.
func (m *MultiSink) OnDiscovered(result Result) {
	for _, s := range m.sinks {
		m.deliver(s, result)
	}
}

func (m *MultiSink) deliver(s Sink, result Result) {
	defer func() {
		if r := recover(); r != nil && m.logger != nil {
			m.logger.Error("discovery sink panic", "uid", result.UID, "error", fmt.Errorf("%v", r))
		}
	}()
	s.OnDiscovered(result)
}

// EndCause says why a scan session ended.
type EndCause string

// Scan end causes.
const (
	EndStopped          EndCause = "stopped"
	EndNoTransport      EndCause = "no_transport"
	EndConnectionError  EndCause = "connection_error"
	EndConnectionClosed EndCause = "connection_closed"
	EndDisconnected     EndCause = "disconnected"
	EndIdentifyTimeout  EndCause = "identify_timeout"
)

// Failed reports whether the cause is a scan failure rather than a normal end.
func (c EndCause) Failed() bool {
	switch c {
	case EndConnectionError, EndDisconnected, EndIdentifyTimeout:
		return true
	default:
		return false
	}
}

// ScanInfo describes a scan session when it starts.
type ScanInfo struct {
	SessionID string
	Kind      DeviceKind
	Endpoint  string
	StartedAt time.Time
}

// ScanOutcome describes a scan session when it ends.
// Err is nil unless Cause.Failed().
type ScanOutcome struct {
	SessionID  string
	Kind       DeviceKind
	Endpoint   string
	Cause      EndCause
	Err        error
	Discovered int
	StartedAt  time.Time
	EndedAt    time.Time
}

// Observer is notified when scan sessions start and end.
type Observer interface {
	ScanStarted(info ScanInfo)
	ScanEnded(outcome ScanOutcome)
}

// MultiObserver fans scan notifications out to several observers.
type MultiObserver []Observer

// ScanStarted notifies every observer.
func (m MultiObserver) ScanStarted(info ScanInfo) {
	for _, o := range m {
		if o != nil {
			o.ScanStarted(info)
		}
	}
}

// ScanEnded notifies every observer.
func (m MultiObserver) ScanEnded(outcome ScanOutcome) {
	for _, o := range m {
		if o != nil {
			o.ScanEnded(outcome)
		}
	}
}
