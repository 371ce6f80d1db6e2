package discovery

import "fmt"

// RequestKind identifies an identification request sent to a device.
type RequestKind int

// Identification requests issued by the Correlator.
const (
	RequestFirmwareVersion RequestKind = iota + 1
	RequestMACAddress
)

// String returns the request kind name used in logs.
func (k RequestKind) String() string {
	switch k {
	case RequestFirmwareVersion:
		return "firmware_version"
	case RequestMACAddress:
		return "mac_address"
	default:
		return fmt.Sprintf("request_kind(%d)", int(k))
	}
}

// EventKind identifies a transport event.
type EventKind int

// Transport events delivered by a Link.
const (
	EventConnected EventKind = iota + 1
	EventConnectionError
	EventConnectionClosed
	EventDisconnected
	EventReconnected
	EventMessageReceived
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectionError:
		return "connection_error"
	case EventConnectionClosed:
		return "connection_closed"
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	case EventMessageReceived:
		return "message_received"
	default:
		return fmt.Sprintf("event_kind(%d)", int(k))
	}
}

// Event is a single asynchronous notification from a Link.
// Only the field matching Kind is meaningful.
type Event struct {
	Kind EventKind

	// Endpoint is the connected endpoint (serial port, host) for EventConnected.
	Endpoint string

	// Err is the failure reason for EventConnectionError.
	Err error

	// Payload is the raw frame for EventMessageReceived.
	Payload []byte
}

// Connected builds an EventConnected.
func Connected(endpoint string) Event {
	return Event{Kind: EventConnected, Endpoint: endpoint}
}

// ConnectionError builds an EventConnectionError.
func ConnectionError(err error) Event {
	return Event{Kind: EventConnectionError, Err: err}
}

// ConnectionClosed builds an EventConnectionClosed.
func ConnectionClosed() Event {
	return Event{Kind: EventConnectionClosed}
}

// Disconnected builds an EventDisconnected.
func Disconnected() Event {
	return Event{Kind: EventDisconnected}
}

// Reconnected builds an EventReconnected.
func Reconnected() Event {
	return Event{Kind: EventReconnected}
}

// MessageReceived builds an EventMessageReceived.
func MessageReceived(payload []byte) Event {
	return Event{Kind: EventMessageReceived, Payload: payload}
}

// EventHandler receives Link events.
type EventHandler func(Event)

// Sender sends identification requests to a device.
type Sender interface {
	// Send issues the request. It does not wait for the reply; replies arrive
	// as EventMessageReceived. Only local failures (not connected, write
	// error) are returned.
	Send(kind RequestKind) error
}

// Link is a connectable bus or gateway.
//
// All side effects are asynchronous: Connect returns immediately and its
// outcome arrives as EventConnected or EventConnectionError.
type Link interface {
	Sender

	// Connect starts connecting. A failure is reported as EventConnectionError,
	// never returned.
	Connect()

	// IsConnected reports whether the transport is currently connected.
	IsConnected() bool

	// Subscribe registers a handler for all subsequent events.
	Subscribe(handler EventHandler)
}

// EndpointReporter is implemented by Links that can name the endpoint they
// are connected to. The Machine uses it to refresh the endpoint when a scan
// starts on an already connected Link.
type EndpointReporter interface {
	Endpoint() string
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
