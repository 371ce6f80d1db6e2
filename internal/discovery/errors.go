package discovery

import "errors"

// Domain errors for the discovery package.
var (
	// ErrNoTransport is reported by a Link when no capable transport exists
	// (for example no serial ports). A scan ending with it found nothing and
	// did not fail.
	ErrNoTransport = errors.New("discovery: no capable transport found")

	// ErrConnectionFailed is returned when the transport could not be connected.
	ErrConnectionFailed = errors.New("discovery: connection failed")

	// ErrUnexpectedDisconnect ends a scan when the transport drops.
	ErrUnexpectedDisconnect = errors.New("discovery: transport disconnected")

	// ErrIdentifyTimeout ends a scan when the device never answered the
	// identification requests.
	ErrIdentifyTimeout = errors.New("discovery: identification timed out")

	// ErrLinkRequired is returned by NewMachine without a Link.
	ErrLinkRequired = errors.New("discovery: link is required")

	// ErrSinkRequired is returned by NewMachine without a Sink.
	ErrSinkRequired = errors.New("discovery: sink is required")

	// ErrDecoderRequired is returned when a Correlator cannot be built
	// because no Decoder was given.
	ErrDecoderRequired = errors.New("discovery: decoder is required")
)
