package openwebnet

import "errors"

// Domain errors for the OpenWebNet bridge package.
var (
	// ErrNotConnected is returned when a request is sent while the serial
	// port is not open.
	ErrNotConnected = errors.New("openwebnet: not connected to dongle")

	// ErrLinkClosed is reported when Connect is called after Close.
	ErrLinkClosed = errors.New("openwebnet: link closed")

	// ErrInvalidFrame is returned when a payload is not a well-formed
	// OpenWebNet frame.
	ErrInvalidFrame = errors.New("openwebnet: invalid frame")

	// ErrUnsupportedRequest is returned when a request kind has no
	// OpenWebNet encoding.
	ErrUnsupportedRequest = errors.New("openwebnet: unsupported request")

	// ErrWriteFailed is returned when writing a frame to the port fails.
	ErrWriteFailed = errors.New("openwebnet: write failed")

	// ErrFrameTooLong is returned by the frame splitter when no terminator
	// is found within the maximum frame size.
	ErrFrameTooLong = errors.New("openwebnet: frame exceeds maximum length")

	// ErrUnknownDongle is returned when a scan targets a dongle name that
	// is not configured.
	ErrUnknownDongle = errors.New("openwebnet: unknown dongle")

	// ErrMQTTRequired is returned by NewBridge without an MQTT client.
	ErrMQTTRequired = errors.New("openwebnet: MQTT client is required")
)
