package tahoma

import "errors"

// Domain errors for the TaHoma bridge package.
var (
	// ErrUnknownChannel is returned when a command targets a channel the
	// profile does not map.
	ErrUnknownChannel = errors.New("tahoma: unknown channel")

	// ErrUnsupportedCommand is returned when a command has no TaHoma
	// equivalent in the profile.
	ErrUnsupportedCommand = errors.New("tahoma: unsupported command")

	// ErrInvalidPosition is returned for numeric commands outside 0-100.
	ErrInvalidPosition = errors.New("tahoma: position must be between 0 and 100")

	// ErrUnknownProfile is returned when a device names a profile that is
	// not registered.
	ErrUnknownProfile = errors.New("tahoma: unknown profile")

	// ErrUnknownDevice is returned when a message targets an unconfigured
	// device.
	ErrUnknownDevice = errors.New("tahoma: unknown device")

	// ErrSenderRequired is returned by NewHandler without a CommandSender.
	ErrSenderRequired = errors.New("tahoma: command sender is required")

	// ErrMQTTRequired is returned by NewBridge without an MQTT client.
	ErrMQTTRequired = errors.New("tahoma: MQTT client is required")
)
