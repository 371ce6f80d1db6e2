package influxdb

import "errors"

// Errors returned by the telemetry client. Wrapped errors keep these as
// their cause, so match them with errors.Is.
var (
	// ErrDisabled is returned by Connect when telemetry is switched off.
	// Callers treat it as "run without InfluxDB", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps ping and health failures during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck once the client is closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps asynchronous write errors handed to the
	// SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
