// Package influxdb provides InfluxDB connectivity for Gray Logic Discovery.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched point writes and health checks. The telemetry
// package writes discovery results and finished scan sessions through it.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry points are not written
//	}
//	defer client.Close()
//
//	rec := telemetry.NewInfluxRecorder(client)
//
// # Error Handling
//
// Writes are non-blocking. Batch failures are delivered to the SetOnError
// callback wrapped in ErrWriteFailed. Connection and health check errors
// are returned directly.
package influxdb
