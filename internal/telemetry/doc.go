// Package telemetry turns discovery activity into Prometheus metrics and,
// when InfluxDB is enabled, time-series points.
//
// Both Metrics and InfluxRecorder implement discovery.Sink and
// discovery.Observer so they can be fanned into every Machine next to the
// MQTT publisher and the inbox recorder.
//
// Prometheus collectors:
//
//	graylogic_discovery_scans_total{endpoint}     scan sessions started
//	graylogic_discovery_results_total{kind}       results emitted
//	graylogic_discovery_scan_end_total{cause}     scan sessions ended
//	graylogic_discovery_identified{endpoint}      1 while a device is identified
//
// InfluxDB measurements are discovery_result and discovery_scan.
package telemetry
