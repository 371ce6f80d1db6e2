// Package api implements the HTTP REST API and WebSocket server for Gray Logic Discovery.
//
// This package provides:
//   - Scan control endpoints (start/stop on all or one dongle)
//   - The discovery inbox: list, fetch and dismiss discovered devices
//   - Scan session history
//   - A WebSocket hub broadcasting discovery.found, discovery.scan_started,
//     discovery.scan_ended and bridge.health events
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The Hub is a discovery.Sink and discovery.Observer; main adds it to the
// OpenWebNet bridge's sink chain next to the inbox recorder and metrics.
// Bridge health arrives over MQTT and is relayed when an MQTT subscriber
// is supplied.
//
// # Graceful Degradation
//
// The server runs without MQTT (no bridge.health relay) and without
// metrics (GET /metrics answers 503).
package api
