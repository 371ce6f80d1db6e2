package openwebnet

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

// MQTT messages exchanged between the OpenWebNet bridge and Core.

// ScanCommand is sent from Core to start or stop scanning.
// Topic: graylogic/command/discovery/openwebnet
type ScanCommand struct {
	// Action is "start" or "stop".
	Action string `json:"action"`

	// Dongle limits the command to one configured dongle. Empty means all.
	Dongle string `json:"dongle,omitempty"`
}

// Scan command actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// ResultMessage announces a discovered dongle.
// Topic: graylogic/discovery/openwebnet/{uid}
// QoS: 1, Retained: Yes
type ResultMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Bridge    string    `json:"bridge"`
	Dongle    string    `json:"dongle"`
	discovery.Result
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge has shut down.
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/openwebnet
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Dongles       []DongleHealth    `json:"dongles,omitempty"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// DongleHealth is the per-dongle part of a HealthMessage.
type DongleHealth struct {
	Name       string `json:"name"`
	Port       string `json:"port,omitempty"`
	State      string `json:"state"`
	Connected  bool   `json:"connected"`
	Identified bool   `json:"identified"`
	DeviceID   uint32 `json:"device_id,omitempty"`
}

// BridgeStatistics sums link counters across dongles.
type BridgeStatistics struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	Errors         uint64 `json:"errors"`
	Reconnects     uint64 `json:"reconnects"`
	Results        uint64 `json:"results"`
}

// Offline reasons.
const (
	reasonShutdown = "shutdown"
)

// NewOfflineMessage creates the health message left behind when the bridge
// goes away.
func NewOfflineMessage(bridgeID, reason string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    reason,
	}
}

// Topic helpers

const (
	// TopicPrefix is the base topic for all Gray Logic messages.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment used in topics.
	Protocol = "openwebnet"
)

// ResultTopic returns the retained topic for a discovery result.
// Example: graylogic/discovery/openwebnet/openwebnet:dongle:765432
func ResultTopic(uid string) string {
	return fmt.Sprintf("%s/discovery/%s/%s", TopicPrefix, Protocol, uid)
}

// CommandTopic returns the topic for scan commands.
// Example: graylogic/command/discovery/openwebnet
func CommandTopic() string {
	return fmt.Sprintf("%s/command/discovery/%s", TopicPrefix, Protocol)
}

// HealthTopic returns the topic for bridge health.
// Example: graylogic/health/openwebnet
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}
