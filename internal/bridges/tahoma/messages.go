package tahoma

import (
	"fmt"
	"time"
)

// CommandMessage is a channel command from Core.
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	// Channel defaults to "control".
	Channel string `json:"channel,omitempty"`

	// Command is UP, DOWN, STOP, ON, OFF or a position such as "40".
	Command string `json:"command"`
}

// ExecMessage asks the TaHoma gateway to run an action.
type ExecMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
}

// StatesMessage carries attribute reports from the TaHoma gateway.
type StatesMessage struct {
	States []State `json:"states"`
}

// StateMessage is the retained channel state for a device.
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
}

// AckStatus is the outcome of a command.
type AckStatus string

// Acknowledgement statuses.
const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// AckMessage acknowledges a CommandMessage.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Action    *Action   `json:"action,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Topic helpers

const (
	// TopicPrefix is the base topic for all Gray Logic messages.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment used in topics.
	Protocol = "tahoma"
)

// CommandTopic returns the command topic for a device.
// Example: graylogic/command/tahoma/pergola-1
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// ExecTopic returns the gateway action topic for a device.
// Example: graylogic/bridge/tahoma/pergola-1/exec
func ExecTopic(deviceID string) string {
	return fmt.Sprintf("%s/bridge/%s/%s/exec", TopicPrefix, Protocol, deviceID)
}

// StatesTopic returns the gateway attribute report topic for a device.
// Example: graylogic/bridge/tahoma/pergola-1/states
func StatesTopic(deviceID string) string {
	return fmt.Sprintf("%s/bridge/%s/%s/states", TopicPrefix, Protocol, deviceID)
}

// StateTopic returns the retained channel state topic for a device.
// Example: graylogic/state/tahoma/pergola-1
func StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceID)
}

// AckTopic returns the acknowledgement topic for a device.
// Example: graylogic/ack/tahoma/pergola-1
func AckTopic(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}
