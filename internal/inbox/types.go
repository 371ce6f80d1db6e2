package inbox

import (
	"time"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

// Entry is a discovery result as stored in the inbox.
type Entry struct {
	UID                    string               `json:"uid"`
	Kind                   discovery.DeviceKind `json:"kind"`
	DeviceID               uint32               `json:"device_id"`
	Label                  string               `json:"label"`
	Endpoint               string               `json:"endpoint"`
	FirmwareVersion        string               `json:"firmware_version,omitempty"`
	Properties             map[string]any       `json:"properties"`
	RepresentationProperty string               `json:"representation_property"`
	SessionID              string               `json:"session_id,omitempty"`
	FirstSeen              time.Time            `json:"first_seen"`
	LastSeen               time.Time            `json:"last_seen"`
	SeenCount              int                  `json:"seen_count"`
}

// Session is a recorded scan session. EndedAt is nil while the session is
// still running.
type Session struct {
	ID         string               `json:"id"`
	Kind       discovery.DeviceKind `json:"kind"`
	Endpoint   string               `json:"endpoint,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	EndedAt    *time.Time           `json:"ended_at,omitempty"`
	Cause      discovery.EndCause   `json:"cause,omitempty"`
	Error      string               `json:"error,omitempty"`
	Discovered int                  `json:"discovered"`
}

// ListFilter narrows List results.
type ListFilter struct {
	// Kind limits results to one device kind. Empty means all kinds.
	Kind discovery.DeviceKind

	// Limit caps the number of entries. Default 100, maximum 1000.
	Limit int
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
