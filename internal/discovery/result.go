package discovery

import (
	"fmt"
	"strconv"
	"time"
)

// DeviceKind identifies a type of discoverable device, e.g. "openwebnet:dongle".
type DeviceKind string

// Default property names used when a Profile leaves them empty.
const (
	DefaultEndpointProperty = "endpoint"
	DefaultFirmwareProperty = "firmwareVersion"
	DefaultIDProperty       = "deviceId"
	DefaultLabel            = "Device"
	DefaultKind             = DeviceKind("generic:device")
)

// DeviceIdentity is what the Machine knows about the device on the other end
// of the transport. ID 0 means the device has not identified itself yet.
type DeviceIdentity struct {
	ID              uint32 `json:"id"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	Endpoint        string `json:"endpoint"`
}

// Known reports whether the device id has been resolved.
func (d DeviceIdentity) Known() bool {
	return d.ID != 0
}

// Profile describes how results for one kind of device are labelled and
// which property names they carry.
type Profile struct {
	Kind             DeviceKind
	Label            string
	EndpointProperty string
	FirmwareProperty string
	IDProperty       string
}

// withDefaults fills empty fields.
func (p Profile) withDefaults() Profile {
	if p.Kind == "" {
		p.Kind = DefaultKind
	}
	if p.Label == "" {
		p.Label = DefaultLabel
	}
	if p.EndpointProperty == "" {
		p.EndpointProperty = DefaultEndpointProperty
	}
	if p.FirmwareProperty == "" {
		p.FirmwareProperty = DefaultFirmwareProperty
	}
	if p.IDProperty == "" {
		p.IDProperty = DefaultIDProperty
	}
	return p
}

// Result is a single discovery event handed to a Sink.
type Result struct {
	// UID is the stable identifier "<kind>:<id>".
	UID string `json:"uid"`

	// ID is the device id in decimal.
	ID string `json:"id"`

	Kind     DeviceKind     `json:"kind"`
	Label    string         `json:"label"`
	Identity DeviceIdentity `json:"identity"`

	// Properties holds the endpoint, firmware version and device id under the
	// names given by the Profile.
	Properties map[string]any `json:"properties"`

	// RepresentationProperty names the property hosts deduplicate on.
	RepresentationProperty string `json:"representation_property"`

	SessionID    string    `json:"session_id"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// NewResult builds a Result for an identified device.
func NewResult(p Profile, identity DeviceIdentity, sessionID string, at time.Time) Result {
	p = p.withDefaults()
	id := strconv.FormatUint(uint64(identity.ID), 10)

	return Result{
		UID:      string(p.Kind) + ":" + id,
		ID:       id,
		Kind:     p.Kind,
		Label:    Label(p.Label, identity),
		Identity: identity,
		Properties: map[string]any{
			p.EndpointProperty: identity.Endpoint,
			p.FirmwareProperty: identity.FirmwareVersion,
			p.IDProperty:       identity.ID,
		},
		RepresentationProperty: p.IDProperty,
		SessionID:              sessionID,
		DiscoveredAt:           at,
	}
}

// Label formats a human readable label such as
// "ZigBee USB Gateway (ID=42, /dev/ttyUSB0, v=1.2.3)".
// The firmware part is left out while the version is unknown.
func Label(prefix string, identity DeviceIdentity) string {
	if identity.FirmwareVersion == "" {
		return fmt.Sprintf("%s (ID=%d, %s)", prefix, identity.ID, identity.Endpoint)
	}
	return fmt.Sprintf("%s (ID=%d, %s, v=%s)", prefix, identity.ID, identity.Endpoint, identity.FirmwareVersion)
}
