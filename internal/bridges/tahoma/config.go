package tahoma

import (
	"fmt"
	"strings"
)

// Config holds TaHoma bridge configuration.
type Config struct {
	// Devices lists the TaHoma devices handled by the bridge.
	Devices []DeviceConfig
}

// DeviceConfig binds a TaHoma device to a built-in profile.
type DeviceConfig struct {
	// ID is the device id used in topics.
	ID string

	// Profile names a built-in profile (awning, pergola, rollershutter).
	Profile string
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []string

	seen := make(map[string]bool)
	for i, d := range c.Devices {
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Sprintf("devices[%d]: id is required", i))
		case strings.ContainsAny(d.ID, "/+#"):
			errs = append(errs, fmt.Sprintf("devices[%d]: id %q contains an MQTT topic character", i, d.ID))
		case seen[d.ID]:
			errs = append(errs, fmt.Sprintf("devices[%d]: duplicate id %q", i, d.ID))
		}
		seen[d.ID] = true

		if _, err := LookupProfile(d.Profile); err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d]: unknown profile %q", i, d.Profile))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("tahoma configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
