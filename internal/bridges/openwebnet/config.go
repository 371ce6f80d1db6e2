package openwebnet

import (
	"fmt"
	"strings"
	"time"
)

// Bridge defaults.
const (
	// DefaultBridgeID identifies the bridge in health messages.
	DefaultBridgeID = "openwebnet"

	// DefaultDongleName is used for the implicit dongle when none is configured.
	DefaultDongleName = "dongle"

	// defaultHealthInterval is how often health is published.
	defaultHealthInterval = 30 * time.Second
)

// Config holds bridge configuration.
type Config struct {
	// BridgeID identifies the bridge. Default: "openwebnet".
	BridgeID string

	// Version is reported in health messages.
	Version string

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration

	// AutoScan starts a scan on every dongle when the bridge starts.
	AutoScan bool

	// ScanInterval triggers a background scan periodically. Zero disables it.
	ScanInterval time.Duration

	// IdentifyTimeout and IdentifyRetries are passed to each Machine.
	IdentifyTimeout time.Duration
	IdentifyRetries int

	// Dongles lists the dongles to scan. Empty means a single dongle on
	// the first enumerated serial port.
	Dongles []DongleConfig
}

// DongleConfig describes one USB dongle.
type DongleConfig struct {
	// Name is unique within the bridge.
	Name string

	// Port, BaudRate, USBVID and USBPID map to SerialConfig.
	Port     string
	BaudRate int
	USBVID   string
	USBPID   string
}

// SerialConfig returns the serial link configuration for the dongle.
func (d DongleConfig) SerialConfig() SerialConfig {
	return SerialConfig{
		Port:     d.Port,
		BaudRate: d.BaudRate,
		USBVID:   d.USBVID,
		USBPID:   d.USBPID,
	}
}

// withDefaults returns a copy with defaults applied.
func (c Config) withDefaults() Config {
	if c.BridgeID == "" {
		c.BridgeID = DefaultBridgeID
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = defaultHealthInterval
	}
	if len(c.Dongles) == 0 {
		c.Dongles = []DongleConfig{{Name: DefaultDongleName}}
	}
	c.Dongles = append([]DongleConfig(nil), c.Dongles...)
	for i := range c.Dongles {
		if c.Dongles[i].Name == "" {
			c.Dongles[i].Name = fmt.Sprintf("%s-%d", DefaultDongleName, i+1)
		}
		if c.Dongles[i].BaudRate == 0 {
			c.Dongles[i].BaudRate = DefaultBaudRate
		}
	}
	return c
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []string

	if c.ScanInterval < 0 {
		errs = append(errs, "scan interval must not be negative")
	}
	if c.IdentifyTimeout < 0 {
		errs = append(errs, "identify timeout must not be negative")
	}
	if c.IdentifyRetries < 0 {
		errs = append(errs, "identify retries must not be negative")
	}

	seen := make(map[string]bool)
	for i, d := range c.Dongles {
		if d.Name != "" {
			if seen[d.Name] {
				errs = append(errs, fmt.Sprintf("dongles[%d]: duplicate name %q", i, d.Name))
			}
			seen[d.Name] = true
		}
		if d.BaudRate < 0 {
			errs = append(errs, fmt.Sprintf("dongles[%d]: baud rate must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("openwebnet configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
