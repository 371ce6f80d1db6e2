package telemetry

import (
	"time"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

// Measurement names written to InfluxDB.
const (
	MeasurementResult = "discovery_result"
	MeasurementScan   = "discovery_scan"
)

// PointWriter writes one time-series point. *influxdb.Client implements it.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// InfluxRecorder writes discovery results and finished scans as points.
// Writes are non-blocking; the client batches them.
type InfluxRecorder struct {
	writer PointWriter
}

var (
	_ discovery.Sink     = (*InfluxRecorder)(nil)
	_ discovery.Observer = (*InfluxRecorder)(nil)
)

// NewInfluxRecorder creates a recorder on writer.
func NewInfluxRecorder(writer PointWriter) *InfluxRecorder {
	return &InfluxRecorder{writer: writer}
}

// OnDiscovered implements discovery.Sink.
func (r *InfluxRecorder) OnDiscovered(result discovery.Result) {
	at := result.DiscoveredAt
	if at.IsZero() {
		at = time.Now()
	}
	r.writer.WritePointWithTime(MeasurementResult,
		map[string]string{
			"kind":     string(result.Kind),
			"endpoint": endpointLabel(result.Identity.Endpoint),
		},
		map[string]interface{}{
			"uid":              result.UID,
			"device_id":        int64(result.Identity.ID),
			"firmware_version": result.Identity.FirmwareVersion,
			"session_id":       result.SessionID,
		},
		at,
	)
}

// ScanStarted implements discovery.Observer. Sessions are written when they
// end.
func (r *InfluxRecorder) ScanStarted(discovery.ScanInfo) {}

// ScanEnded implements discovery.Observer.
func (r *InfluxRecorder) ScanEnded(outcome discovery.ScanOutcome) {
	fields := map[string]interface{}{
		"session_id": outcome.SessionID,
		"discovered": int64(outcome.Discovered),
	}
	if !outcome.StartedAt.IsZero() && !outcome.EndedAt.IsZero() {
		fields["duration_seconds"] = outcome.EndedAt.Sub(outcome.StartedAt).Seconds()
	}
	if outcome.Err != nil {
		fields["error"] = outcome.Err.Error()
	}

	at := outcome.EndedAt
	if at.IsZero() {
		at = time.Now()
	}
	r.writer.WritePointWithTime(MeasurementScan,
		map[string]string{
			"kind":     string(outcome.Kind),
			"cause":    string(outcome.Cause),
			"endpoint": endpointLabel(outcome.Endpoint),
		},
		fields,
		at,
	)
}
