package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

type writtenPoint struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Time        time.Time
}

// mockWriter records points instead of sending them.
type mockWriter struct {
	mu     sync.Mutex
	points []writtenPoint
}

func (w *mockWriter) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, writtenPoint{measurement, tags, fields, timestamp})
}

func TestInfluxRecorderResult(t *testing.T) {
	w := &mockWriter{}
	rec := NewInfluxRecorder(w)

	rec.OnDiscovered(dongleResult("/dev/ttyUSB0"))

	want := []writtenPoint{{
		Measurement: MeasurementResult,
		Tags:        map[string]string{"kind": "openwebnet:dongle", "endpoint": "/dev/ttyUSB0"},
		Fields: map[string]interface{}{
			"uid":              "openwebnet:dongle:42",
			"device_id":        int64(42),
			"firmware_version": "1.2.4",
			"session_id":       "s1",
		},
		Time: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}}
	if diff := cmp.Diff(want, w.points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestInfluxRecorderScan(t *testing.T) {
	w := &mockWriter{}
	rec := NewInfluxRecorder(w)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec.ScanStarted(discovery.ScanInfo{SessionID: "s1"})
	if len(w.points) != 0 {
		t.Fatalf("ScanStarted wrote %d points", len(w.points))
	}

	rec.ScanEnded(discovery.ScanOutcome{
		SessionID:  "s1",
		Kind:       "openwebnet:dongle",
		Cause:      discovery.EndConnectionError,
		Err:        errors.New("port busy"),
		StartedAt:  start,
		EndedAt:    start.Add(1500 * time.Millisecond),
		Discovered: 0,
	})

	want := []writtenPoint{{
		Measurement: MeasurementScan,
		Tags:        map[string]string{"kind": "openwebnet:dongle", "cause": "connection_error", "endpoint": "unknown"},
		Fields: map[string]interface{}{
			"session_id":       "s1",
			"discovered":       int64(0),
			"duration_seconds": 1.5,
			"error":            "port busy",
		},
		Time: start.Add(1500 * time.Millisecond),
	}}
	if diff := cmp.Diff(want, w.points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}
