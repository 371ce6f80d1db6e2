package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

const (
	namespace = "graylogic"
	subsystem = "discovery"

	// unknownEndpoint labels sessions that started before a transport was
	// chosen.
	unknownEndpoint = "unknown"
)

// Metrics holds the discovery collectors on their own registry.
//
// Thread Safety: All methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	scans      *prometheus.CounterVec
	results    *prometheus.CounterVec
	scanEnds   *prometheus.CounterVec
	identified *prometheus.GaugeVec
}

var (
	_ discovery.Sink     = (*Metrics)(nil)
	_ discovery.Observer = (*Metrics)(nil)
)

// NewMetrics creates the collectors on a new registry. Go runtime and
// process collectors are included when withRuntime is true.
func NewMetrics(withRuntime bool) (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scans_total",
			Help:      "Scan sessions started, by transport endpoint.",
		}, []string{"endpoint"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "results_total",
			Help:      "Discovery results emitted, by device kind.",
		}, []string{"kind"}),
		scanEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_end_total",
			Help:      "Scan sessions ended, by cause.",
		}, []string{"cause"}),
		identified: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "identified",
			Help:      "1 while the device on a transport endpoint is identified.",
		}, []string{"endpoint"}),
	}

	toRegister := []prometheus.Collector{m.scans, m.results, m.scanEnds, m.identified}
	if withRuntime {
		toRegister = append(toRegister,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range toRegister {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}

	return m, nil
}

// Registry returns the registry the collectors live on, for callers that
// want to add their own.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnDiscovered implements discovery.Sink.
func (m *Metrics) OnDiscovered(result discovery.Result) {
	m.results.WithLabelValues(string(result.Kind)).Inc()
	m.identified.WithLabelValues(endpointLabel(result.Identity.Endpoint)).Set(1)
}

// ScanStarted implements discovery.Observer.
func (m *Metrics) ScanStarted(info discovery.ScanInfo) {
	m.scans.WithLabelValues(endpointLabel(info.Endpoint)).Inc()
}

// ScanEnded implements discovery.Observer. A stopped scan keeps its
// identity, so only other causes clear the identified gauge.
func (m *Metrics) ScanEnded(outcome discovery.ScanOutcome) {
	m.scanEnds.WithLabelValues(string(outcome.Cause)).Inc()
	if outcome.Cause != discovery.EndStopped && outcome.Endpoint != "" {
		m.identified.WithLabelValues(outcome.Endpoint).Set(0)
	}
}

func endpointLabel(endpoint string) string {
	if endpoint == "" {
		return unknownEndpoint
	}
	return endpoint
}
