package metrics

import (
	"time"
)

// IMEMetrics holds the input method metrics.
type IMEMetrics struct {
	registry *Registry

	KeysTotal      *Counter
	KeysEaten      *Counter
	Commits        *Counter
	Cancels        *Counter
	EngineRequests *Counter
	EngineErrors   *Counter
	Learned        *Counter

	ActiveSessions *Gauge
	UptimeSeconds  *Gauge

	EngineLatency *Histogram

	started time.Time
}

// NewIMEMetrics registers the input method metrics in registry. A nil
// registry gets a fresh one in the "kanaime" namespace.
func NewIMEMetrics(registry *Registry) *IMEMetrics {
	if registry == nil {
		registry = NewRegistry("kanaime")
	}
	return &IMEMetrics{
		registry: registry,

		KeysTotal:      registry.Counter("keys_total", "Key-down events seen by sessions", nil),
		KeysEaten:      registry.Counter("keys_eaten_total", "Key-down events consumed by the input method", nil),
		Commits:        registry.Counter("commits_total", "Compositions committed to the document", nil),
		Cancels:        registry.Counter("cancels_total", "Compositions cancelled", nil),
		EngineRequests: registry.Counter("engine_requests_total", "Calls made to the conversion engine", nil),
		EngineErrors:   registry.Counter("engine_errors_total", "Conversion engine calls that failed", nil),
		Learned:        registry.Counter("learned_total", "Selections reported to the engine for learning", nil),

		ActiveSessions: registry.Gauge("active_sessions", "Open composition sessions", nil),
		UptimeSeconds:  registry.Gauge("uptime_seconds", "Seconds since start", nil),

		EngineLatency: registry.Histogram("engine_latency_seconds", "Conversion engine call latency", nil, LatencyBuckets),

		started: time.Now(),
	}
}

// Registry returns the registry the metrics live in.
func (m *IMEMetrics) Registry() *Registry { return m.registry }

// RecordKey records one key-down outcome. intent is the edit kind name
// ("commit", "cancel", ...).
func (m *IMEMetrics) RecordKey(eaten bool, intent string) {
	m.KeysTotal.Inc()
	if !eaten {
		return
	}
	m.KeysEaten.Inc()
	switch intent {
	case "commit":
		m.Commits.Inc()
	case "cancel":
		m.Cancels.Inc()
	}
}

// RecordEngineCall records one engine round trip.
func (m *IMEMetrics) RecordEngineCall(d time.Duration, err error) {
	m.EngineRequests.Inc()
	m.EngineLatency.ObserveDuration(d)
	if err != nil {
		m.EngineErrors.Inc()
	}
}

// SessionOpened increments the active session gauge.
func (m *IMEMetrics) SessionOpened() { m.ActiveSessions.Inc() }

// SessionClosed decrements the active session gauge.
func (m *IMEMetrics) SessionClosed() { m.ActiveSessions.Dec() }

// Snapshot refreshes the uptime and returns every value.
func (m *IMEMetrics) Snapshot() map[string]any {
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
	return m.registry.Snapshot()
}
