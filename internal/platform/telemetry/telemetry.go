// Package telemetry records request traces and service metrics in process
// and serves the metrics in Prometheus text exposition format. There is no
// exporter SDK behind it: spans are structured records the server can log
// or hand to a collector later, and scraping /metrics is the export path.
package telemetry

import (
	"context"
)

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	MetricsEnabled *bool  `json:"metrics_enabled"` // nil = use default (true)
	TracingEnabled *bool  `json:"tracing_enabled"` // nil = use default (true)
	Environment    string `json:"environment"`
}

func (c *TelemetryConfig) metricsOn() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}

func (c *TelemetryConfig) tracingOn() bool {
	return c.TracingEnabled == nil || *c.TracingEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "nl7-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

// TelemetryProvider owns all observability state for one server process.
type TelemetryProvider struct {
	cfg     TelemetryConfig
	metrics *registry
	spans   spanLog
}

// NewTelemetryProvider creates a provider with cfg, filling in defaults for
// any unset fields.
func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	return &TelemetryProvider{
		cfg:     cfg,
		metrics: newRegistry(),
	}
}

// Shutdown releases the provider. It holds no background goroutines or
// exporter connections, so this is a no-op today; it exists so callers can
// treat the provider like an SDK-backed one, and is safe to call repeatedly.
func (tp *TelemetryProvider) Shutdown(_ context.Context) error {
	return nil
}

// Resource returns the service identity attributes.
func (tp *TelemetryProvider) Resource() map[string]string {
	return map[string]string{
		"service.name":           tp.cfg.ServiceName,
		"service.version":        tp.cfg.ServiceVersion,
		"deployment.environment": tp.cfg.Environment,
	}
}

// MessageReceived counts one inbound message by type and trigger event.
func (tp *TelemetryProvider) MessageReceived(messageType, triggerEvent string) {
	tp.metrics.addCounter(seriesKey(receivedCounter, messageType, triggerEvent), 1)
}

// MessageAcked counts one generated acknowledgment by its code (AA, AE, AR).
func (tp *TelemetryProvider) MessageAcked(code string) {
	tp.metrics.addCounter(seriesKey(ackedCounter, code), 1)
}

// ParseFailure counts one inbound message rejected by the parser.
func (tp *TelemetryProvider) ParseFailure() {
	tp.metrics.addCounter(parseFailCounter, 1)
}

// ObserveProcessingDuration records how long one inbound message took from
// receipt to acknowledgment, in seconds.
func (tp *TelemetryProvider) ObserveProcessingDuration(seconds float64) {
	tp.metrics.histogramNamed(processingHist, latencyBuckets).Observe(seconds)
}

// HealthMetricsRecorder updates the gauges sampled from health state.
type HealthMetricsRecorder struct {
	reg *registry
}

// HealthMetrics returns a recorder for health-related gauges.
func (tp *TelemetryProvider) HealthMetrics() *HealthMetricsRecorder {
	return &HealthMetricsRecorder{reg: tp.metrics}
}

// SetDBPoolActive sets the db.pool.active_connections gauge.
func (h *HealthMetricsRecorder) SetDBPoolActive(n int64) {
	h.reg.setGauge(dbActiveGauge, n)
}

// SetDBPoolIdle sets the db.pool.idle_connections gauge.
func (h *HealthMetricsRecorder) SetDBPoolIdle(n int64) {
	h.reg.setGauge(dbIdleGauge, n)
}

// SetMessagesStored sets the hl7.messages.stored gauge.
func (h *HealthMetricsRecorder) SetMessagesStored(n int64) {
	h.reg.setGauge(storedGauge, n)
}

// GetRecordedSpans returns a copy of all recorded spans.
func (tp *TelemetryProvider) GetRecordedSpans() []*Span {
	return tp.spans.all()
}

// GetHistogram returns the named histogram, or nil if nothing has been
// observed under that name yet.
func (tp *TelemetryProvider) GetHistogram(name string) *histogram {
	return tp.metrics.histogram(name)
}

// GetLabeledHistogram returns one labeled series of the named histogram, or
// nil. Build key with LabelsKey.
func (tp *TelemetryProvider) GetLabeledHistogram(name, key string) *histogram {
	return tp.metrics.labeled(name, key)
}

// GetGauge returns the current value of the named gauge.
func (tp *TelemetryProvider) GetGauge(name string) int64 {
	return tp.metrics.gauge(name)
}

// GetCounter returns the current value of a counter with the given name and
// label values.
func (tp *TelemetryProvider) GetCounter(name string, labels ...string) int64 {
	return tp.metrics.counter(seriesKey(name, labels...))
}
