package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records timing and outcomes for issuance, revocation, and
// reconciliation operations.
type PipelineMetrics struct {
	duration  *prometheus.HistogramVec
	success   *prometheus.CounterVec
	failure   *prometheus.CounterVec
	ambiguous prometheus.Counter
	scanned   prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_operation_duration_seconds",
		Help:    "Duration of pipeline operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_operation_success",
		Help: "Successful pipeline operations.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_operation_failure",
		Help: "Failed pipeline operations.",
	}, []string{"operation"})
	ambiguous := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_ambiguous_mints",
		Help: "Mints that confirmed without a recoverable token id.",
	})
	scanned := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_scan_tokens",
		Help:    "Token ids visited per ownership scan.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
	reg.MustRegister(duration, success, failure, ambiguous, scanned)
	return &PipelineMetrics{
		duration:  duration,
		success:   success,
		failure:   failure,
		ambiguous: ambiguous,
		scanned:   scanned,
	}
}

// ObserveDuration records the duration for the named operation.
func (p *PipelineMetrics) ObserveDuration(operation string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named operation.
func (p *PipelineMetrics) IncSuccess(operation string) {
	if p == nil || p.success == nil {
		return
	}
	p.success.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for the named operation.
func (p *PipelineMetrics) IncFailure(operation string) {
	if p == nil || p.failure == nil {
		return
	}
	p.failure.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncAmbiguousMint counts a confirmed mint whose token id was unrecoverable.
func (p *PipelineMetrics) IncAmbiguousMint() {
	if p == nil || p.ambiguous == nil {
		return
	}
	p.ambiguous.Inc()
}

// ObserveScanSize records how many token ids a scan visited.
func (p *PipelineMetrics) ObserveScanSize(tokens int) {
	if p == nil || p.scanned == nil {
		return
	}
	p.scanned.Observe(float64(tokens))
}

func normalizeLabel(value string) string {
	label := strings.TrimSpace(strings.ToLower(value))
	if label == "" {
		return "unknown"
	}
	return strings.ReplaceAll(label, " ", "_")
}
