// Package metrics 审计层的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"auditz/domain/audited"
)

// Metrics 实现 audited.IMetrics
type Metrics struct {
	RevisionsTotal *prometheus.CounterVec
	SkippedTotal   *prometheus.CounterVec
	SinkFailures   *prometheus.CounterVec
	HookDuration   *prometheus.HistogramVec
}

var _ audited.IMetrics = (*Metrics)(nil)

// New 在 reg 上注册全部指标，reg 为 nil 时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RevisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditz_revisions_written_total",
			Help: "Revisions appended to the revision sink",
		}, []string{"table", "action"}),
		SkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditz_audit_skipped_total",
			Help: "Writes that produced no revision",
		}, []string{"table", "reason"}),
		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditz_sink_failures_total",
			Help: "Committed writes whose revisions could not be appended",
		}, []string{"table"}),
		HookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditz_hook_duration_seconds",
			Help:    "Duration of the before/after save hooks",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"phase"}),
	}
}

func (m *Metrics) RevisionsWritten(table string, action audited.Action, n int) {
	m.RevisionsTotal.WithLabelValues(table, string(action)).Add(float64(n))
}

func (m *Metrics) AuditSkipped(table, reason string) {
	m.SkippedTotal.WithLabelValues(table, reason).Inc()
}

func (m *Metrics) ObserveHook(phase string, d time.Duration) {
	m.HookDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) SinkFailed(table string) {
	m.SinkFailures.WithLabelValues(table).Inc()
}
