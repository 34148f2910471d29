package audited

import "time"

// IMetrics 审计层指标，metrics 包提供 Prometheus 实现
type IMetrics interface {
	RevisionsWritten(table string, action Action, n int)
	AuditSkipped(table, reason string)
	ObserveHook(phase string, d time.Duration)
	SinkFailed(table string)
}

const (
	phaseBeforeSave = "before_save"
	phaseAfterSave  = "after_save"
)

type noopMetrics struct{}

func (noopMetrics) RevisionsWritten(string, Action, int) {}
func (noopMetrics) AuditSkipped(string, string)          {}
func (noopMetrics) ObserveHook(string, time.Duration)    {}
func (noopMetrics) SinkFailed(string)                    {}
