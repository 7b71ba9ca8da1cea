package obs

import "time"

// AuditMetricsSink adapts *Metrics to pkg/audit.MetricsSink, the narrow
// surface the audit package consumes so it never imports Prometheus
// directly (audit's own doc comment: "pkg/obs implements so pkg/audit
// doesn't import Prometheus directly").
type AuditMetricsSink struct {
	m *Metrics
}

// NewAuditMetricsSink wraps m for use as an audit.MetricsSink.
func NewAuditMetricsSink(m *Metrics) AuditMetricsSink {
	return AuditMetricsSink{m: m}
}

// ObserveIngest records one ingest attempt's outcome. Ingest success/
// failure isn't itself one of the named §4.G metrics, so it reuses the
// audit_chain_valid gauge rather than adding a collector: a failed ingest
// sets audit_chain_valid{tenant,check_type="ingest"} to 0, and a
// successful ingest does not touch the gauge.
func (s AuditMetricsSink) ObserveIngest(tenantID string, ok bool) {
	if !ok {
		s.m.AuditChainValid.WithLabelValues(tenantID, "ingest").Set(0)
	}
}

// ObserveLag publishes audit_kafka_lag{tenant} (§4.E "Hourly lag").
func (s AuditMetricsSink) ObserveLag(tenantID string, lag int64) {
	s.m.SetBusLag(tenantID, lag)
}

// ObserveVerification publishes audit_chain_valid{tenant,check_type} and
// audit_verification_duration_seconds{check_type} (§4.E "Verification").
// Evidence-package assembly reports through the same sink method with
// check_type "evidence_package"; that one additionally feeds the
// dedicated SLO histogram audit_evidence_package_duration_seconds.
func (s AuditMetricsSink) ObserveVerification(tenantID, checkType string, valid bool, duration time.Duration) {
	s.m.RecordAuditVerification(tenantID, checkType, valid, duration.Seconds())
	if checkType == "evidence_package" {
		s.m.AuditEvidencePackageDuration.Observe(duration.Seconds())
	}
}
