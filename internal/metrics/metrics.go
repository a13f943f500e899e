// Package metrics holds the prometheus collectors for the scoring engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "substantiate"

// Outcome labels shared by the counters below
const (
	OutcomeMatched   = "matched"
	OutcomeNone      = "none"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeRated     = "rated"
	OutcomeSucceeded = "succeeded"
)

// Collaborator labels for external call failures
const (
	CollaboratorLLM        = "llm"
	CollaboratorLiterature = "literature"
	CollaboratorAbstract   = "abstract"
	CollaboratorRepository = "repository"
)

// Metrics bundles every collector the engine updates
type Metrics struct {
	registry *prometheus.Registry

	AIFallbackTotal      *prometheus.CounterVec
	AuditRatingTotal     *prometheus.CounterVec
	ExternalFailures     *prometheus.CounterVec
	BatchItemsTotal      *prometheus.CounterVec
	BatchDuration        *prometheus.HistogramVec
	CandidatesRanked     prometheus.Counter
	ComplianceIssues     *prometheus.CounterVec
	ExternalCallDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AIFallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_fallback_total",
			Help:      "AI fallback match calls by outcome.",
		}, []string{"outcome"}),
		AuditRatingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_rating_total",
			Help:      "Audit passes by AI rating outcome.",
		}, []string{"outcome"}),
		ExternalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_failures_total",
			Help:      "Recovered external call failures by collaborator.",
		}, []string{"collaborator"}),
		BatchItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch items processed by operation and outcome.",
		}, []string{"operation", "outcome"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of project-wide batch operations.",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"operation"}),
		CandidatesRanked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "literature_candidates_ranked_total",
			Help:      "Literature candidates scored by the relevance ranker.",
		}),
		ComplianceIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compliance_issues_total",
			Help:      "Compliance issues raised by severity.",
		}, []string{"severity"}),
		ExternalCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of external collaborator calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
		}, []string{"collaborator"}),
	}

	m.registry.MustRegister(
		m.AIFallbackTotal,
		m.AuditRatingTotal,
		m.ExternalFailures,
		m.BatchItemsTotal,
		m.BatchDuration,
		m.CandidatesRanked,
		m.ComplianceIssues,
		m.ExternalCallDuration,
	)
	return m
}

// Registry returns the registry backing these collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AIFallback records one AI fallback match call
func (m *Metrics) AIFallback(outcome string) {
	if m == nil {
		return
	}
	m.AIFallbackTotal.WithLabelValues(outcome).Inc()
}

// AuditRating records how an audit pass obtained (or skipped) its AI rating
func (m *Metrics) AuditRating(outcome string) {
	if m == nil {
		return
	}
	m.AuditRatingTotal.WithLabelValues(outcome).Inc()
}

// ExternalFailure records a recovered collaborator failure
func (m *Metrics) ExternalFailure(collaborator string) {
	if m == nil {
		return
	}
	m.ExternalFailures.WithLabelValues(collaborator).Inc()
}

// ObserveExternalCall records collaborator latency
func (m *Metrics) ObserveExternalCall(collaborator string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExternalCallDuration.WithLabelValues(collaborator).Observe(d.Seconds())
}

// BatchItem records one batch item outcome
func (m *Metrics) BatchItem(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSucceeded
	if err != nil {
		outcome = OutcomeFailed
	}
	m.BatchItemsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveBatch records the duration of a batch operation
func (m *Metrics) ObserveBatch(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Ranked adds n scored literature candidates
func (m *Metrics) Ranked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesRanked.Add(float64(n))
}

// ComplianceIssue records one raised issue
func (m *Metrics) ComplianceIssue(severity string) {
	if m == nil {
		return
	}
	m.ComplianceIssues.WithLabelValues(severity).Inc()
}
