// Package metrics exposes Prometheus instruments for readiness analyses.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
)

const namespace = "einvoice_readiness"

var (
	// analysesTotal counts completed analyses.
	// Labels: readiness (High, Medium, Low), mode (stored, inline)
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "total",
		Help:      "Completed readiness analyses by readiness label",
	}, []string{"readiness", "mode"})

	// analysisDuration measures the mapping, rules and scoring pipeline.
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Analysis pipeline latency in seconds",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	// overallScore tracks the distribution of overall readiness scores.
	overallScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "overall_score",
		Help:      "Distribution of overall readiness scores",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	// ruleFailures counts failed business rules.
	// Labels: rule
	ruleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "failures_total",
		Help:      "Failed business rules by rule identifier",
	}, []string{"rule"})

	// rowsIngested counts ingested rows.
	// Labels: format (csv, json), outcome (parsed, rejected)
	rowsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "rows_total",
		Help:      "Ingested rows by format and outcome",
	}, []string{"format", "outcome"})
)

// RecordAnalysis records a finished analysis and its duration
func RecordAnalysis(report *models.Report, mode string, elapsed time.Duration) {
	if report == nil {
		return
	}
	analysesTotal.WithLabelValues(report.Readiness, mode).Inc()
	analysisDuration.Observe(elapsed.Seconds())
	overallScore.Observe(float64(report.Scores.Overall))
	for _, f := range report.RuleFindings {
		if !f.OK {
			ruleFailures.WithLabelValues(string(f.Rule)).Inc()
		}
	}
}

// RecordIngest records parsed and rejected row counts for one batch
func RecordIngest(format string, parsed, attempted int) {
	rowsIngested.WithLabelValues(format, "parsed").Add(float64(parsed))
	if rejected := attempted - parsed; rejected > 0 {
		rowsIngested.WithLabelValues(format, "rejected").Add(float64(rejected))
	}
}
