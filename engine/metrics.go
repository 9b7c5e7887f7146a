package engine

import (
	"github.com/mykhaliev/tool-bench/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolbench_validations_total",
			Help: "Total number of validated tool responses",
		},
		[]string{"outcome"}, // passed or failed
	)

	ruleFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolbench_rule_failures_total",
			Help: "Total number of failed validation rules by rule type",
		},
		[]string{"kind"},
	)

	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolbench_tool_call_duration_seconds",
			Help:    "Duration of tool calls in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"server", "tool"},
	)
)

// unknownKind labels rule types the validator does not know, keeping the
// label set bounded whatever a test file declares.
const unknownKind = "unknown"

func recordRule(o validator.RuleOutcome) {
	if o.Passed {
		return
	}
	kind := string(o.Kind)
	if !o.Kind.Known() {
		kind = unknownKind
	}
	ruleFailuresTotal.WithLabelValues(kind).Inc()
}

func recordValidation(valid bool) {
	if valid {
		validationsTotal.WithLabelValues("passed").Inc()
		return
	}
	validationsTotal.WithLabelValues("failed").Inc()
}
