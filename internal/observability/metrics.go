// Package observability collects runtime metrics for the extension
// host.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks extension runtime activity.
//
// The metrics system is built on Prometheus and covers extension
// loads, event dispatch, tool aggregation, and background index
// builds.
type Metrics struct {
	// ExtensionLoads counts load attempts.
	// Labels: status (loaded|error)
	ExtensionLoads *prometheus.CounterVec

	// HookDispatches counts hook invocations.
	// Labels: hook, status (ok|error)
	HookDispatches *prometheus.CounterVec

	// ToolsDropped counts tools dropped during aggregation.
	// Labels: extension, reason (invalid|supplier_error)
	ToolsDropped *prometheus.CounterVec

	// ToolOverrides counts name collisions resolved by priority.
	ToolOverrides prometheus.Counter

	// ToolExecutions counts tool runs.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// BuildOutcomes counts background build settlements.
	// Labels: outcome (built|failed|aborted|cached|joined)
	BuildOutcomes *prometheus.CounterVec

	// BuildDuration measures build wall time in seconds.
	BuildDuration prometheus.Histogram
}

// NewMetrics creates runtime metrics and registers them on reg. A nil
// registerer leaves the metrics unregistered; tests use that to avoid
// duplicate registration on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExtensionLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_extension_loads_total",
			Help: "Extension load attempts by status.",
		}, []string{"status"}),
		HookDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_hook_dispatches_total",
			Help: "Hook invocations by hook name and status.",
		}, []string{"hook", "status"}),
		ToolsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_tools_dropped_total",
			Help: "Tools dropped during aggregation by extension and reason.",
		}, []string{"extension", "reason"}),
		ToolOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_tool_overrides_total",
			Help: "Tool name collisions resolved by registration priority.",
		}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_tool_executions_total",
			Help: "Tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		BuildOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_build_outcomes_total",
			Help: "Background build settlements by outcome.",
		}, []string{"outcome"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loom_build_duration_seconds",
			Help:    "Background build wall time.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ExtensionLoads,
			m.HookDispatches,
			m.ToolsDropped,
			m.ToolOverrides,
			m.ToolExecutions,
			m.BuildOutcomes,
			m.BuildDuration,
		)
	}
	return m
}
