// Package metrics centralizes the Prometheus instrumentation for the agent
// execution core: turn latency, tool dispatch outcomes, work-queue depth,
// and worker liveness. A single Registry is constructed at process start
// and threaded into the collaborators that need it; nothing in this
// package reaches for the global Prometheus registry on its own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric this process exports.
type Registry struct {
	// TurnDuration measures one Session.Process call, end to end.
	// Labels: mode (interactive|single-shot|background|worker|supervisor), result
	TurnDuration *prometheus.HistogramVec

	// TurnsTotal counts completed turns by mode and result.
	TurnsTotal *prometheus.CounterVec

	// ToolDispatchTotal counts tool dispatch outcomes.
	// Labels: tool, decision (allow|deny|backoff_active|error), status (success|error|denied)
	ToolDispatchTotal *prometheus.CounterVec

	// ToolDispatchDuration measures tool execution latency.
	// Labels: tool
	ToolDispatchDuration *prometheus.HistogramVec

	// QueueDepth is the current pending-item count per queue.
	// Labels: queue
	QueueDepth *prometheus.GaugeVec

	// WorkItemsTotal counts work items reaching a terminal state.
	// Labels: queue, outcome (completed|failed)
	WorkItemsTotal *prometheus.CounterVec

	// WorkerLiveness is 1 while a worker process holds its queue's lease,
	// 0 once it has exited.
	// Labels: queue
	WorkerLiveness *prometheus.GaugeVec

	// SubAgentsActive is the current number of live sub-agent child
	// processes.
	SubAgentsActive prometheus.Gauge

	// GoalsTotal counts goals reaching a terminal state.
	// Labels: outcome (complete|failed)
	GoalsTotal *prometheus.CounterVec
}

// New constructs and registers every metric against reg. Passing
// prometheus.NewRegistry() isolates a test's metrics from the process
// default registry; passing nil registers the metrics nowhere (promauto
// skips registration for a nil Registerer), so they record values that no
// registry gathers.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_turn_duration_seconds",
				Help:    "Duration of one session turn (Process call), in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"mode", "result"},
		),
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_turns_total",
				Help: "Total number of session turns, by mode and result.",
			},
			[]string{"mode", "result"},
		),
		ToolDispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_dispatch_total",
				Help: "Total number of tool dispatch attempts, by tool, gate decision, and outcome.",
			},
			[]string{"tool", "decision", "status"},
		),
		ToolDispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_dispatch_duration_seconds",
				Help:    "Duration of tool handler execution, in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentcore_queue_depth",
				Help: "Current number of pending work items, by queue.",
			},
			[]string{"queue"},
		),
		WorkItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_work_items_total",
				Help: "Total number of work items reaching a terminal state, by queue and outcome.",
			},
			[]string{"queue", "outcome"},
		),
		WorkerLiveness: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentcore_worker_liveness",
				Help: "1 while a worker process holds its queue lease, 0 once it exits.",
			},
			[]string{"queue"},
		),
		SubAgentsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_subagents_active",
				Help: "Current number of live sub-agent child processes.",
			},
		),
		GoalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_goals_total",
				Help: "Total number of goals reaching a terminal state, by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// RecordTurn records one completed session turn.
func (r *Registry) RecordTurn(mode, result string, durationSeconds float64) {
	r.TurnsTotal.WithLabelValues(mode, result).Inc()
	r.TurnDuration.WithLabelValues(mode, result).Observe(durationSeconds)
}

// RecordToolDispatch records one tool dispatch attempt.
func (r *Registry) RecordToolDispatch(tool, decision, status string, durationSeconds float64) {
	r.ToolDispatchTotal.WithLabelValues(tool, decision, status).Inc()
	r.ToolDispatchDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// SetQueueDepth sets the current pending-item gauge for queue.
func (r *Registry) SetQueueDepth(queue string, depth int) {
	r.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordWorkItem records a work item reaching a terminal state.
func (r *Registry) RecordWorkItem(queue, outcome string) {
	r.WorkItemsTotal.WithLabelValues(queue, outcome).Inc()
}

// WorkerStarted marks a worker as holding its queue's lease.
func (r *Registry) WorkerStarted(queue string) {
	r.WorkerLiveness.WithLabelValues(queue).Set(1)
}

// WorkerStopped marks a worker as having released its queue's lease.
func (r *Registry) WorkerStopped(queue string) {
	r.WorkerLiveness.WithLabelValues(queue).Set(0)
}

// SubAgentSpawned increments the live sub-agent gauge.
func (r *Registry) SubAgentSpawned() {
	r.SubAgentsActive.Inc()
}

// SubAgentExited decrements the live sub-agent gauge.
func (r *Registry) SubAgentExited() {
	r.SubAgentsActive.Dec()
}

// RecordGoal records a goal reaching a terminal state.
func (r *Registry) RecordGoal(outcome string) {
	r.GoalsTotal.WithLabelValues(outcome).Inc()
}
