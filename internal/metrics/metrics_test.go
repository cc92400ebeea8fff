package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTurnUpdatesCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTurn("interactive", "ok", 1.5)

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("interactive", "ok")); got != 1 {
		t.Fatalf("expected turns_total 1, got %v", got)
	}
	if got := testutil.CollectAndCount(m.TurnDuration); got != 1 {
		t.Fatalf("expected 1 histogram observation, got %d", got)
	}
}

func TestQueueDepthAndWorkerLiveness(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetQueueDepth("default", 3)
	m.WorkerStarted("default")
	m.RecordWorkItem("default", "completed")
	m.WorkerStopped("default")

	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("default")); got != 3 {
		t.Fatalf("expected queue depth 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.WorkerLiveness.WithLabelValues("default")); got != 0 {
		t.Fatalf("expected worker liveness 0 after stop, got %v", got)
	}
	if got := testutil.ToFloat64(m.WorkItemsTotal.WithLabelValues("default", "completed")); got != 1 {
		t.Fatalf("expected 1 completed work item, got %v", got)
	}
}

func TestSubAgentGaugeAndGoalCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SubAgentSpawned()
	m.SubAgentSpawned()
	m.SubAgentExited()
	m.RecordGoal("complete")

	if got := testutil.ToFloat64(m.SubAgentsActive); got != 1 {
		t.Fatalf("expected 1 active sub-agent, got %v", got)
	}
	if got := testutil.ToFloat64(m.GoalsTotal.WithLabelValues("complete")); got != 1 {
		t.Fatalf("expected 1 completed goal, got %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordToolDispatch("goap_add_action", "allow", "success", 0.01)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "agentcore_tool_dispatch_total") {
		t.Fatalf("expected metrics body to contain agentcore_tool_dispatch_total, got %q", rec.Body.String())
	}
}
