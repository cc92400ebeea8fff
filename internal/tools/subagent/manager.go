// Package subagent implements sub-agent spawning: a bounded pool of real
// child OS processes, each running its own session with a tool policy
// scoped by the parent, connected back to the parent via an approval-proxy
// pipe pair (spec §3, §6, §9).
package subagent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/internal/tools/policy"
	"github.com/agentcore/agentcore/pkg/models"
)

// MaxConcurrentSubAgents is the hard cap on sub-agents running at once per
// manager (spec §3 "at most 20 may run concurrently").
const MaxConcurrentSubAgents = 20

// killGrace is how long Cancel waits after SIGTERM before SIGKILL.
const killGrace = 5 * time.Second

// Notifier is the event-pipe write side (C1), used to emit the 'S' byte on
// a successful spawn.
type Notifier interface {
	Send(event models.AsyncEvent) error
}

type handle struct {
	mu     sync.Mutex
	sub    models.SubAgent
	cmd    *exec.Cmd
	server *ApprovalProxyServer
	cancel context.CancelFunc
	exited atomic.Bool
}

func (h *handle) snapshot() models.SubAgent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sub
}

// Manager owns the pool of spawned sub-agent child processes. It implements
// tools.SubAgentSpawner.
type Manager struct {
	mu          sync.Mutex
	agents      map[string]*handle
	binaryPath  string
	maxActive   int
	activeCount int64
	upstream    policy.Prompter
	notifier    Notifier
	log         *slog.Logger
	// Metrics is nil-safe; set it after construction to track the live
	// sub-agent gauge (spec §11 domain stack, prometheus/client_golang).
	Metrics *metrics.Registry
}

// NewManager builds a Manager. binaryPath is the executable re-invoked for
// each sub-agent (normally the current process's own binary, single-shot
// mode). upstream is the parent's own approval gate/UI, consulted for every
// approval request a sub-agent proxies up; it may be nil, in which case all
// proxied requests are denied rather than silently allowed. A maxActive of
// zero or less, or above MaxConcurrentSubAgents, becomes
// MaxConcurrentSubAgents.
func NewManager(binaryPath string, maxActive int, upstream policy.Prompter, notifier Notifier, log *slog.Logger) *Manager {
	if maxActive <= 0 || maxActive > MaxConcurrentSubAgents {
		maxActive = MaxConcurrentSubAgents
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		agents:     make(map[string]*handle),
		binaryPath: binaryPath,
		maxActive:  maxActive,
		upstream:   upstream,
		notifier:   notifier,
		log:        log,
	}
}

// Spawn launches a real child process for task/taskContext, wired with an
// approval-proxy pipe pair back to this manager's upstream prompter. It
// refuses if this process is itself a sub-agent (IS_SUBAGENT=1, no nested
// spawning) or if the pool is already at capacity.
func (m *Manager) Spawn(ctx context.Context, parentSessionID, task, taskContext string) (models.SubAgent, error) {
	if os.Getenv(EnvIsSubAgent) == "1" {
		return models.SubAgent{}, agent.ErrNestedSubAgent
	}
	if atomic.LoadInt64(&m.activeCount) >= int64(m.maxActive) {
		return models.SubAgent{}, agent.ErrSubAgentCapacity
	}

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return models.SubAgent{}, fmt.Errorf("subagent: approval request pipe: %w", err)
	}
	replyR, replyW, err := os.Pipe()
	if err != nil {
		reqR.Close()
		reqW.Close()
		return models.SubAgent{}, fmt.Errorf("subagent: approval reply pipe: %w", err)
	}

	sub := models.SubAgent{
		ID:        uuid.NewString(),
		ParentID:  parentSessionID,
		Status:    models.SubAgentPending,
		Task:      task,
		Context:   taskContext,
		CreatedAt: time.Now(),
	}

	cmd := exec.Command(m.binaryPath, "--mode", "single-shot", "--task", task, "--context", taskContext)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=1", EnvIsSubAgent),
		fmt.Sprintf("%s=3", EnvApprovalRequestFD),
		fmt.Sprintf("%s=4", EnvApprovalReplyFD),
	)
	// The child's fd 3/4 are the ExtraFiles slots, in order: fd 3 is its
	// write end of the request pipe, fd 4 its read end of the reply pipe.
	cmd.ExtraFiles = []*os.File{reqW, replyR}

	out := newSyncBuffer()
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		reqR.Close()
		reqW.Close()
		replyR.Close()
		replyW.Close()
		return models.SubAgent{}, fmt.Errorf("subagent: start: %w", err)
	}
	// The child inherited its own copies of reqW/replyR across fork+exec;
	// the parent only ever touches reqR (read the child's requests) and
	// replyW (answer them) from here on.
	reqW.Close()
	replyR.Close()

	sub.PID = cmd.Process.Pid
	sub.Status = models.SubAgentRunning

	procCtx, cancel := context.WithCancel(context.Background())
	h := &handle{sub: sub, cmd: cmd, cancel: cancel}
	h.server = newApprovalProxyServer(reqR, replyW, m.upstreamOrDeny())

	m.mu.Lock()
	m.agents[sub.ID] = h
	m.mu.Unlock()
	atomic.AddInt64(&m.activeCount, 1)

	go h.server.Serve(procCtx)
	go m.await(h, out)

	if m.Metrics != nil {
		m.Metrics.SubAgentSpawned()
	}
	if m.notifier != nil {
		if notifyErr := m.notifier.Send(models.EventSubAgentSpawned); notifyErr != nil {
			m.log.Warn("subagent: spawn notify failed", "error", notifyErr)
		}
	}

	return sub, nil
}

func (m *Manager) upstreamOrDeny() policy.Prompter {
	if m.upstream != nil {
		return m.upstream
	}
	return policy.PrompterFunc(func(ctx context.Context, sessionID, tool, summary string) (policy.Decision, error) {
		return policy.DecisionDeny, fmt.Errorf("subagent: no upstream prompter configured for parent")
	})
}

func (m *Manager) await(h *handle, out *syncBuffer) {
	waitErr := h.cmd.Wait()
	h.cancel()
	_ = h.server.Close()
	atomic.AddInt64(&m.activeCount, -1)
	h.exited.Store(true)
	if m.Metrics != nil {
		m.Metrics.SubAgentExited()
	}

	h.mu.Lock()
	h.sub.Output = out.String()
	h.sub.CompletedAt = time.Now()
	if waitErr != nil {
		h.sub.Status = models.SubAgentFailed
		h.sub.Error = waitErr.Error()
	} else {
		h.sub.Status = models.SubAgentCompleted
	}
	h.mu.Unlock()
}

// Get returns the current snapshot of one sub-agent's state.
func (m *Manager) Get(id string) (models.SubAgent, bool) {
	m.mu.Lock()
	h, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return models.SubAgent{}, false
	}
	return h.snapshot(), true
}

// List returns every sub-agent spawned by parentID, or all of them if
// parentID is empty.
func (m *Manager) List(parentID string) []models.SubAgent {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.agents))
	for _, h := range m.agents {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	out := make([]models.SubAgent, 0, len(handles))
	for _, h := range handles {
		sub := h.snapshot()
		if parentID == "" || sub.ParentID == parentID {
			out = append(out, sub)
		}
	}
	return out
}

// ActiveCount returns the number of sub-agents currently running.
func (m *Manager) ActiveCount() int {
	return int(atomic.LoadInt64(&m.activeCount))
}

// Cancel terminates a running sub-agent: SIGTERM first, then SIGKILL after
// killGrace if it has not exited.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	h, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("subagent: unknown id %q", id)
	}
	if h.cmd.Process == nil || h.exited.Load() {
		return nil
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return h.cmd.Process.Kill()
	}
	go func() {
		time.Sleep(killGrace)
		if !h.exited.Load() {
			_ = h.cmd.Process.Kill()
		}
	}()
	return nil
}

// syncBuffer is a mutex-guarded bytes.Buffer: cmd.Stdout and cmd.Stderr are
// written from separate goroutines inside exec.Cmd, so a plain
// bytes.Buffer is not safe to share between them.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newSyncBuffer() *syncBuffer { return &syncBuffer{} }

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
