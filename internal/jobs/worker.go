package jobs

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/pkg/models"
)

// DefaultIdleTimeout is how long a worker process waits for a claimable
// item before exiting (spec §4.5, "idle-timeout... default 60").
const DefaultIdleTimeout = 60 * time.Second

// workerKillGrace mirrors subagent's grace period between terminate and
// kill signals.
const workerKillGrace = 5 * time.Second

// EnvWorkerQueue, EnvWorkerSystemPrompt and EnvWorkerIdleTimeout are the
// environment variables a spawned worker process reads to learn its
// assignment; --mode worker --queue <name> on the command line duplicates
// the queue name for process-listing readability.
const (
	EnvWorkerQueue        = "WORKER_QUEUE"
	EnvWorkerSystemPrompt = "WORKER_SYSTEM_PROMPT"
	EnvWorkerIdleTimeout  = "WORKER_IDLE_TIMEOUT"
)

type workerState struct {
	mu     sync.Mutex
	handle models.WorkerHandle
	cmd    *exec.Cmd
	exited atomic.Bool
}

func (w *workerState) snapshot() models.WorkerHandle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle
}

// WorkerManager spawns and tracks child worker processes bound to queues
// (spec §4.5's worker lifecycle).
type WorkerManager struct {
	mu          sync.Mutex
	workers     map[string]*workerState
	binaryPath  string
	idleTimeout time.Duration
	log         *slog.Logger
	// Metrics is nil-safe; set it after construction to record worker
	// liveness (spec §11 domain stack, prometheus/client_golang).
	Metrics *metrics.Registry
}

// NewWorkerManager builds a manager that re-invokes binaryPath for each
// spawned worker. idleTimeout <= 0 uses DefaultIdleTimeout.
func NewWorkerManager(binaryPath string, idleTimeout time.Duration, log *slog.Logger) *WorkerManager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &WorkerManager{
		workers:     make(map[string]*workerState),
		binaryPath:  binaryPath,
		idleTimeout: idleTimeout,
		log:         log,
	}
}

// Spawn forks a child process running in worker mode against queue, with
// systemPrompt seeding its session.
func (m *WorkerManager) Spawn(queue, systemPrompt string) (models.WorkerHandle, error) {
	cmd := exec.Command(m.binaryPath, "--mode", "worker", "--queue", queue)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", EnvWorkerQueue, queue),
		fmt.Sprintf("%s=%s", EnvWorkerSystemPrompt, systemPrompt),
		fmt.Sprintf("%s=%s", EnvWorkerIdleTimeout, m.idleTimeout.String()),
	)
	out := newSyncBuffer()
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return models.WorkerHandle{}, fmt.Errorf("jobs: spawn worker: %w", err)
	}

	now := time.Now()
	handle := models.WorkerHandle{
		ID:         uuid.NewString(),
		PID:        cmd.Process.Pid,
		Queue:      queue,
		Status:     models.WorkerRunning,
		SpawnedAt:  now,
		LastLiveAt: now,
	}
	state := &workerState{handle: handle, cmd: cmd}

	m.mu.Lock()
	m.workers[handle.ID] = state
	m.mu.Unlock()

	if m.Metrics != nil {
		m.Metrics.WorkerStarted(queue)
	}
	go m.await(state, out)

	return handle, nil
}

func (m *WorkerManager) await(state *workerState, out *syncBuffer) {
	waitErr := state.cmd.Wait()
	state.exited.Store(true)

	state.mu.Lock()
	state.handle.Output = out.String()
	if waitErr != nil {
		state.handle.Status = models.WorkerFailed
	} else {
		state.handle.Status = models.WorkerCompleted
	}
	queue := state.handle.Queue
	state.mu.Unlock()

	if m.Metrics != nil {
		m.Metrics.WorkerStopped(queue)
	}
}

// IsRunning checks child liveness via a non-blocking wait (already recorded
// by await once the process exits) plus kill(pid, 0) as a second check,
// per spec §4.5.
func (m *WorkerManager) IsRunning(id string) bool {
	m.mu.Lock()
	state, ok := m.workers[id]
	m.mu.Unlock()
	if !ok || state.exited.Load() {
		return false
	}
	if state.cmd.Process == nil {
		return false
	}
	return state.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Stop sends terminate then kill after a grace period.
func (m *WorkerManager) Stop(id string) error {
	m.mu.Lock()
	state, ok := m.workers[id]
	m.mu.Unlock()
	if !ok || state.exited.Load() || state.cmd.Process == nil {
		return nil
	}
	if err := state.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return state.cmd.Process.Kill()
	}
	go func() {
		time.Sleep(workerKillGrace)
		if !state.exited.Load() {
			_ = state.cmd.Process.Kill()
		}
	}()
	return nil
}

// Get returns a worker's current handle snapshot, refreshing LastLiveAt if
// the process is still alive.
func (m *WorkerManager) Get(id string) (models.WorkerHandle, bool) {
	m.mu.Lock()
	state, ok := m.workers[id]
	m.mu.Unlock()
	if !ok {
		return models.WorkerHandle{}, false
	}
	if m.IsRunning(id) {
		state.mu.Lock()
		state.handle.LastLiveAt = time.Now()
		state.mu.Unlock()
	}
	return state.snapshot(), true
}

// List returns every worker bound to queue, or all workers if queue is
// empty.
func (m *WorkerManager) List(queue string) []models.WorkerHandle {
	m.mu.Lock()
	states := make([]*workerState, 0, len(m.workers))
	for _, s := range m.workers {
		states = append(states, s)
	}
	m.mu.Unlock()

	out := make([]models.WorkerHandle, 0, len(states))
	for _, s := range states {
		h := s.snapshot()
		if queue == "" || h.Queue == queue {
			out = append(out, h)
		}
	}
	return out
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
