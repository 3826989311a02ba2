package api

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/jota/internal/orchestrator"
)

var (
	// ErrUnknownRun is returned for run ids this process did not start.
	ErrUnknownRun = errors.New("run is not managed by this server")
	// ErrRunActive is returned when a run is still in progress.
	ErrRunActive = errors.New("run is still in progress")
	// ErrRunFinished is returned when cancelling a finished run.
	ErrRunFinished = errors.New("run already finished")
)

// Runner starts and resumes runs.
type Runner interface {
	Run(ctx context.Context, objective string, ro orchestrator.RunOptions) (*orchestrator.Execution, error)
	Retry(ctx context.Context, exec *orchestrator.Execution) (*orchestrator.Execution, error)
}

type managed struct {
	cancel context.CancelFunc
	done   chan struct{}
	exec   *orchestrator.Execution
}

// Manager runs objectives in the background, one goroutine per run.
type Manager struct {
	runner Runner
	newID  func() string

	mu   sync.Mutex
	runs map[string]*managed
	wg   sync.WaitGroup
}

// NewManager creates a manager for r.
func NewManager(r Runner) *Manager {
	return &Manager{runner: r, newID: uuid.NewString, runs: make(map[string]*managed)}
}

// Start launches objective and returns its run id immediately.
func (m *Manager) Start(objective, owner string) string {
	id := m.newID()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launch(id, func(ctx context.Context) (*orchestrator.Execution, error) {
		return m.runner.Run(ctx, objective, orchestrator.RunOptions{RunID: id, Owner: owner})
	})
	return id
}

// Retry resumes a failed run in the background.
func (m *Manager) Retry(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrUnknownRun
	}
	select {
	case <-r.done:
	default:
		return ErrRunActive
	}
	if r.exec == nil || r.exec.State != orchestrator.StateFailed {
		return orchestrator.ErrNotRetryable
	}
	exec := r.exec
	m.launch(id, func(ctx context.Context) (*orchestrator.Execution, error) {
		return m.runner.Retry(ctx, exec)
	})
	return nil
}

// Cancel stops a run at its next phase boundary.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownRun
	}
	select {
	case <-r.done:
		return ErrRunFinished
	default:
	}
	r.cancel()
	return nil
}

// Wait blocks until the run id finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (*orchestrator.Execution, error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownRun
	}
	select {
	case <-r.done:
		return r.exec, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels every active run and waits for them to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, r := range m.runs {
		r.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launch must be called with m.mu held.
func (m *Manager) launch(id string, fn func(ctx context.Context) (*orchestrator.Execution, error)) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &managed{cancel: cancel, done: make(chan struct{})}
	m.runs[id] = r

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		exec, err := fn(ctx)
		if err != nil {
			log.Warn().Err(err).Str("run_id", id).Msg("background run ended with error")
		}
		r.exec = exec
		close(r.done)
	}()
}
