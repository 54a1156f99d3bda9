package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/models"
)

// Run states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunState is the retrievable state of a background ingestion run.
type RunState struct {
	RunID       string               `json:"run_id"`
	Status      string               `json:"status"`
	SubmittedAt time.Time            `json:"submitted_at"`
	Report      *models.IngestReport `json:"report,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Runs tracks background ingestion runs on a bounded worker pool, so
// fire-and-forget triggers never create unbounded detached work. Reports
// stay retrievable by run id for the life of the process.
type Runs struct {
	coordinator *Coordinator
	pool        *ants.Pool
	logger      *zap.Logger

	mu    sync.RWMutex
	runs  map[string]*RunState
	order []string
}

// maxRetainedRuns bounds the run history kept in memory.
const maxRetainedRuns = 100

// NewRuns creates a run registry whose pool admits at most concurrent runs.
func NewRuns(coordinator *Coordinator, concurrent int, logger *zap.Logger) (*Runs, error) {
	if concurrent <= 0 {
		concurrent = 1
	}
	pool, err := ants.NewPool(concurrent)
	if err != nil {
		return nil, fmt.Errorf("create run pool: %w", err)
	}
	return &Runs{
		coordinator: coordinator,
		pool:        pool,
		logger:      logger,
		runs:        make(map[string]*RunState),
	}, nil
}

// Submit starts a background ingestion run and returns its id immediately.
// Overlapping runs are allowed to race; dedup is idempotent, so the worst
// case is both runs observing the same fingerprint.
func (r *Runs) Submit(opts RunOptions) (string, error) {
	id := uuid.New().String()
	state := &RunState{RunID: id, Status: StatusRunning, SubmittedAt: time.Now().UTC()}

	r.mu.Lock()
	r.runs[id] = state
	r.order = append(r.order, id)
	r.evictLocked()
	r.mu.Unlock()

	err := r.pool.Submit(func() {
		report, runErr := r.coordinator.Run(context.Background(), opts)
		r.mu.Lock()
		defer r.mu.Unlock()
		if runErr != nil {
			state.Status = StatusFailed
			state.Error = runErr.Error()
			r.logger.Error("background ingestion failed", zap.String("run_id", id), zap.Error(runErr))
			return
		}
		report.RunID = id
		state.Report = report
		state.Status = StatusCompleted
	})
	if err != nil {
		r.mu.Lock()
		delete(r.runs, id)
		for i := len(r.order) - 1; i >= 0; i-- {
			if r.order[i] == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		return "", fmt.Errorf("submit run: %w", err)
	}
	return id, nil
}

// Get returns a snapshot of a run's state by id. The snapshot is safe to
// read while the run goroutine is still updating the registry entry; the
// report pointer is only published after the run finished building it.
func (r *Runs) Get(id string) (RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.runs[id]
	if !ok {
		return RunState{}, false
	}
	return *state, true
}

// evictLocked drops the oldest finished runs beyond the retention bound.
func (r *Runs) evictLocked() {
	for len(r.order) > maxRetainedRuns {
		oldest := r.order[0]
		if state, ok := r.runs[oldest]; ok && state.Status == StatusRunning {
			break
		}
		delete(r.runs, oldest)
		r.order = r.order[1:]
	}
}

// Close releases the run pool.
func (r *Runs) Close() {
	r.pool.Release()
}
