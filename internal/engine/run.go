package engine

import (
	"context"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// RunManager manages the lifecycle of a simulation run
type RunManager struct {
	run    *models.Run
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunManager creates a new run manager for cfg
func NewRunManager(runID string, cfg *config.RunConfig) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())

	return &RunManager{
		run: &models.Run{
			ID:        runID,
			Status:    models.RunStatusPending,
			Samples:   cfg.Samples * cfg.Workers,
			SimHours:  cfg.SimHours,
			Model:     cfg.Model,
			Workers:   cfg.Workers,
			Seed:      cfg.Seed,
			StartTime: time.Now(),
			Metadata:  make(map[string]string),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start marks the run as started
func (rm *RunManager) Start() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.run.Status = models.RunStatusRunning
	rm.run.StartTime = time.Now()
}

// UpdateProgress records the latest convergence round
func (rm *RunManager) UpdateProgress(p models.Progress) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.run.Progress = &p
}

// Complete marks the run as completed with its final indices
func (rm *RunManager) Complete(res *Result) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.run.Status = models.RunStatusCompleted
	rm.finish()
	if res != nil {
		ix := res.Indices
		rm.run.Indices = &ix
		rm.run.Seed = res.Seed
	}
}

// Fail marks the run as failed
func (rm *RunManager) Fail(err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.run.Status = models.RunStatusFailed
	rm.finish()
	rm.run.Error = err.Error()
}

// MarkCancelled marks the run as cancelled
func (rm *RunManager) MarkCancelled() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.run.Status = models.RunStatusCancelled
	rm.finish()
}

func (rm *RunManager) finish() {
	rm.run.EndTime = time.Now()
	rm.run.Duration = rm.run.EndTime.Sub(rm.run.StartTime)
}

// Cancel cancels the run's context
func (rm *RunManager) Cancel() {
	rm.cancel()
}

// Context returns the run's context
func (rm *RunManager) Context() context.Context {
	return rm.ctx
}

// GetRun returns a copy of the current run state (thread-safe)
func (rm *RunManager) GetRun() *models.Run {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	runCopy := *rm.run
	if rm.run.Progress != nil {
		p := *rm.run.Progress
		runCopy.Progress = &p
	}
	if rm.run.Indices != nil {
		ix := *rm.run.Indices
		runCopy.Indices = &ix
	}
	runCopy.Metadata = make(map[string]string, len(rm.run.Metadata))
	for k, v := range rm.run.Metadata {
		runCopy.Metadata[k] = v
	}
	return &runCopy
}

// SetMetadata sets a metadata value
func (rm *RunManager) SetMetadata(key, value string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.run.Metadata[key] = value
}

// GetMetadata gets a metadata value
func (rm *RunManager) GetMetadata(key string) (string, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	value, ok := rm.run.Metadata[key]
	return value, ok
}
