package simd

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/engine"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

var (
	ErrRunExists   = errors.New("run already exists")
	ErrRunNotFound = errors.New("run not found")
)

// RunRequest describes a run to create
type RunRequest struct {
	RunID  string
	Config *config.RunConfig
	// HostedWorkers lists the workers this daemon executes; the rest join
	// over the gather service. Empty means all of them.
	HostedWorkers  []int
	CallbackURL    string
	CallbackSecret string
}

// RunRecord is a run known to the daemon
type RunRecord struct {
	ID             string
	Manager        *engine.RunManager
	Config         *config.RunConfig
	HostedWorkers  []int
	CallbackURL    string
	CallbackSecret string
	CreatedAt      time.Time

	mu     sync.RWMutex
	result *engine.Result
}

// Run returns a snapshot of the run state
func (r *RunRecord) Run() *models.Run {
	return r.Manager.GetRun()
}

// Result returns the coordinator result once the run has completed
func (r *RunRecord) Result() (*engine.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, r.result != nil
}

func (r *RunRecord) setResult(res *engine.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = res
}

// Distributed reports whether some workers run outside this daemon
func (r *RunRecord) Distributed() bool {
	return len(r.HostedWorkers) > 0 && len(r.HostedWorkers) < r.Config.Workers
}

// RunStore is the in-memory run registry
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*RunRecord),
	}
}

// Create registers a pending run. An empty id is generated.
func (s *RunStore) Create(req RunRequest) (*RunRecord, error) {
	if req.Config == nil {
		return nil, fmt.Errorf("%w: run config is required", config.ErrInvalid)
	}
	for _, w := range req.HostedWorkers {
		if w < 0 || w >= req.Config.Workers {
			return nil, fmt.Errorf("%w: hosted worker %d outside [0, %d)", config.ErrInvalid, w, req.Config.Workers)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runID := req.RunID
	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	rec := &RunRecord{
		ID:             runID,
		Manager:        engine.NewRunManager(runID, req.Config),
		Config:         req.Config,
		HostedWorkers:  append([]int(nil), req.HostedWorkers...),
		CallbackURL:    req.CallbackURL,
		CallbackSecret: req.CallbackSecret,
		CreatedAt:      time.Now().UTC(),
	}
	s.runs[runID] = rec
	return rec, nil
}

func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	return rec, ok
}

// List returns run snapshots, newest first. An empty status matches every run.
func (s *RunStore) List(limit, offset int, status models.RunStatus) []*models.Run {
	s.mu.RLock()
	recs := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	if limit <= 0 {
		limit = 50
	}
	out := make([]*models.Run, 0, min(limit, len(recs)))
	skipped := 0
	for _, rec := range recs {
		run := rec.Run()
		if status != "" && run.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, run)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Delete removes a terminal run
func (s *RunStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if !rec.Run().Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	delete(s.runs, runID)
	return nil
}
