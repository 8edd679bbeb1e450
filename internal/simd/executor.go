package simd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/artifact"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/cluster"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/engine"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/metrics"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/store"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

var (
	ErrRunTerminal     = errors.New("run is terminal")
	ErrRunActive       = errors.New("run is active")
	ErrRunIDMissing    = errors.New("run_id is required")
	ErrNoGatherService = errors.New("distributed runs need a gather service")
)

// finalizeTimeout bounds persistence and export after a run ends
const finalizeTimeout = 2 * time.Minute

// ExecutorOptions wires the optional services of a RunExecutor
type ExecutorOptions struct {
	Metrics *metrics.Collector
	// DB persists run rows and results when set.
	DB *store.Store
	// Gather hosts the barriers of distributed runs.
	Gather   *cluster.GatherServer
	Notifier *Notifier
}

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	runs     *RunStore
	metrics  *metrics.Collector
	db       *store.Store
	gather   *cluster.GatherServer
	notifier *Notifier

	// mu serializes terminal transitions
	mu   sync.Mutex
	done map[string]chan struct{}
	wg   sync.WaitGroup
}

func NewRunExecutor(runs *RunStore, opts ExecutorOptions) *RunExecutor {
	return &RunExecutor{
		runs:     runs,
		metrics:  opts.Metrics,
		db:       opts.DB,
		gather:   opts.Gather,
		notifier: opts.Notifier,
		done:     make(map[string]chan struct{}),
	}
}

// Start begins executing a run asynchronously and returns its state.
// Starting a running run is a no-op.
func (e *RunExecutor) Start(runID string) (*models.Run, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	rec, ok := e.runs.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch st := rec.Run().Status; {
	case st == models.RunStatusRunning:
		return rec.Run(), nil
	case st.IsTerminal():
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}
	if rec.Distributed() && e.gather == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoGatherService, runID)
	}

	// Remote workers may connect as soon as Start returns.
	var g *cluster.LocalGather
	if rec.Distributed() {
		g = cluster.NewLocalGather(rec.Config.Workers)
		e.gather.Add(rec.ID, g)
	}

	rec.Manager.Start()
	e.done[runID] = make(chan struct{})
	if e.metrics != nil {
		e.metrics.RunStarted()
	}
	e.persistRun(rec)

	e.wg.Add(1)
	go e.runSimulation(rec, g)
	return rec.Run(), nil
}

// Stop requests cancellation and marks the run cancelled.
func (e *RunExecutor) Stop(runID string) (*models.Run, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	rec, ok := e.runs.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rec.Manager.Cancel()
	if !e.finish(rec, func() { rec.Manager.MarkCancelled() }) {
		if st := rec.Run().Status; st != models.RunStatusCancelled {
			return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
		}
	}
	return rec.Run(), nil
}

// Delete forgets a terminal run
func (e *RunExecutor) Delete(runID string) error {
	if err := e.runs.Delete(runID); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.Forget(runID)
	}
	return nil
}

// Done returns a channel closed once the run has finished executing. It is
// nil for runs that were never started.
func (e *RunExecutor) Done(runID string) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done[runID]
}

// StopAll cancels every running run, as on shutdown.
func (e *RunExecutor) StopAll() {
	for _, run := range e.runs.List(math.MaxInt, 0, models.RunStatusRunning) {
		if _, err := e.Stop(run.ID); err != nil && !errors.Is(err, ErrRunTerminal) {
			logger.Warn("failed to stop run", "run_id", run.ID, "error", err)
		}
	}
}

// Wait blocks until every started run has finished and, when a notifier is
// set, every notification was delivered or abandoned.
func (e *RunExecutor) Wait() {
	e.wg.Wait()
	if e.notifier != nil {
		e.notifier.Wait()
	}
}

// finish applies a terminal transition unless the run is already terminal.
func (e *RunExecutor) finish(rec *RunRecord, mark func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := rec.Run().Status
	if prev.IsTerminal() {
		return false
	}
	mark()
	if e.metrics != nil && prev == models.RunStatusRunning {
		e.metrics.RunFinished(rec.Run().Status)
	}
	return true
}

func (e *RunExecutor) runSimulation(rec *RunRecord, g *cluster.LocalGather) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		if ch, ok := e.done[rec.ID]; ok {
			close(ch)
		}
		e.mu.Unlock()
	}()

	ctx := rec.Manager.Context()
	log := logger.With("run_id", rec.ID)

	opts := engine.Options{
		RunID:      rec.ID,
		Workers:    rec.HostedWorkers,
		Metrics:    e.metrics,
		Logger:     log,
		OnProgress: rec.Manager.UpdateProgress,
	}
	if g != nil {
		defer e.gather.Remove(rec.ID)
		opts.Gatherer = g
		log.Info("waiting for remote workers", "hosted", rec.HostedWorkers, "workers", rec.Config.Workers)
	}

	eng, err := engine.New(rec.Config, opts)
	if err != nil {
		log.Error("failed to prepare run", "error", err)
		e.finish(rec, func() { rec.Manager.Fail(err) })
		e.finalize(rec, nil)
		return
	}
	rec.Manager.SetMetadata("seed", strconv.FormatInt(eng.Seed(), 10))

	res, err := eng.Run(ctx)
	switch {
	case ctx.Err() != nil:
		log.Info("run cancelled")
		e.finish(rec, func() { rec.Manager.MarkCancelled() })
		res = nil
	case err != nil:
		log.Error("run failed", "error", err)
		e.finish(rec, func() { rec.Manager.Fail(err) })
		res = nil
	default:
		rec.setResult(res)
		if !eng.IsCoordinator() {
			rec.Manager.SetMetadata("coordinator", "remote")
		}
		e.finish(rec, func() { rec.Manager.Complete(res) })
	}
	e.finalize(rec, res)
}

// finalize persists, exports and announces a finished run. Failures are
// logged and recorded as run metadata.
func (e *RunExecutor) finalize(rec *RunRecord, res *engine.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	log := logger.With("run_id", rec.ID)

	e.persistRun(rec)
	if res != nil {
		if e.db != nil {
			if err := e.db.SaveSamples(ctx, rec.ID, res.SampleIndices); err != nil {
				log.Error("failed to persist sample indices", "error", err)
				rec.Manager.SetMetadata("store_error", err.Error())
			}
			if err := e.db.SaveConvergence(ctx, rec.ID, res.Convergence); err != nil {
				log.Error("failed to persist convergence trace", "error", err)
				rec.Manager.SetMetadata("store_error", err.Error())
			}
		}
		if locations, err := artifact.Publish(ctx, rec.Config.Outputs, rec.ID, res, rec.Config.System); err != nil {
			log.Error("failed to export results", "error", err)
			rec.Manager.SetMetadata("export_error", err.Error())
		} else if len(locations) > 0 {
			rec.Manager.SetMetadata("outputs", strings.Join(locations, ","))
		}
	}

	if e.notifier != nil {
		e.notifier.Notify(rec.CallbackURL, rec.CallbackSecret, rec.Run())
	}
}

func (e *RunExecutor) persistRun(rec *RunRecord) {
	if e.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := e.db.SaveRun(ctx, rec.Run()); err != nil {
		logger.Error("failed to persist run", "run_id", rec.ID, "error", err)
	}
}
