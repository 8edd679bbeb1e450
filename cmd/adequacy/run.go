package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/artifact"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/cluster"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/engine"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/metrics"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/simd"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/store"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

func run(ctx context.Context, cfg *config.RunConfig, opts options) error {
	log := logger.With("run_id", opts.runID)
	rm := engine.NewRunManager(opts.runID, cfg)
	collector := metrics.NewCollector()
	if opts.metricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go serveMetrics(metricsCtx, opts.metricsAddr, collector)
	}

	engOpts := engine.Options{
		RunID:      opts.runID,
		Workers:    opts.workerIDs,
		Metrics:    collector,
		Logger:     logger.Default,
		OnProgress: rm.UpdateProgress,
	}

	switch {
	case opts.serveGather != "":
		g := cluster.NewLocalGather(cfg.Workers)
		lis, err := net.Listen("tcp", opts.serveGather)
		if err != nil {
			return fmt.Errorf("listen for gather service: %w", err)
		}
		srv, _ := simd.NewGRPCServer(cluster.NewGatherServer(g, opts.session))
		go func() {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error("gather service stopped", "error", err)
			}
		}()
		defer srv.GracefulStop()
		log.Info("gather service listening", "addr", lis.Addr().String(), "session", opts.session)
		engOpts.Gatherer = g
	case opts.coordinator != "":
		conn, err := grpc.NewClient(opts.coordinator, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("connect to coordinator: %w", err)
		}
		defer conn.Close()
		log.Info("joining distributed run", "coordinator", opts.coordinator, "workers", opts.workerIDs)
		engOpts.Gatherer = cluster.NewRemoteGather(conn, cfg.Workers, opts.session)
	}

	hosted := cfg.Workers
	if len(opts.workerIDs) > 0 {
		hosted = len(opts.workerIDs)
	}
	var bar *pb.ProgressBar
	if !opts.noProgress {
		bar = pb.New(cfg.Samples * hosted)
		bar.Output = os.Stderr
		bar.ShowSpeed = true
		bar.Prefix("samples ")
		engOpts.OnSample = func(int, int) { bar.Increment() }
	}

	eng, err := engine.New(cfg, engOpts)
	if err != nil {
		return err
	}
	rm.SetMetadata("seed", strconv.FormatInt(eng.Seed(), 10))

	var db *store.Store
	if eng.IsCoordinator() && (cfg.Store.Driver != "" || cfg.Store.DSN != "") {
		if db, err = store.Open(ctx, cfg.Store); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
	}

	rm.Start()
	persistRun(db, rm.GetRun())
	if bar != nil {
		bar.Start()
	}
	res, err := eng.Run(ctx)
	if bar != nil {
		bar.Finish()
	}

	switch {
	case ctx.Err() != nil:
		rm.MarkCancelled()
		persistRun(db, rm.GetRun())
		return fmt.Errorf("run cancelled: %w", ctx.Err())
	case err != nil:
		rm.Fail(err)
		persistRun(db, rm.GetRun())
		return err
	case res == nil:
		log.Info("worker finished; results are reduced by worker 0", "workers", opts.workerIDs)
		return nil
	}

	rm.Complete(res)
	final := rm.GetRun()
	log.Info("run completed", "samples", res.Samples, "lolp", res.Indices.LOLP, "duration", final.Duration)

	saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if db != nil {
		if err := db.SaveRun(saveCtx, final); err != nil {
			log.Error("failed to persist run", "error", err)
		}
		if err := db.SaveSamples(saveCtx, final.ID, res.SampleIndices); err != nil {
			log.Error("failed to persist sample indices", "error", err)
		}
		if err := db.SaveConvergence(saveCtx, final.ID, res.Convergence); err != nil {
			log.Error("failed to persist convergence trace", "error", err)
		}
	}

	locations, err := artifact.Publish(saveCtx, cfg.Outputs, final.ID, res, cfg.System)
	for _, loc := range locations {
		log.Info("results written", "location", loc)
	}
	printSummary(os.Stdout, final, res)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	return nil
}

func persistRun(db *store.Store, run *models.Run) {
	if db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.SaveRun(ctx, run); err != nil {
		logger.Error("failed to persist run", "run_id", run.ID, "error", err)
	}
}

// printSummary writes the run indices as an aligned two column table
func printSummary(w io.Writer, run *models.Run, res *engine.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", run.ID)
	fmt.Fprintf(tw, "samples\t%d\n", res.Samples)
	fmt.Fprintf(tw, "hours\t%d\n", res.Hours)
	fmt.Fprintf(tw, "seed\t%d\n", res.Seed)
	fmt.Fprintf(tw, "duration\t%s\n", utils.FormatDuration(run.Duration))
	for i, v := range res.Indices.Vector() {
		fmt.Fprintf(tw, "%s\t%.6g\n", models.IndexNames[i], v)
	}
	if len(res.SampleIndices) > 1 {
		lolp := make([]float64, len(res.SampleIndices))
		for i, ix := range res.SampleIndices {
			lolp[i] = ix.LOLP
		}
		fmt.Fprintf(tw, "sample LOLP p50/p95\t%.6g / %.6g\n", utils.Percentile(lolp, 50), utils.Percentile(lolp, 95))
	}
	if res.ConvergedReason != "" {
		fmt.Fprintf(tw, "converged\t%t (%s)\n", res.Converged, res.ConvergedReason)
	}
	_ = tw.Flush()
}

// serveMetrics exposes the collector until ctx ends
func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector) {
	srv := &http.Server{Addr: addr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", "addr", addr, "error", err)
	}
}
