//go:build integration
// +build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/cluster"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/engine"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/metrics"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/simd"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/store"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

const systemDir = "../../config"

type daemon struct {
	http     *httptest.Server
	grpcAddr string
	db       *store.Store
	exec     *simd.RunExecutor
}

// startDaemon wires the same components as cmd/adequacyd on loopback listeners
func startDaemon(t *testing.T) *daemon {
	t.Helper()
	db, err := store.Open(context.Background(), config.StoreConfig{DSN: filepath.Join(t.TempDir(), "runs.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	collector := metrics.NewCollector()
	gather := cluster.NewGatherServer(nil, "")
	runs := simd.NewRunStore()
	exec := simd.NewRunExecutor(runs, simd.ExecutorOptions{
		Metrics:  collector,
		DB:       db,
		Gather:   gather,
		Notifier: simd.NewNotifier(),
	})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	grpcServer, _ := simd.NewGRPCServer(gather)
	go func() { _ = grpcServer.Serve(lis) }()

	httpServer := httptest.NewServer(simd.NewHTTPServer(runs, exec, simd.HTTPOptions{
		Metrics:   collector.Handler(),
		SystemDir: systemDir,
		DB:        db,
	}).Handler())

	t.Cleanup(func() {
		httpServer.Close()
		exec.StopAll()
		exec.Wait()
		grpcServer.Stop()
	})
	return &daemon{http: httpServer, grpcAddr: lis.Addr().String(), db: db, exec: exec}
}

func (d *daemon) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(d.http.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func (d *daemon) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(d.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp.StatusCode, data
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func (d *daemon) waitStatus(t *testing.T, runID string, want models.RunStatus) map[string]any {
	t.Helper()
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		code, data := d.get(t, "/v1/runs/"+runID)
		if code != http.StatusOK {
			t.Fatalf("GET run status = %d", code)
		}
		run := decodeBody(t, bytes.NewReader(data))["run"].(map[string]any)
		if run["status"] == string(want) {
			return run
		}
		if models.RunStatus(run["status"].(string)).IsTerminal() {
			t.Fatalf("run ended as %v (error %v), want %s", run["status"], run["error"], want)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach %s", runID, want)
	return nil
}

func runConfigYAML(outDir string) string {
	return fmt.Sprintf(`
log_level: error
samples: 3
sim_hours: 24
workers: 2
seed: 11
track_convergence: true
system_file: two_zone.yaml
outputs:
  dir: %s
`, outDir)
}

func TestIntegration_HTTPEndpoints_FullLifecycle(t *testing.T) {
	d := startDaemon(t)
	outDir := t.TempDir()

	var mu sync.Mutex
	var callbacks []map[string]any
	var secrets []string
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		callbacks = append(callbacks, payload)
		secrets = append(secrets, r.Header.Get("X-Adequacy-Callback-Secret"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()
	callbackURL := strings.Replace(receiver.URL, "127.0.0.1", "localhost", 1) + "/done/{run_id}"

	code, body := d.postJSON(t, "/v1/runs", map[string]any{
		"run_id":          "e2e-1",
		"config_yaml":     runConfigYAML(outDir),
		"callback_url":    callbackURL,
		"callback_secret": "s3cret",
		"start":           true,
	})
	if code != http.StatusCreated {
		t.Fatalf("create status = %d: %v", code, body)
	}
	run := d.waitStatus(t, "e2e-1", models.RunStatusCompleted)
	if run["indices"] == nil {
		t.Fatalf("completed run has no indices")
	}
	// Persistence, export and the callback follow the status change.
	d.exec.Wait()

	code, data := d.get(t, "/v1/runs/e2e-1/indices?samples=true")
	if code != http.StatusOK {
		t.Fatalf("indices status = %d", code)
	}
	if got := len(decodeBody(t, bytes.NewReader(data))["sample_indices"].([]any)); got != 6 {
		t.Fatalf("sample_indices = %d, want 6", got)
	}

	code, data = d.get(t, "/v1/runs/e2e-1/export?table=hourly_lolp")
	if code != http.StatusOK || !strings.HasPrefix(string(data), "hour,lolp") {
		t.Fatalf("export status = %d, body %q", code, data)
	}
	if _, err := os.Stat(filepath.Join(outDir, "e2e-1", "LOL_perc_prob.csv")); err != nil {
		t.Fatalf("heat map not exported: %v", err)
	}

	code, data = d.get(t, "/metrics")
	if code != http.StatusOK || !strings.Contains(string(data), `adequacy_runs_total{status="completed"} 1`) {
		t.Fatalf("metrics status = %d:\n%s", code, data)
	}

	saved, err := d.db.GetRun(context.Background(), "e2e-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if saved.Status != models.RunStatusCompleted || saved.Indices == nil {
		t.Fatalf("persisted run = %+v", saved)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(callbacks) != 1 {
		t.Fatalf("callbacks = %d, want 1", len(callbacks))
	}
	if callbacks[0]["run_id"] != "e2e-1" || callbacks[0]["status"] != "completed" || secrets[0] != "s3cret" {
		t.Fatalf("callback = %v (secret %q)", callbacks[0], secrets[0])
	}
}

func TestIntegration_HTTPEndpoints_DistributedRun(t *testing.T) {
	d := startDaemon(t)

	code, body := d.postJSON(t, "/v1/runs", map[string]any{
		"run_id":         "dist-1",
		"config_yaml":    runConfigYAML(t.TempDir()),
		"hosted_workers": []int{0},
		"start":          true,
	})
	if code != http.StatusCreated {
		t.Fatalf("create status = %d: %v", code, body)
	}

	cfg, err := config.LoadRunConfig(filepath.Join(systemDir, "adequacy.yaml"))
	if err != nil {
		t.Fatalf("LoadRunConfig: %v", err)
	}
	cfg.LogLevel = "error"
	cfg.Samples = 3
	cfg.SimHours = 24
	cfg.Workers = 2
	cfg.Seed = 11
	cfg.TrackConvergence = true
	cfg.Convergence = config.ConvergenceConfig{Strategy: "cov"}

	conn, err := grpc.NewClient(d.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	worker, err := engine.New(cfg, engine.Options{
		RunID:    "dist-1",
		Workers:  []int{1},
		Gatherer: cluster.NewRemoteGather(conn, 2, "dist-1"),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := worker.Run(ctx); err != nil {
		t.Fatalf("remote worker: %v", err)
	}

	run := d.waitStatus(t, "dist-1", models.RunStatusCompleted)
	if got := run["progress"].(map[string]any)["completed_samples"]; got != float64(6) {
		t.Fatalf("completed_samples = %v, want 6", got)
	}
}

func TestIntegration_HTTPEndpoints_StopRun(t *testing.T) {
	d := startDaemon(t)

	cfgYAML := strings.Replace(runConfigYAML(t.TempDir()), "samples: 3", "samples: 100000", 1)
	if code, body := d.postJSON(t, "/v1/runs", map[string]any{"run_id": "long", "config_yaml": cfgYAML, "start": true}); code != http.StatusCreated {
		t.Fatalf("create status = %d: %v", code, body)
	}
	if code, body := d.postJSON(t, "/v1/runs/long:stop", nil); code != http.StatusOK {
		t.Fatalf("stop status = %d: %v", code, body)
	}
	d.waitStatus(t, "long", models.RunStatusCancelled)

	code, data := d.get(t, "/v1/runs?status=cancelled")
	if code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if runs := decodeBody(t, bytes.NewReader(data))["runs"].([]any); len(runs) != 1 {
		t.Fatalf("cancelled runs = %d, want 1", len(runs))
	}
}
