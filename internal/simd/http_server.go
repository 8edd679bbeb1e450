package simd

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/artifact"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/store"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// HTTPOptions configures optional endpoints of the HTTP API
type HTTPOptions struct {
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// SystemDir resolves relative system_file references of submitted configs.
	SystemDir string
	// DB answers index queries for runs no longer held in memory.
	DB *store.Store
}

type HTTPServer struct {
	mux      *http.ServeMux
	runs     *RunStore
	Executor *RunExecutor
	opts     HTTPOptions
}

func NewHTTPServer(runs *RunStore, executor *RunExecutor, opts HTTPOptions) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		runs:     runs,
		Executor: executor,
		opts:     opts,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/v1/runs/", s.handleRunByID)
	if opts.Metrics != nil {
		s.mux.Handle("/metrics", opts.Metrics)
	}

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRuns handles /v1/runs endpoint
func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRunByID handles /v1/runs/{id} and related endpoints
func (s *HTTPServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	// /v1/runs/{id}, /v1/runs/{id}:start, /v1/runs/{id}:stop or /v1/runs/{id}/<resource>
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	for _, action := range []string{":start", ":stop"} {
		if runID, ok := strings.CutSuffix(path, action); ok {
			if r.Method != http.MethodPost {
				s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			if action == ":start" {
				s.handleStartRun(w, runID)
			} else {
				s.handleStopRun(w, runID)
			}
			return
		}
	}

	runID, resource, _ := strings.Cut(path, "/")
	if resource == "" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetRun(w, runID)
		case http.MethodDelete:
			s.handleDeleteRun(w, runID)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch resource {
	case "indices":
		s.handleGetIndices(w, r, runID)
	case "convergence":
		s.handleGetConvergence(w, r, runID)
	case "heatmap":
		s.handleGetHeatMap(w, runID)
	case "export":
		s.handleExport(w, r, runID)
	case "progress/stream":
		s.handleProgressStream(w, r, runID)
	default:
		s.writeError(w, http.StatusNotFound, "unknown resource: "+resource)
	}
}

type createRunRequest struct {
	RunID          string `json:"run_id,omitempty"`
	ConfigYAML     string `json:"config_yaml"`
	SystemYAML     string `json:"system_yaml,omitempty"`
	HostedWorkers  []int  `json:"hosted_workers,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
	CallbackSecret string `json:"callback_secret,omitempty"`
	// Start begins execution immediately after creation.
	Start bool `json:"start,omitempty"`
}

// handleCreateRun handles POST /v1/runs
func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ConfigYAML == "" {
		s.writeError(w, http.StatusBadRequest, "config_yaml is required")
		return
	}
	if strings.ContainsAny(req.RunID, "/:") {
		s.writeError(w, http.StatusBadRequest, "run_id cannot contain '/' or ':'")
		return
	}
	if req.CallbackURL != "" {
		if err := validateCallbackURL(req.CallbackURL); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	cfg, err := s.loadConfig(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.runs.Create(RunRequest{
		RunID:          req.RunID,
		Config:         cfg,
		HostedWorkers:  req.HostedWorkers,
		CallbackURL:    req.CallbackURL,
		CallbackSecret: req.CallbackSecret,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRunExists):
			s.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, config.ErrInvalid):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	logger.Info("run created (HTTP)", "run_id", rec.ID)

	run := rec.Run()
	if req.Start {
		if run, err = s.Executor.Start(rec.ID); err != nil {
			s.writeStartError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"run": run})
}

func (s *HTTPServer) loadConfig(req createRunRequest) (*config.RunConfig, error) {
	cfg, err := config.ParseRunConfigYAMLString(req.ConfigYAML)
	if err != nil {
		return nil, err
	}
	switch {
	case req.SystemYAML != "":
		sys, err := config.ParseSystemYAML([]byte(req.SystemYAML))
		if err != nil {
			return nil, err
		}
		cfg.System = sys
	case cfg.System == nil && cfg.SystemFile != "":
		if s.opts.SystemDir == "" {
			return nil, fmt.Errorf("%w: system_file is not accepted by this server", config.ErrInvalid)
		}
		name := filepath.Clean(cfg.SystemFile)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return nil, fmt.Errorf("%w: system_file must be relative to the system directory", config.ErrInvalid)
		}
		sys, err := config.LoadSystem(filepath.Join(s.opts.SystemDir, name))
		if err != nil {
			return nil, err
		}
		cfg.System = sys
	}
	if err := config.CheckRunSystem(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// handleListRuns handles GET /v1/runs with pagination and filtering
func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, 1000)
		}
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	status := models.RunStatus(strings.ToLower(r.URL.Query().Get("status")))

	runs := s.runs.List(limit, offset, status)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(runs),
		},
	})
}

// handleGetRun handles GET /v1/runs/{id}
func (s *HTTPServer) handleGetRun(w http.ResponseWriter, runID string) {
	rec, ok := s.runs.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": rec.Run()})
}

// handleDeleteRun handles DELETE /v1/runs/{id}
func (s *HTTPServer) handleDeleteRun(w http.ResponseWriter, runID string) {
	if err := s.Executor.Delete(runID); err != nil {
		switch {
		case errors.Is(err, ErrRunNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrRunActive):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStartRun handles POST /v1/runs/{id}:start
func (s *HTTPServer) handleStartRun(w http.ResponseWriter, runID string) {
	run, err := s.Executor.Start(runID)
	if err != nil {
		s.writeStartError(w, err)
		return
	}
	logger.Info("run started (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *HTTPServer) writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRunIDMissing):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRunTerminal), errors.Is(err, ErrNoGatherService):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleStopRun handles POST /v1/runs/{id}:stop
func (s *HTTPServer) handleStopRun(w http.ResponseWriter, runID string) {
	run, err := s.Executor.Stop(runID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRunNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrRunIDMissing):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRunTerminal):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	logger.Info("run cancelled (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

// handleGetIndices handles GET /v1/runs/{id}/indices. Per-sample indices are
// included with ?samples=true. Runs evicted from memory are answered from
// the database when one is configured.
func (s *HTTPServer) handleGetIndices(w http.ResponseWriter, r *http.Request, runID string) {
	withSamples := r.URL.Query().Get("samples") == "true"

	if rec, ok := s.runs.Get(runID); ok {
		res, ok := rec.Result()
		if !ok {
			s.writeError(w, http.StatusPreconditionFailed, "indices not available")
			return
		}
		body := map[string]any{"indices": res.Indices, "samples": res.Samples, "hours": res.Hours}
		if withSamples {
			body["sample_indices"] = res.SampleIndices
		}
		s.writeJSON(w, http.StatusOK, body)
		return
	}

	if s.opts.DB == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run, err := s.opts.DB.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run.Indices == nil {
		s.writeError(w, http.StatusPreconditionFailed, "indices not available")
		return
	}
	body := map[string]any{"indices": run.Indices, "samples": run.Samples, "hours": run.SimHours}
	if withSamples {
		samples, err := s.opts.DB.SampleIndices(r.Context(), runID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		body["sample_indices"] = samples
	}
	s.writeJSON(w, http.StatusOK, body)
}

type convergencePoint struct {
	Samples int      `json:"samples"`
	Mean    float64  `json:"mean_lolp"`
	CoV     *float64 `json:"cov,omitempty"`
}

// handleGetConvergence handles GET /v1/runs/{id}/convergence
func (s *HTTPServer) handleGetConvergence(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.runs.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	res, ok := rec.Result()
	if !ok {
		s.writeError(w, http.StatusPreconditionFailed, "convergence trace not available")
		return
	}

	points := make([]convergencePoint, len(res.Convergence))
	for i, p := range res.Convergence {
		points[i] = convergencePoint{Samples: p.Samples, Mean: p.Mean}
		if !math.IsNaN(p.CoV) {
			cov := p.CoV
			points[i].CoV = &cov
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"trace":     points,
		"converged": res.Converged,
		"reason":    res.ConvergedReason,
	})
}

// handleGetHeatMap handles GET /v1/runs/{id}/heatmap
func (s *HTTPServer) handleGetHeatMap(w http.ResponseWriter, runID string) {
	rec, ok := s.runs.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	res, ok := rec.Result()
	if !ok || res.HeatMap == nil {
		s.writeError(w, http.StatusPreconditionFailed, "heat map not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"percent": res.HeatMap.Percent()})
}

// handleExport handles GET /v1/runs/{id}/export?table=<file>, streaming one
// result table as CSV.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.runs.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	res, ok := rec.Result()
	if !ok {
		s.writeError(w, http.StatusPreconditionFailed, "results not available")
		return
	}

	name := r.URL.Query().Get("table")
	if name == "" {
		name = artifact.FileIndices
	}
	if !strings.HasSuffix(name, ".csv") {
		name += ".csv"
	}
	records, ok := artifact.Table(res, rec.Config.System, name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown table: "+name)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+"_"+name))
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		logger.Error("failed to write export", "run_id", runID, "error", err)
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}
