package simd

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// handleProgressStream handles GET /v1/runs/{id}/progress/stream (SSE).
// Events: status_change, progress and complete.
func (s *HTTPServer) handleProgressStream(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.runs.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	interval := 1 * time.Second
	if intervalStr := r.URL.Query().Get("interval_ms"); intervalStr != "" {
		if intervalMs, err := strconv.ParseInt(intervalStr, 10, 64); err == nil && intervalMs > 0 {
			interval = time.Duration(intervalMs) * time.Millisecond
		}
	}

	run := rec.Run()
	previousStatus := run.Status
	s.sendSSEEvent(w, "status_change", map[string]any{"status": run.Status})
	lastCompleted := -1
	s.sendProgress(w, run, &lastCompleted)
	if run.Status.IsTerminal() {
		s.sendSSEEvent(w, "complete", map[string]any{"status": run.Status, "indices": run.Indices})
		flush(w)
		return
	}
	flush(w)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run := rec.Run()
			s.sendProgress(w, run, &lastCompleted)

			if run.Status != previousStatus {
				s.sendSSEEvent(w, "status_change", map[string]any{"status": run.Status})
				previousStatus = run.Status
				if run.Status.IsTerminal() {
					s.sendSSEEvent(w, "complete", map[string]any{
						"status":  run.Status,
						"indices": run.Indices,
						"error":   run.Error,
					})
					flush(w)
					return
				}
			}
			flush(w)
		}
	}
}

// sendProgress emits a progress event when the completed sample count moved
func (s *HTTPServer) sendProgress(w http.ResponseWriter, run *models.Run, last *int) {
	if run.Progress == nil || run.Progress.CompletedSamples == *last {
		return
	}
	*last = run.Progress.CompletedSamples
	s.sendSSEEvent(w, "progress", map[string]any{"progress": run.Progress})
}

// sendSSEEvent sends a Server-Sent Event
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data map[string]any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}

	// Errors are logged but not returned as SSE streams are best-effort
	if _, err := w.Write([]byte("event: " + eventType + "\n")); err != nil {
		logger.Error("failed to write SSE event header", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: " + string(jsonData) + "\n\n")); err != nil {
		logger.Error("failed to write SSE event data", "error", err)
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
