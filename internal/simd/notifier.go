package simd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

var (
	ErrInvalidURL       = errors.New("invalid callback url")
	ErrMetadataEndpoint = errors.New("callback url targets a cloud metadata endpoint")
	ErrInternalHost     = errors.New("callback url targets an internal address")
)

// NotificationPayload represents the JSON payload sent to the callback URL
type NotificationPayload struct {
	RunID      string            `json:"run_id"`
	Status     models.RunStatus  `json:"status"`
	Samples    int               `json:"samples"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	Indices    *models.Indices   `json:"indices,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  int64             `json:"timestamp"` // When notification was sent
}

// Notifier posts run completion callbacks
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier with three retries and exponential backoff
// starting at one second.
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.BackoffFromConfig("exponential", 1000, 30000),
	}
}

// Notify sends a notification to the callback URL asynchronously.
// A {run_id} placeholder in the URL is replaced by the run id.
func (n *Notifier) Notify(callbackURL string, callbackSecret string, run *models.Run) {
	if callbackURL == "" {
		return
	}
	if run == nil {
		logger.Warn("cannot notify: missing run", "callback_url", callbackURL)
		return
	}

	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", url.PathEscape(run.ID))
	if err := validateCallbackURL(finalURL); err != nil {
		logger.Warn("callback url rejected", "run_id", run.ID, "callback_url", finalURL, "error", err)
		return
	}

	payload := NotificationPayload{
		RunID:      run.ID,
		Status:     run.Status,
		Samples:    run.Samples,
		StartTime:  run.StartTime,
		EndTime:    run.EndTime,
		DurationMs: run.Duration.Milliseconds(),
		Error:      run.Error,
		Indices:    run.Indices,
		Metadata:   run.Metadata,
		Timestamp:  time.Now().UTC().UnixMilli(),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sendNotification(finalURL, callbackSecret, payload)
	}()
}

// Wait blocks until pending notifications are done
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// sendNotification performs the actual HTTP POST with retry logic
func (n *Notifier) sendNotification(callbackURL string, callbackSecret string, payload NotificationPayload) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(payloadJSON))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "adequacy-core/1.0")
		if callbackSecret != "" {
			req.Header.Set("X-Adequacy-Callback-Secret", callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		responseBody := string(bodyBytes)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent",
				"run_id", payload.RunID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"status", payload.Status,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}

var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"fd00:ec2::254":            true,
	"metadata.google.internal": true,
	"metadata":                 true,
}

// validateCallbackURL rejects callback targets that would let a caller reach
// internal services. Hostnames are not resolved; literal addresses are.
// localhost stays allowed for development.
func validateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if metadataHosts[host] {
		return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() || isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrInternalHost, host)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
