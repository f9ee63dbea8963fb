package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/tablewatch/internal/httpc"
	"github.com/teslashibe/tablewatch/internal/log"
)

// RemoteConfig configures a RemoteTracker.
type RemoteConfig struct {
	BaseURL string        // Tracking service base URL, e.g. http://localhost:8500
	Classes []int         // COCO classes to track
	Persist bool          // Ask the service to keep track ids between calls
	Timeout time.Duration // Per-frame request timeout

	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// DefaultRemoteConfig returns the configuration for tracking people only.
func DefaultRemoteConfig() *RemoteConfig {
	return &RemoteConfig{
		BaseURL:    "http://localhost:8500",
		Classes:    []int{ClassPerson},
		Persist:    true,
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Option is a functional option for configuring a RemoteTracker.
type Option func(*RemoteConfig)

// WithBaseURL sets the tracking service URL.
func WithBaseURL(u string) Option {
	return func(c *RemoteConfig) { c.BaseURL = u }
}

// WithTimeout sets the per-frame request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *RemoteConfig) { c.Timeout = d }
}

// WithClasses sets the classes the service should return.
func WithClasses(classes ...int) Option {
	return func(c *RemoteConfig) { c.Classes = classes }
}

// WithRetries sets the retry count and base delay for 429/5xx responses.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *RemoteConfig) {
		c.MaxRetries = n
		c.RetryDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *RemoteConfig) { c.Logger = l }
}

// RemoteTracker sends frames to an external tracking service over HTTP.
// The service runs detection plus track association and keeps its own
// per-stream state.
type RemoteTracker struct {
	endpoint string
	config   *RemoteConfig
	http     *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewRemoteTracker creates a tracker client for the configured service.
func NewRemoteTracker(opts ...Option) (*RemoteTracker, error) {
	cfg := DefaultRemoteConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		return nil, ErrNoBaseURL
	}
	u, err := url.Parse(base + "/track")
	if err != nil {
		return nil, fmt.Errorf("detection: parse tracker URL: %w", err)
	}

	q := u.Query()
	if len(cfg.Classes) > 0 {
		parts := make([]string, len(cfg.Classes))
		for i, c := range cfg.Classes {
			parts[i] = strconv.Itoa(c)
		}
		q.Set("classes", strings.Join(parts, ","))
	}
	q.Set("persist", strconv.FormatBool(cfg.Persist))
	u.RawQuery = q.Encode()

	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}

	return &RemoteTracker{
		endpoint: u.String(),
		config:   cfg,
		http:     httpc.NewClient(cfg.Timeout),
		logger:   logger.With("component", "detection.remote"),
	}, nil
}

// Endpoint returns the full request URL used per frame.
func (t *RemoteTracker) Endpoint() string {
	return t.endpoint
}

// Track posts one frame and decodes the tracked detections.
func (t *RemoteTracker) Track(ctx context.Context, jpeg []byte) ([]Detection, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if len(jpeg) == 0 {
		return nil, ErrEmptyFrame
	}

	start := time.Now()
	resp, err := t.doWithRetry(ctx, jpeg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var frame wireFrame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		return nil, fmt.Errorf("detection: decode response: %w", err)
	}
	dets, err := fromWire(frame.Detections)
	if err != nil {
		return nil, fmt.Errorf("detection: %w", err)
	}

	t.logger.Debug("frame tracked",
		"detections", len(dets),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return dets, nil
}

func (t *RemoteTracker) doWithRetry(ctx context.Context, jpeg []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.config.RetryDelay * time.Duration(attempt)):
			}
		}

		resp, err := httpc.Post(ctx, t.http, t.endpoint, "image/jpeg", jpeg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("detection: request: %w", err)
			t.logger.Warn("tracker request failed", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		t.logger.Warn("tracker busy, retrying", "attempt", attempt+1, "status", apiErr.StatusCode)
	}

	return nil, lastErr
}

func parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// Close marks the tracker closed and drops idle connections.
func (t *RemoteTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.http.CloseIdleConnections()
	return nil
}
