package graphingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"graphmem/internal/services"
	"graphmem/internal/stage"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 10 * time.Second
	messagesPerRequest    = 25
	maxErrorBody          = 512
)

// HTTPDoer describes the HTTP client used by the HTTP sink.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSink posts episodes to a Graphiti-compatible REST service as
// POST {endpoint}/messages.
type HTTPSink struct {
	endpoint  string
	apiKey    string
	client    HTTPDoer
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleep     func(context.Context, time.Duration) error
}

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) HTTPSinkOption {
	return func(s *HTTPSink) {
		if client != nil {
			s.client = client
		}
	}
}

// WithRetry sets the attempt count and backoff bounds for retryable responses.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) HTTPSinkOption {
	return func(s *HTTPSink) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if baseDelay >= 0 {
			s.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			s.maxDelay = maxDelay
		}
	}
}

// NewHTTPSink builds an HTTP sink. timeout bounds each request.
func NewHTTPSink(endpoint, apiKey string, timeout time.Duration, opts ...HTTPSinkOption) (*HTTPSink, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("graph endpoint required for the http sink")
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	sink := &HTTPSink{
		endpoint:  endpoint,
		apiKey:    strings.TrimSpace(apiKey),
		client:    &http.Client{Timeout: timeout},
		attempts:  defaultRetryAttempts,
		baseDelay: defaultRetryBaseDelay,
		maxDelay:  defaultRetryMaxDelay,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(sink)
	}
	return sink, nil
}

type messagePayload struct {
	GroupID  string    `json:"group_id"`
	Messages []Episode `json:"messages"`
}

// Send posts the batch in groups of messages and returns
// "<endpoint>#<group_id>/<video_id>".
func (s *HTTPSink) Send(ctx context.Context, batch Batch) (string, error) {
	for start := 0; start < len(batch.Episodes); start += messagesPerRequest {
		end := min(start+messagesPerRequest, len(batch.Episodes))
		payload := messagePayload{GroupID: batch.GroupID, Messages: batch.Episodes[start:end]}
		if err := s.postWithRetry(ctx, payload); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s#%s/%s", s.endpoint, batch.GroupID, batch.VideoID), nil
}

// HealthCheck probes {endpoint}/healthcheck.
func (s *HTTPSink) HealthCheck(ctx context.Context) stage.Health {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/healthcheck", nil)
	if err != nil {
		return stage.Unhealthy("ingest", err.Error())
	}
	s.authorize(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return stage.Unhealthyf("ingest", "graph endpoint unreachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return stage.Unhealthyf("ingest", "graph endpoint returned %d", resp.StatusCode)
	}
	return stage.Healthy("ingest")
}

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("graph endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("graph endpoint returned %d: %s", e.StatusCode, e.Body)
}

func (e *statusError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

func (s *HTTPSink) postWithRetry(ctx context.Context, payload messagePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrValidation, "ingest", "encode messages", payload.GroupID, err)
	}
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = s.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		delay, retry := s.retryDelay(ctx, lastErr, attempt)
		if !retry {
			break
		}
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return classify(lastErr)
}

func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &statusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			RetryAfter: retryAfter,
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPSink) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func (s *HTTPSink) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= s.attempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) {
		return 0, false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		if !statusErr.retryable() {
			return 0, false
		}
		if statusErr.RetryAfter > 0 {
			return min(statusErr.RetryAfter, s.maxDelay), true
		}
	}
	return s.backoff(attempt), true
}

// backoff doubles from baseDelay per attempt, capped at maxDelay.
func (s *HTTPSink) backoff(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > s.maxDelay/2 {
			return s.maxDelay
		}
		delay *= 2
	}
	return min(delay, s.maxDelay)
}

// classify tags the final error: rejected requests are tool errors, anything
// else (5xx, throttling, network) is transient.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) && !statusErr.retryable() {
		return services.Wrap(services.ErrExternalTool, "ingest", "post messages", "request rejected", err)
	}
	return services.Wrap(services.ErrTransient, "ingest", "post messages", "graph endpoint unavailable", err)
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if delay := time.Until(at); delay > 0 {
			return delay, true
		}
		return 0, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
