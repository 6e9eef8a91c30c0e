package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"graphmem/internal/config"
	"graphmem/internal/workflow"
)

const userAgent = "graphmem/0.1"

// Service is the notification surface used by run and watch.
type Service interface {
	// NotifyRunCompleted reports a finished run. Idle runs are not sent.
	NotifyRunCompleted(ctx context.Context, summary workflow.RunSummary) error
	// NotifyRunAborted reports a run stopped by a store or configuration fault.
	NotifyRunAborted(ctx context.Context, runID string, err error) error
	TestNotification(ctx context.Context) error
}

// HTTPDoer is the subset of *http.Client the ntfy service needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewService builds an ntfy-backed service, or a no-op when the topic is empty.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		onlyFailures: cfg.OnlyFailures,
	}
}

// NewServiceWithClient is NewService with an injected HTTP client.
func NewServiceWithClient(cfg config.Notifications, client HTTPDoer) Service {
	svc := NewService(cfg)
	if ntfy, ok := svc.(*ntfyService); ok && client != nil {
		ntfy.client = client
	}
	return svc
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       HTTPDoer
	onlyFailures bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary workflow.RunSummary) error {
	total := summary.Totals()
	if total.Claimed == 0 && summary.Reconciled == 0 {
		return nil
	}
	if n.onlyFailures && total.Failed == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded, %d failed", total.Succeeded, total.Failed)
	if total.Interrupted > 0 {
		fmt.Fprintf(&b, ", %d interrupted", total.Interrupted)
	}
	fmt.Fprintf(&b, " in %s", formatDuration(summary.Duration()))
	for _, r := range summary.Stages {
		if r.Claimed == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %d/%d", r.Stage, r.Succeeded, r.Claimed)
	}
	if total.Failed > 0 {
		b.WriteString("\nRun graphmem errors for details.")
	}

	data := payload{
		title:   "graphmem - Run Complete",
		message: b.String(),
		tags:    []string{"graphmem", "run", "completed"},
	}
	if total.Failed > 0 {
		data.title = "graphmem - Run Complete (with failures)"
		data.tags = []string{"graphmem", "run", "warning"}
		data.priority = "high"
	}
	if summary.Cancelled {
		data.title = "graphmem - Run Interrupted"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunAborted(ctx context.Context, runID string, err error) error {
	var b strings.Builder
	b.WriteString("Run")
	if runID = strings.TrimSpace(runID); runID != "" {
		b.WriteString(" ")
		b.WriteString(runID)
	}
	b.WriteString(" aborted: ")
	if err != nil {
		b.WriteString(strings.TrimSpace(err.Error()))
	} else {
		b.WriteString("unknown error")
	}
	return n.send(ctx, payload{
		title:    "graphmem - Run Aborted",
		message:  b.String(),
		tags:     []string{"graphmem", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "graphmem - Test",
		message:  "Notification system test",
		tags:     []string{"graphmem", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, workflow.RunSummary) error { return nil }
func (noopService) NotifyRunAborted(context.Context, string, error) error         { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
