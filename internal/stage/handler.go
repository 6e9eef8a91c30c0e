package stage

import (
	"context"
	"fmt"

	"graphmem/internal/queue"
)

// Downloader fetches a job's source and returns a local media path.
type Downloader interface {
	Fetch(ctx context.Context, source queue.Source) (string, error)
}

// Transcriber turns a media reference into a transcript reference.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaRef string) (string, error)
}

// Ingester pushes a transcript into the knowledge graph and returns an ingest reference.
type Ingester interface {
	Ingest(ctx context.Context, transcriptRef string) (string, error)
}

// HealthChecker is implemented by collaborators that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Handler executes one stage for one job.
type Handler interface {
	Stage() queue.Stage
	Execute(ctx context.Context, job *queue.Job) (string, error)
	HealthCheck(ctx context.Context) Health
}

// Func adapts a plain function into a Handler.
type Func struct {
	For queue.Stage
	Fn  func(ctx context.Context, job *queue.Job) (string, error)
}

func (f Func) Stage() queue.Stage { return f.For }

func (f Func) Execute(ctx context.Context, job *queue.Job) (string, error) {
	return f.Fn(ctx, job)
}

func (f Func) HealthCheck(context.Context) Health { return Healthy(string(f.For)) }

// Bindings holds the collaborator bound to each stage.
type Bindings struct {
	Downloader  Downloader
	Transcriber Transcriber
	Ingester    Ingester
}

// Handler returns the handler for s, or an error when s is unknown or unbound.
func (b Bindings) Handler(s queue.Stage) (Handler, error) {
	switch s {
	case queue.Download:
		if b.Downloader == nil {
			return nil, fmt.Errorf("stage %s: no downloader bound", s)
		}
		return &downloadHandler{d: b.Downloader}, nil
	case queue.Transcribe:
		if b.Transcriber == nil {
			return nil, fmt.Errorf("stage %s: no transcriber bound", s)
		}
		return &transcribeHandler{t: b.Transcriber}, nil
	case queue.Ingest:
		if b.Ingester == nil {
			return nil, fmt.Errorf("stage %s: no ingester bound", s)
		}
		return &ingestHandler{i: b.Ingester}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", s)
	}
}

// Handlers resolves a handler for every stage in order.
func (b Bindings) Handlers(order []queue.Stage) (map[queue.Stage]Handler, error) {
	out := make(map[queue.Stage]Handler, len(order))
	for _, s := range order {
		h, err := b.Handler(s)
		if err != nil {
			return nil, err
		}
		out[s] = h
	}
	return out, nil
}

type downloadHandler struct{ d Downloader }

func (h *downloadHandler) Stage() queue.Stage { return queue.Download }

func (h *downloadHandler) Execute(ctx context.Context, job *queue.Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("download: nil job")
	}
	if err := job.Source.Validate(); err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	return h.d.Fetch(ctx, job.Source)
}

func (h *downloadHandler) HealthCheck(ctx context.Context) Health {
	return checkCollaborator(ctx, queue.Download, h.d)
}

type transcribeHandler struct{ t Transcriber }

func (h *transcribeHandler) Stage() queue.Stage { return queue.Transcribe }

func (h *transcribeHandler) Execute(ctx context.Context, job *queue.Job) (string, error) {
	input, err := requireInput(job, queue.Transcribe)
	if err != nil {
		return "", err
	}
	return h.t.Transcribe(ctx, input)
}

func (h *transcribeHandler) HealthCheck(ctx context.Context) Health {
	return checkCollaborator(ctx, queue.Transcribe, h.t)
}

type ingestHandler struct{ i Ingester }

func (h *ingestHandler) Stage() queue.Stage { return queue.Ingest }

func (h *ingestHandler) Execute(ctx context.Context, job *queue.Job) (string, error) {
	input, err := requireInput(job, queue.Ingest)
	if err != nil {
		return "", err
	}
	return h.i.Ingest(ctx, input)
}

func (h *ingestHandler) HealthCheck(ctx context.Context) Health {
	return checkCollaborator(ctx, queue.Ingest, h.i)
}

func requireInput(job *queue.Job, s queue.Stage) (string, error) {
	input, ok := job.Input(s)
	if !ok {
		return "", fmt.Errorf("%s: job has no input artifact", s)
	}
	return input, nil
}

func checkCollaborator(ctx context.Context, s queue.Stage, collaborator any) Health {
	if checker, ok := collaborator.(HealthChecker); ok {
		health := checker.HealthCheck(ctx)
		if health.Name == "" {
			health.Name = string(s)
		}
		return health
	}
	return Healthy(string(s))
}
