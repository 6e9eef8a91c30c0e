package workflow

import (
	"fmt"
	"slices"

	"graphmem/internal/config"
	"graphmem/internal/queue"
	"graphmem/internal/stage"
)

// Options is everything a Runner needs beyond the job store.
type Options struct {
	// Order lists the stages a full run sweeps, in pipeline order.
	Order []queue.Stage
	// Concurrency caps in-flight collaborator calls per stage.
	Concurrency map[queue.Stage]int
	// Handlers binds each stage in Order to its collaborator.
	Handlers map[queue.Stage]stage.Handler
	// ReconcileOnStart fails every in-progress job before the first sweep.
	ReconcileOnStart bool
}

// OptionsFromConfig resolves stage order and limits from cfg and binds the
// collaborators in b.
func OptionsFromConfig(cfg *config.Config, b stage.Bindings) (Options, error) {
	if cfg == nil {
		return Options{}, fmt.Errorf("workflow: config is required")
	}
	names := cfg.StageOrder()
	order := make([]queue.Stage, 0, len(names))
	limits := make(map[queue.Stage]int, len(names))
	for _, name := range names {
		s, err := queue.ParseStage(name)
		if err != nil {
			return Options{}, fmt.Errorf("workflow: stages.order: %w", err)
		}
		order = append(order, s)
		limits[s] = cfg.Concurrency(name)
	}
	handlers, err := b.Handlers(order)
	if err != nil {
		return Options{}, fmt.Errorf("workflow: %w", err)
	}
	return Options{
		Order:            order,
		Concurrency:      limits,
		Handlers:         handlers,
		ReconcileOnStart: cfg.Workflow.ReconcileOnStart,
	}, nil
}

func (o Options) validate() error {
	if len(o.Order) == 0 {
		return fmt.Errorf("workflow: no stages configured")
	}
	pipeline := queue.All()
	last := -1
	for _, s := range o.Order {
		if !s.Valid() {
			return fmt.Errorf("workflow: unknown stage %q", s)
		}
		pos := slices.Index(pipeline, s)
		if pos == last {
			return fmt.Errorf("workflow: stage %s listed twice", s)
		}
		if pos < last {
			return fmt.Errorf("workflow: stage %s is out of pipeline order", s)
		}
		last = pos
		if o.Concurrency[s] <= 0 {
			return fmt.Errorf("workflow: %s concurrency must be positive, got %d", s, o.Concurrency[s])
		}
		h, ok := o.Handlers[s]
		if !ok || h == nil {
			return fmt.Errorf("workflow: no handler bound for %s", s)
		}
		if h.Stage() != s {
			return fmt.Errorf("workflow: handler for %s reports stage %s", s, h.Stage())
		}
	}
	return nil
}

func (o Options) has(s queue.Stage) bool {
	for _, candidate := range o.Order {
		if candidate == s {
			return true
		}
	}
	return false
}
