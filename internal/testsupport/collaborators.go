package testsupport

import (
	"context"
	"errors"
	"sync"
	"time"

	"graphmem/internal/queue"
)

// StubCollaborator satisfies every stage collaborator contract. It records
// calls and the highest number of simultaneously active invocations.
type StubCollaborator struct {
	// Delay is how long each invocation stays active.
	Delay time.Duration
	// Outcome decides the result for one input. Nil succeeds with input + ".out".
	Outcome func(input string) (string, error)

	mu     sync.Mutex
	active int
	peak   int
	calls  []string
}

// Succeeding returns a stub whose calls all succeed.
func Succeeding() *StubCollaborator {
	return &StubCollaborator{}
}

// Failing returns a stub whose calls all fail with message.
func Failing(message string) *StubCollaborator {
	return &StubCollaborator{Outcome: func(string) (string, error) {
		return "", errors.New(message)
	}}
}

func (s *StubCollaborator) Fetch(ctx context.Context, source queue.Source) (string, error) {
	return s.invoke(ctx, source.Ref)
}

func (s *StubCollaborator) Transcribe(ctx context.Context, mediaRef string) (string, error) {
	return s.invoke(ctx, mediaRef)
}

func (s *StubCollaborator) Ingest(ctx context.Context, transcriptRef string) (string, error) {
	return s.invoke(ctx, transcriptRef)
}

func (s *StubCollaborator) invoke(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.calls = append(s.calls, input)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.Outcome != nil {
		return s.Outcome(input)
	}
	return input + ".out", nil
}

// Peak reports the highest number of concurrent invocations observed.
func (s *StubCollaborator) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Calls returns the inputs seen so far.
func (s *StubCollaborator) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
