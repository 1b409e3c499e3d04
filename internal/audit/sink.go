package audit

import (
	"context"
	"sync"

	"github.com/medrex/rxledger/pkg/types"
)

// Sink receives committed audit events in sequence order. A failed Write is
// retried with the same batch, so implementations should be idempotent on
// event id.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []types.AuditEvent) error
}

// MemorySink keeps delivered events in memory
type MemorySink struct {
	mu     sync.Mutex
	events []types.AuditEvent
	seen   map[string]struct{}
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Name implements Sink
func (s *MemorySink) Name() string { return "memory" }

// Write implements Sink
func (s *MemorySink) Write(_ context.Context, events []types.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if _, dup := s.seen[e.ID]; dup {
			continue
		}
		s.seen[e.ID] = struct{}{}
		s.events = append(s.events, e)
	}
	return nil
}

// Events returns a copy of everything delivered so far
func (s *MemorySink) Events() []types.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.AuditEvent(nil), s.events...)
}
