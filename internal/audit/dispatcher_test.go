package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/rxledger/internal/ledger"
	"github.com/medrex/rxledger/pkg/types"
)

type fakeRecorder struct {
	mu        sync.Mutex
	events    map[string]int
	delivered map[string]int
	failed    map[string]int
	dropped   int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		events:    make(map[string]int),
		delivered: make(map[string]int),
		failed:    make(map[string]int),
	}
}

func (r *fakeRecorder) RecordAuditEvent(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventType]++
}

func (r *fakeRecorder) RecordAuditDelivery(sink string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.delivered[sink]++
		return
	}
	r.failed[sink]++
}

func (r *fakeRecorder) RecordAuditDropped(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped += n
}

type failingSink struct {
	mu     sync.Mutex
	writes int
}

func (s *failingSink) Name() string { return "failing" }

func (s *failingSink) Write(context.Context, []types.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return errors.New("sink unavailable")
}

// flakySink fails its first failures writes, then delegates to a MemorySink
type flakySink struct {
	*MemorySink
	mu       sync.Mutex
	failures int
	writes   int
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) Write(ctx context.Context, events []types.AuditEvent) error {
	s.mu.Lock()
	s.writes++
	fail := s.writes <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return s.MemorySink.Write(ctx, events)
}

func testEvents(from, n uint64) []types.AuditEvent {
	events := make([]types.AuditEvent, 0, n)
	for i := from; i < from+n; i++ {
		events = append(events, types.AuditEvent{
			ID:       "evt-" + string(rune('a'+i)),
			Sequence: i,
			Name:     types.EventPatientRegistered,
		})
	}
	return events
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sink := NewMemorySink()
	recorder := newFakeRecorder()
	failing := &failingSink{}
	d := NewDispatcher(DispatcherConfig{
		Metrics:      recorder,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	}, sink, failing)
	d.Start()

	d.Publish(testEvents(1, 2))
	d.Publish(testEvents(3, 1))
	d.Publish(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	events := sink.Events()
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}

	assert.Equal(t, 3, recorder.events[string(types.EventPatientRegistered)])
	assert.Equal(t, 2, recorder.delivered["memory"])
	assert.Equal(t, 2, recorder.failed["failing"])
	assert.Equal(t, 6, failing.writes)
	assert.Zero(t, recorder.dropped)
}

func TestDispatcher_RetriesFailedWrites(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		maxAttempts int
		wantEvents  int
		wantWrites  int
		wantSuccess bool
	}{
		{"succeeds first time", 0, 3, 2, 1, true},
		{"recovers on last attempt", 2, 3, 2, 3, true},
		{"gives up after max attempts", 5, 3, 0, 3, false},
		{"single attempt", 1, 1, 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &flakySink{MemorySink: NewMemorySink(), failures: tt.failures}
			recorder := newFakeRecorder()
			d := NewDispatcher(DispatcherConfig{
				Metrics:      recorder,
				MaxAttempts:  tt.maxAttempts,
				RetryBackoff: time.Millisecond,
			}, sink)
			d.Start()

			d.Publish(testEvents(1, 2))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, d.Close(ctx))

			assert.Len(t, sink.Events(), tt.wantEvents)
			assert.Equal(t, tt.wantWrites, sink.writes)
			if tt.wantSuccess {
				assert.Equal(t, 1, recorder.delivered["flaky"])
				assert.Zero(t, recorder.failed["flaky"])
			} else {
				assert.Zero(t, recorder.delivered["flaky"])
				assert.Equal(t, 1, recorder.failed["flaky"])
			}
		})
	}
}

func TestDispatcher_DropsWhenBufferFull(t *testing.T) {
	sink := NewMemorySink()
	recorder := newFakeRecorder()
	d := NewDispatcher(DispatcherConfig{BufferSize: 1, Metrics: recorder}, sink)

	d.Publish(testEvents(1, 1))
	d.Publish(testEvents(2, 3))
	assert.Equal(t, 3, recorder.dropped)

	d.Start()
	require.NoError(t, d.Close(context.Background()))
	require.Len(t, sink.Events(), 1)

	d.Publish(testEvents(5, 1))
	assert.Equal(t, 4, recorder.dropped)
	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_AsLedgerPublisher(t *testing.T) {
	sink := NewMemorySink()
	d := NewDispatcher(DispatcherConfig{}, sink)
	d.Start()

	l, err := ledger.New(context.Background(), ledger.Options{
		Clock:     ledger.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Admins:    []types.Identity{"admin"},
		Publisher: d,
	})
	require.NoError(t, err)
	require.NoError(t, l.RegisterPatient(context.Background(), "patient", ""))
	require.Error(t, l.RegisterPatient(context.Background(), "patient", ""))

	require.NoError(t, d.Close(context.Background()))

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, types.EventAdminAdded, events[0].Name)
	assert.Equal(t, types.EventPatientRegistered, events[1].Name)
	assert.Equal(t, l.Events(nil), events)
}

func TestMemorySink_IgnoresRedelivery(t *testing.T) {
	sink := NewMemorySink()
	batch := testEvents(1, 2)

	require.NoError(t, sink.Write(context.Background(), batch))
	require.NoError(t, sink.Write(context.Background(), batch))
	assert.Len(t, sink.Events(), 2)
}
