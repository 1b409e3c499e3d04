package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/medrex/rxledger/pkg/types"
)

// emit appends an audit event to the transaction's journal. The event only
// becomes visible if the transaction commits.
func (tx *txn) emit(name types.EventName, subject string, payload map[string]interface{}) {
	tx.st.LastSequence++
	event := types.AuditEvent{
		ID:        uuid.New().String(),
		Sequence:  tx.st.LastSequence,
		Name:      name,
		Actor:     tx.actor,
		Subject:   subject,
		Timestamp: tx.now,
		Payload:   payload,
	}
	tx.st.Journal = append(tx.st.Journal, event)
	tx.events = append(tx.events, event)
}

// Events returns journal entries matching filter, oldest first
func (l *Ledger) Events(filter *types.AuditFilter) []types.AuditEvent {
	var out []types.AuditEvent
	l.view(func(st *State, _ time.Time) {
		for i := range st.Journal {
			e := &st.Journal[i]
			if !filter.Matches(e) {
				continue
			}
			out = append(out, *e)
			if filter != nil && filter.Limit > 0 && len(out) >= filter.Limit {
				return
			}
		}
	})
	return out
}

// EventCount returns the number of committed audit events
func (l *Ledger) EventCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.LastSequence
}
