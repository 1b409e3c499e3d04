package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medrex/rxledger/pkg/logger"
	"github.com/medrex/rxledger/pkg/types"
)

// SystemIdentity is the actor recorded for bootstrap events
const SystemIdentity types.Identity = "system"

// DefaultMaxPauseDuration bounds a single emergency pause window
const DefaultMaxPauseDuration = 7 * 24 * time.Hour

// Persister durably stores committed state. Persist is called inside the
// commit; a failure aborts the transaction.
type Persister interface {
	Persist(ctx context.Context, state *State, events []types.AuditEvent) error
	Load(ctx context.Context) (*State, error)
}

// Publisher receives committed audit events. Publish is called while the
// ledger lock is held and must not block.
type Publisher interface {
	Publish(events []types.AuditEvent)
}

// Options configures a Ledger
type Options struct {
	Clock            Clock
	Admins           []types.Identity
	TokenBaseURI     string
	MaxPauseDuration time.Duration
	Persister        Persister
	Publisher        Publisher
	Logger           *logger.Logger
}

// Ledger owns the role registry, pause controller, access grants,
// prescriptions and capability tokens. Every mutation is serialized behind
// one lock and applied all-or-nothing.
type Ledger struct {
	mu        sync.RWMutex
	state     *State
	clock     Clock
	maxPause  time.Duration
	persister Persister
	publisher Publisher
	logger    *logger.Logger
}

// New creates a ledger, restoring persisted state when a persister holds
// any. Bootstrap admins are only applied to a fresh ledger.
func New(ctx context.Context, opts Options) (*Ledger, error) {
	l := &Ledger{
		clock:     opts.Clock,
		maxPause:  opts.MaxPauseDuration,
		persister: opts.Persister,
		publisher: opts.Publisher,
		logger:    opts.Logger,
	}
	if l.clock == nil {
		l.clock = NewSystemClock()
	}
	if l.maxPause <= 0 {
		l.maxPause = DefaultMaxPauseDuration
	}
	if l.logger == nil {
		l.logger = logger.Discard()
	}

	if l.persister != nil {
		restored, err := l.persister.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger state: %w", err)
		}
		if restored != nil {
			restored.normalize()
			l.state = restored
			l.logger.WithComponent("ledger").WithFields(map[string]interface{}{
				"prescriptions": restored.LastPrescriptionID,
				"grants":        restored.LastRequestID,
				"sequence":      restored.LastSequence,
			}).Info("Ledger state restored")
			return l, nil
		}
	}

	l.state = NewState()
	l.state.TokenBaseURI = opts.TokenBaseURI

	if len(opts.Admins) == 0 {
		return l, nil
	}

	err := l.update(ctx, SystemIdentity, false, func(tx *txn) error {
		for _, admin := range opts.Admins {
			if admin == "" {
				return types.NewValidationError(types.ErrCodeInvalidInput, "bootstrap admin identity is empty", nil)
			}
			if tx.st.hasRole(admin, types.RoleAdmin) {
				continue
			}
			tx.st.addRole(admin, types.RoleAdmin)
			tx.emit(types.EventAdminAdded, string(admin), nil)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap admins: %w", err)
	}

	return l, nil
}

// Now returns the ledger's current time
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// txn is the working copy of one transaction
type txn struct {
	st     *State
	now    time.Time
	actor  types.Identity
	events []types.AuditEvent
}

// update runs fn against a clone of the state and commits it only if fn,
// and persistence, succeed. pausable operations are rejected while the
// effective pause is in force.
func (l *Ledger) update(ctx context.Context, actor types.Identity, pausable bool, fn func(tx *txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if pausable && l.state.Pause.EffectiveAt(now) {
		return types.NewError(types.KindSystemPaused, types.ErrCodeSystemPaused, "system is paused").
			WithDetail("pause_expiry", l.state.Pause.PauseExpiry)
	}

	tx := &txn{st: l.state.clone(), now: now, actor: actor}
	if err := fn(tx); err != nil {
		return err
	}

	if l.persister != nil && len(tx.events) > 0 {
		if err := l.persister.Persist(ctx, tx.st, tx.events); err != nil {
			l.logger.WithComponent("ledger").WithError(err).Error("Failed to persist transaction")
			return types.NewInternalError(types.ErrCodePersistFailed, "failed to persist transaction", err)
		}
	}

	l.state = tx.st
	if l.publisher != nil && len(tx.events) > 0 {
		l.publisher.Publish(tx.events)
	}
	return nil
}

// view runs fn against the last committed state under the read lock
func (l *Ledger) view(fn func(st *State, now time.Time)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(l.state, l.clock.Now())
}

func (tx *txn) requireRole(role types.Role, code, message string) error {
	if !tx.st.hasRole(tx.actor, role) {
		return types.NewUnauthorizedError(code, message).WithDetail("caller", string(tx.actor))
	}
	return nil
}

func (tx *txn) requireAdmin() error {
	return tx.requireRole(types.RoleAdmin, types.ErrCodeNotAdmin, "caller is not an admin")
}
