package ledger

import (
	"context"
	"time"

	"github.com/medrex/rxledger/pkg/types"
)

// TogglePause flips the emergency pause. While the effective pause is in
// force the call unpauses; otherwise it pauses for durationHours. The
// toggle itself is never blocked by the pause.
func (l *Ledger) TogglePause(ctx context.Context, caller types.Identity, durationHours int) (types.PauseState, error) {
	var out types.PauseState
	err := l.update(ctx, caller, false, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}

		if tx.st.Pause.EffectiveAt(tx.now) {
			tx.st.Pause = types.PauseState{
				EmergencyPause: false,
				ToggledBy:      tx.actor,
				ToggledAt:      types.TimeAt(tx.now),
			}
		} else {
			if durationHours <= 0 || durationHours > int(l.maxPause/time.Hour) {
				return types.NewValidationError(types.ErrCodeInvalidInput, "pause duration out of range", map[string]interface{}{
					"duration_hours": durationHours,
					"max_hours":      int(l.maxPause / time.Hour),
				})
			}
			tx.st.Pause = types.PauseState{
				EmergencyPause: true,
				PauseExpiry:    types.TimeAt(tx.now.Add(time.Duration(durationHours) * time.Hour)),
				ToggledBy:      tx.actor,
				ToggledAt:      types.TimeAt(tx.now),
			}
		}

		out = tx.st.Pause
		tx.emit(types.EventPauseToggled, "pause", map[string]interface{}{
			"emergency_pause": tx.st.Pause.EmergencyPause,
			"pause_expiry":    tx.st.Pause.PauseExpiry,
			"duration_hours":  durationHours,
		})
		return nil
	})
	return out, err
}

// EffectivePause reports whether mutations are currently suspended
func (l *Ledger) EffectivePause() bool {
	var paused bool
	l.view(func(st *State, now time.Time) { paused = st.Pause.EffectiveAt(now) })
	return paused
}

// PauseState returns the stored pause flag and expiry. The flag may read
// true after expiry; use EffectivePause for the observed state.
func (l *Ledger) PauseState() types.PauseState {
	var out types.PauseState
	l.view(func(st *State, _ time.Time) { out = st.Pause })
	return out
}
