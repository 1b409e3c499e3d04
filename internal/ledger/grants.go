package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/medrex/rxledger/pkg/types"
)

// GrantAccess lets the calling patient delegate read access on fields to an
// active doctor. A zero duration creates an indefinite grant that lasts
// until revoked.
func (l *Ledger) GrantAccess(ctx context.Context, caller, doctor types.Identity, fields []string, duration time.Duration) (uint64, error) {
	var requestID uint64
	err := l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireRole(types.RolePatient, types.ErrCodeNotPatient, "caller is not a registered patient"); err != nil {
			return err
		}
		d, ok := tx.st.Doctors[doctor]
		if !ok || !d.ActiveAt(tx.now) {
			return types.NewError(types.KindInvalidTarget, types.ErrCodeInvalidTarget, "doctor is not active").
				WithDetail("doctor", string(doctor))
		}
		if duration < 0 {
			return types.NewValidationError(types.ErrCodeInvalidInput, "duration must not be negative", nil)
		}
		normalized, err := normalizeFields(fields)
		if err != nil {
			return err
		}
		var expiry time.Time
		if duration > 0 {
			if expiry = tx.now.Add(duration); !expiry.After(tx.now) {
				return types.NewValidationError(types.ErrCodeInvalidInput, "grant expiry out of range", nil)
			}
		}

		tx.st.LastRequestID++
		requestID = tx.st.LastRequestID

		grant := &types.AccessGrant{
			RequestID:  requestID,
			Patient:    caller,
			Doctor:     doctor,
			DataFields: normalized,
			Indefinite: duration == 0,
			IsActive:   true,
			GrantedAt:  tx.now,
		}
		if !grant.Indefinite {
			grant.ExpiryTime = types.TimeAt(expiry)
		}

		tx.st.Grants[requestID] = grant
		tx.st.GrantsByPatient[caller] = append(tx.st.GrantsByPatient[caller], requestID)
		tx.st.GrantsByDoctor[doctor] = append(tx.st.GrantsByDoctor[doctor], requestID)

		tx.emit(types.EventAccessGranted, string(doctor), map[string]interface{}{
			"request_id":  requestID,
			"patient":     string(caller),
			"data_fields": normalized,
			"expiry_time": grant.ExpiryTime,
			"indefinite":  grant.Indefinite,
		})
		return nil
	})
	return requestID, err
}

// ExtendAccess pushes out the expiry of an active, time-bounded grant
func (l *Ledger) ExtendAccess(ctx context.Context, caller types.Identity, requestID uint64, additional time.Duration) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		g, err := tx.ownedGrant(requestID)
		if err != nil {
			return err
		}
		if !g.ActiveAt(tx.now) {
			return types.NewError(types.KindGrantInactive, types.ErrCodeGrantInactive, "grant is revoked or expired")
		}
		if additional <= 0 {
			return types.NewValidationError(types.ErrCodeInvalidInput, "extension must be positive", nil)
		}
		if g.Indefinite {
			return types.NewValidationError(types.ErrCodeInvalidInput, "grant does not expire", nil)
		}

		extended := g.ExpiryTime.Add(additional)
		if !extended.After(*g.ExpiryTime) {
			return types.NewValidationError(types.ErrCodeInvalidInput, "grant expiry out of range", nil)
		}
		g.ExpiryTime = &extended
		tx.emit(types.EventAccessExtended, string(g.Doctor), map[string]interface{}{
			"request_id":  requestID,
			"patient":     string(caller),
			"expiry_time": g.ExpiryTime,
		})
		return nil
	})
}

// RevokeAccessEarly deactivates a grant immediately, whatever its expiry
func (l *Ledger) RevokeAccessEarly(ctx context.Context, caller types.Identity, requestID uint64) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		g, err := tx.ownedGrant(requestID)
		if err != nil {
			return err
		}
		if !g.IsActive {
			return types.NewError(types.KindGrantInactive, types.ErrCodeGrantInactive, "grant already revoked")
		}

		g.IsActive = false
		g.RevokedAt = types.TimeAt(tx.now)
		tx.emit(types.EventAccessRevoked, string(g.Doctor), map[string]interface{}{
			"request_id": requestID,
			"patient":    string(caller),
		})
		return nil
	})
}

func (tx *txn) ownedGrant(requestID uint64) (*types.AccessGrant, error) {
	g, ok := tx.st.Grants[requestID]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "grant not found").WithDetail("request_id", requestID)
	}
	if g.Patient != tx.actor {
		return nil, types.NewUnauthorizedError(types.ErrCodeNotOwner, "caller does not own this grant")
	}
	return g, nil
}

// IsGranted reports whether the grant is active and unexpired now
func (l *Ledger) IsGranted(requestID uint64) bool {
	var granted bool
	l.view(func(st *State, now time.Time) {
		if g, ok := st.Grants[requestID]; ok {
			granted = g.ActiveAt(now)
		}
	})
	return granted
}

// GetGrant returns a grant record regardless of its state
func (l *Ledger) GetGrant(requestID uint64) (types.AccessGrant, error) {
	var (
		out types.AccessGrant
		ok  bool
	)
	l.view(func(st *State, _ time.Time) {
		var g *types.AccessGrant
		if g, ok = st.Grants[requestID]; ok {
			out = *g
		}
	})
	if !ok {
		return types.AccessGrant{}, types.NewNotFoundError(types.ErrCodeNotFound, "grant not found")
	}
	return out, nil
}

// GetActivePermissions returns the patient's grants that are in force now
func (l *Ledger) GetActivePermissions(patient types.Identity) []types.AccessGrant {
	var out []types.AccessGrant
	l.view(func(st *State, now time.Time) {
		out = st.activeGrants(st.GrantsByPatient[patient], now)
	})
	return out
}

// GetDoctorAccess returns grants held by the doctor that are in force now
func (l *Ledger) GetDoctorAccess(doctor types.Identity) []types.AccessGrant {
	var out []types.AccessGrant
	l.view(func(st *State, now time.Time) {
		out = st.activeGrants(st.GrantsByDoctor[doctor], now)
	})
	return out
}

// CheckAccess reports whether doctor may currently read field of patient
func (l *Ledger) CheckAccess(patient, doctor types.Identity, field string) bool {
	field = strings.ToLower(strings.TrimSpace(field))
	var allowed bool
	l.view(func(st *State, now time.Time) {
		for _, id := range st.GrantsByPatient[patient] {
			g := st.Grants[id]
			if g.Doctor == doctor && g.ActiveAt(now) && g.Covers(field) {
				allowed = true
				return
			}
		}
	})
	return allowed
}

func (s *State) activeGrants(ids []uint64, now time.Time) []types.AccessGrant {
	var out []types.AccessGrant
	for _, id := range ids {
		if g := s.Grants[id]; g != nil && g.ActiveAt(now) {
			out = append(out, *g)
		}
	}
	return out
}

func (s *State) doctorHasAnyGrant(patient, doctor types.Identity, now time.Time) bool {
	for _, id := range s.GrantsByPatient[patient] {
		if g := s.Grants[id]; g.Doctor == doctor && g.ActiveAt(now) {
			return true
		}
	}
	return false
}

// normalizeFields lower-cases and trims field tags, rejecting empty sets,
// blank tags and duplicates
func normalizeFields(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "at least one data field is required", nil)
	}
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tag := strings.ToLower(strings.TrimSpace(f))
		if tag == "" {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "data field tag is blank", nil)
		}
		if _, dup := seen[tag]; dup {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "duplicate data field", map[string]interface{}{
				"field": tag,
			})
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}
