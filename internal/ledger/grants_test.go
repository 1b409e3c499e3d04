package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/rxledger/pkg/types"
)

func TestGrantAccess(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		caller   types.Identity
		doctor   types.Identity
		fields   []string
		duration time.Duration
		wantKind types.ErrorKind
	}{
		{"bounded grant", patient, doctor, []string{"allergies", "medications"}, time.Hour, ""},
		{"indefinite grant", patient, doctor, []string{"name"}, 0, ""},
		{"caller not patient", stranger, doctor, []string{"name"}, time.Hour, types.KindUnauthorized},
		{"doctor not active", patient, stranger, []string{"name"}, time.Hour, types.KindInvalidTarget},
		{"empty field set", patient, doctor, nil, time.Hour, types.KindInvalidInput},
		{"blank field", patient, doctor, []string{" "}, time.Hour, types.KindInvalidInput},
		{"duplicate field", patient, doctor, []string{"Allergies", "allergies "}, time.Hour, types.KindInvalidInput},
		{"negative duration", patient, doctor, []string{"name"}, -time.Hour, types.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newPopulatedLedger(t)

			id, err := l.GrantAccess(ctx, tt.caller, tt.doctor, tt.fields, tt.duration)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, types.KindOf(err))
				assert.Empty(t, l.GetActivePermissions(patient))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, uint64(1), id)
			assert.True(t, l.IsGranted(id))

			g, err := l.GetGrant(id)
			require.NoError(t, err)
			assert.Equal(t, tt.duration == 0, g.Indefinite)
			if tt.duration > 0 {
				require.NotNil(t, g.ExpiryTime)
				assert.Equal(t, epoch.Add(tt.duration), *g.ExpiryTime)
			} else {
				assert.Nil(t, g.ExpiryTime)
			}
		})
	}
}

func TestGrantAccess_LazyExpiry(t *testing.T) {
	l, clock := newPopulatedLedger(t)
	ctx := context.Background()

	id, err := l.GrantAccess(ctx, patient, doctor, []string{"Allergies"}, time.Hour)
	require.NoError(t, err)

	assert.True(t, l.CheckAccess(patient, doctor, "allergies"))
	assert.True(t, l.CheckAccess(patient, doctor, " ALLERGIES "))
	assert.False(t, l.CheckAccess(patient, doctor, "medications"))
	assert.Len(t, l.GetDoctorAccess(doctor), 1)

	clock.Advance(time.Hour)
	assert.False(t, l.IsGranted(id))
	assert.False(t, l.CheckAccess(patient, doctor, "allergies"))
	assert.Empty(t, l.GetActivePermissions(patient))
	assert.Empty(t, l.GetDoctorAccess(doctor))

	// The record itself still reports active; only the observed state expired.
	g, err := l.GetGrant(id)
	require.NoError(t, err)
	assert.True(t, g.IsActive)
}

func TestGrantAccess_IndefiniteOutlivesClock(t *testing.T) {
	l, clock := newPopulatedLedger(t)
	ctx := context.Background()

	id, err := l.GrantAccess(ctx, patient, doctor, []string{"conditions"}, 0)
	require.NoError(t, err)

	clock.Advance(100 * 365 * 24 * time.Hour)
	assert.True(t, l.IsGranted(id))

	err = l.ExtendAccess(ctx, patient, id, time.Hour)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	require.NoError(t, l.RevokeAccessEarly(ctx, patient, id))
	assert.False(t, l.IsGranted(id))
}

func TestExtendAccess(t *testing.T) {
	l, clock := newPopulatedLedger(t)
	ctx := context.Background()

	id, err := l.GrantAccess(ctx, patient, doctor, []string{"name"}, time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, l.ExtendAccess(ctx, doctor, id, time.Hour), types.ErrUnauthorized)
	assert.ErrorIs(t, l.ExtendAccess(ctx, patient, 99, time.Hour), types.ErrNotFound)
	assert.ErrorIs(t, l.ExtendAccess(ctx, patient, id, 0), types.ErrInvalidInput)

	require.NoError(t, l.ExtendAccess(ctx, patient, id, 7*24*time.Hour))
	g, err := l.GetGrant(id)
	require.NoError(t, err)
	require.NotNil(t, g.ExpiryTime)
	assert.Equal(t, epoch.Add(time.Hour+7*24*time.Hour), *g.ExpiryTime)

	clock.Advance(8 * 24 * time.Hour)
	assert.ErrorIs(t, l.ExtendAccess(ctx, patient, id, time.Hour), types.ErrGrantInactive)
}

func TestRevokeAccessEarly(t *testing.T) {
	l, _ := newPopulatedLedger(t)
	ctx := context.Background()

	id, err := l.GrantAccess(ctx, patient, doctor, []string{"name"}, time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, l.RevokeAccessEarly(ctx, stranger, id), types.ErrUnauthorized)
	require.NoError(t, l.RevokeAccessEarly(ctx, patient, id))
	assert.False(t, l.IsGranted(id))
	assert.False(t, l.CheckAccess(patient, doctor, "name"))

	g, err := l.GetGrant(id)
	require.NoError(t, err)
	require.NotNil(t, g.RevokedAt)
	assert.Equal(t, epoch, *g.RevokedAt)

	assert.ErrorIs(t, l.RevokeAccessEarly(ctx, patient, id), types.ErrGrantInactive)
	assert.ErrorIs(t, l.ExtendAccess(ctx, patient, id, time.Hour), types.ErrGrantInactive)

	revoked := l.Events(&types.AuditFilter{Name: types.EventAccessRevoked})
	require.Len(t, revoked, 1)
	assert.Equal(t, string(doctor), revoked[0].Subject)
}

func TestGrantAccess_RequestIDsAreMonotonic(t *testing.T) {
	l, _ := newPopulatedLedger(t)
	ctx := context.Background()

	first, err := l.GrantAccess(ctx, patient, doctor, []string{"name"}, time.Hour)
	require.NoError(t, err)
	_, err = l.GrantAccess(ctx, patient, stranger, []string{"name"}, time.Hour)
	require.Error(t, err)
	second, err := l.GrantAccess(ctx, patient, doctor, []string{"dob"}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, first+1, second)
	assert.Len(t, l.GetActivePermissions(patient), 2)
}

func TestGrantAccess_LongestRepresentableDuration(t *testing.T) {
	l, clock := newPopulatedLedger(t)
	ctx := context.Background()
	longest := time.Duration(math.MaxInt64)

	id, err := l.GrantAccess(ctx, patient, doctor, []string{"name"}, longest)
	require.NoError(t, err)

	g, err := l.GetGrant(id)
	require.NoError(t, err)
	assert.False(t, g.Indefinite)
	require.NotNil(t, g.ExpiryTime)
	assert.Equal(t, epoch.Add(longest), *g.ExpiryTime)

	clock.Advance(200 * 365 * 24 * time.Hour)
	assert.True(t, l.IsGranted(id))

	require.NoError(t, l.ExtendAccess(ctx, patient, id, longest))
	g, err = l.GetGrant(id)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(longest).Add(longest), *g.ExpiryTime)
	assert.True(t, l.IsGranted(id))
}
