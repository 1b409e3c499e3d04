package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/medrex/rxledger/pkg/types"
)

// mint inserts an outstanding token. Ids are never reused, so an existing
// entry means the prescription counter and token arena disagree.
func (tx *txn) mint(id uint64, owner types.Identity) error {
	if _, exists := tx.st.Tokens[id]; exists {
		return types.NewError(types.KindAlreadyExists, types.ErrCodeAlreadyExists, "token already minted").
			WithDetail("token_id", id)
	}
	tx.st.Tokens[id] = &types.CapabilityToken{
		ID:       id,
		Owner:    owner,
		State:    types.TokenOutstanding,
		MintedAt: tx.now,
	}
	tx.emit(types.EventTokenMinted, string(owner), map[string]interface{}{"token_id": id})
	return nil
}

// burn flips an outstanding token to burned. The record is kept so the
// token's history stays queryable.
func (tx *txn) burn(id uint64) error {
	t, ok := tx.st.Tokens[id]
	if !ok || t.State != types.TokenOutstanding {
		return types.NewNotFoundError(types.ErrCodeNotFound, "token not outstanding").WithDetail("token_id", id)
	}
	t.State = types.TokenBurned
	t.BurnedAt = types.TimeAt(tx.now)
	tx.emit(types.EventTokenBurned, string(t.Owner), map[string]interface{}{"token_id": id})
	return nil
}

// TransferToken always fails. Capability tokens never change owner.
func (l *Ledger) TransferToken(_ context.Context, caller types.Identity, id uint64, to types.Identity) error {
	return types.NewError(types.KindNonTransferable, types.ErrCodeNonTransferable, "prescription tokens are non-transferable").
		WithDetail("token_id", id).
		WithDetail("from", string(caller)).
		WithDetail("to", string(to))
}

// TokenExists reports whether an outstanding token exists for id
func (l *Ledger) TokenExists(id uint64) bool {
	var exists bool
	l.view(func(st *State, _ time.Time) {
		t, ok := st.Tokens[id]
		exists = ok && t.State == types.TokenOutstanding
	})
	return exists
}

// GetToken returns the token record for id, outstanding or burned
func (l *Ledger) GetToken(id uint64) (types.CapabilityToken, error) {
	var (
		out types.CapabilityToken
		ok  bool
	)
	l.view(func(st *State, _ time.Time) {
		var t *types.CapabilityToken
		if t, ok = st.Tokens[id]; ok {
			out = *t
		}
	})
	if !ok {
		return types.CapabilityToken{}, types.NewNotFoundError(types.ErrCodeNotFound, "token not found")
	}
	return out, nil
}

// OwnerOf returns the owner of an outstanding token
func (l *Ledger) OwnerOf(id uint64) (types.Identity, error) {
	var (
		owner types.Identity
		ok    bool
	)
	l.view(func(st *State, _ time.Time) {
		if t, found := st.Tokens[id]; found && t.State == types.TokenOutstanding {
			owner, ok = t.Owner, true
		}
	})
	if !ok {
		return "", types.NewNotFoundError(types.ErrCodeNotFound, "token does not exist")
	}
	return owner, nil
}

// TokensOf returns the ids of outstanding tokens held by owner
func (l *Ledger) TokensOf(owner types.Identity) []uint64 {
	var out []uint64
	l.view(func(st *State, _ time.Time) {
		for _, id := range st.PrescriptionsByPatient[owner] {
			if t := st.Tokens[id]; t != nil && t.State == types.TokenOutstanding {
				out = append(out, id)
			}
		}
	})
	return out
}

// TokenURI returns the metadata location of an outstanding token: the base
// URI joined with the prescription's content reference
func (l *Ledger) TokenURI(id uint64) (string, error) {
	var (
		uri string
		err error
	)
	l.view(func(st *State, _ time.Time) {
		t, ok := st.Tokens[id]
		if !ok || t.State != types.TokenOutstanding {
			err = types.NewNotFoundError(types.ErrCodeNotFound, "token does not exist")
			return
		}
		ref := st.Prescriptions[id].ContentRef
		if st.TokenBaseURI == "" {
			uri = ref
			return
		}
		uri = strings.TrimSuffix(st.TokenBaseURI, "/") + "/" + ref
	})
	return uri, err
}

// SetTokenBaseURI changes the prefix used by TokenURI. Only admins may call it.
func (l *Ledger) SetTokenBaseURI(ctx context.Context, caller types.Identity, baseURI string) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		previous := tx.st.TokenBaseURI
		tx.st.TokenBaseURI = baseURI
		tx.emit(types.EventTokenBaseURIUpdated, "token_base_uri", map[string]interface{}{
			"previous": previous,
			"base_uri": baseURI,
		})
		return nil
	})
}
