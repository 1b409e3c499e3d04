package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/medrex/rxledger/internal/ledger"
	"github.com/medrex/rxledger/pkg/logger"
	"github.com/medrex/rxledger/pkg/types"
)

const (
	stateKey    = "state"
	eventPrefix = "event:"
)

// LevelDBStore persists the ledger snapshot and its audit journal in a
// LevelDB directory. Each commit is written as a single batch.
type LevelDBStore struct {
	db     *leveldb.DB
	logger *logger.Logger
}

// NewLevelDBStore opens or creates the database at path
func NewLevelDBStore(path string, log *logger.Logger) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &LevelDBStore{db: db, logger: log}, nil
}

func eventKey(sequence uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventPrefix, sequence))
}

// Persist writes the state snapshot and the transaction's new events
// atomically
func (s *LevelDBStore) Persist(ctx context.Context, state *ledger.State, events []types.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(stateKey), snapshot)
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event %d: %w", e.Sequence, err)
		}
		batch.Put(eventKey(e.Sequence), data)
	}

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

// Load returns the last persisted state with its journal, or nil when the
// database is empty
func (s *LevelDBStore) Load(ctx context.Context) (*ledger.State, error) {
	data, err := s.db.Get([]byte(stateKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	state := ledger.NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}

	journal, err := s.events(ctx, state.LastSequence)
	if err != nil {
		return nil, err
	}
	state.Journal = journal

	s.logger.WithComponent("store").WithFields(map[string]interface{}{
		"events":   len(journal),
		"sequence": state.LastSequence,
	}).Debug("Loaded ledger snapshot")
	return state, nil
}

// events reads the journal in sequence order. Entries above upTo belong to
// no committed snapshot and are skipped.
func (s *LevelDBStore) events(ctx context.Context, upTo uint64) ([]types.AuditEvent, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(eventPrefix)), nil)
	defer iter.Release()

	var journal []types.AuditEvent
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var e types.AuditEvent
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", iter.Key(), err)
		}
		if e.Sequence > upTo {
			break
		}
		journal = append(journal, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return journal, nil
}

// Ping checks that the database is readable
func (s *LevelDBStore) Ping(_ context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	return err
}

// Close releases the database
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
