package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medrex/rxledger/pkg/logger"
	"github.com/medrex/rxledger/pkg/types"
)

// PostgresSink mirrors the audit journal into the audit_events table for
// long-term retention and reporting
type PostgresSink struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPostgresSink creates a sink on an open pool. The schema must already
// exist; see database.DB.CreateSchema.
func NewPostgresSink(db *sql.DB, log *logger.Logger) *PostgresSink {
	if log == nil {
		log = logger.Discard()
	}
	return &PostgresSink{db: db, logger: log}
}

// Name implements Sink
func (s *PostgresSink) Name() string { return "postgres" }

// Write inserts the batch in one transaction. Events already recorded are
// skipped.
func (s *PostgresSink) Write(ctx context.Context, events []types.AuditEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_events (id, sequence, name, actor, subject, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		var payload interface{}
		if len(e.Payload) > 0 {
			data, err := json.Marshal(e.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal payload of event %d: %w", e.Sequence, err)
			}
			payload = string(data)
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID,
			int64(e.Sequence),
			string(e.Name),
			string(e.Actor),
			e.Subject,
			e.Timestamp,
			payload,
		); err != nil {
			return fmt.Errorf("failed to insert audit event %d: %w", e.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit events: %w", err)
	}
	return nil
}

// Query retrieves recorded events matching filter, oldest first
func (s *PostgresSink) Query(ctx context.Context, filter *types.AuditFilter) ([]types.AuditEvent, error) {
	query := `
		SELECT id, sequence, name, actor, subject, occurred_at, payload
		FROM audit_events
		WHERE 1=1`

	args := []interface{}{}
	argIndex := 1

	if filter == nil {
		filter = &types.AuditFilter{}
	}

	if filter.Name != "" {
		query += fmt.Sprintf(" AND name = $%d", argIndex)
		args = append(args, string(filter.Name))
		argIndex++
	}

	if filter.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", argIndex)
		args = append(args, string(filter.Actor))
		argIndex++
	}

	if filter.Subject != "" {
		query += fmt.Sprintf(" AND subject = $%d", argIndex)
		args = append(args, filter.Subject)
		argIndex++
	}

	if filter.AfterSequence > 0 {
		query += fmt.Sprintf(" AND sequence > $%d", argIndex)
		args = append(args, int64(filter.AfterSequence))
		argIndex++
	}

	query += " ORDER BY sequence ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []types.AuditEvent
	for rows.Next() {
		var (
			e           types.AuditEvent
			sequence    int64
			name, actor string
			payloadJSON []byte
		)
		if err := rows.Scan(&e.ID, &sequence, &name, &actor, &e.Subject, &e.Timestamp, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Sequence = uint64(sequence)
		e.Name = types.EventName(name)
		e.Actor = types.Identity(actor)
		e.Timestamp = e.Timestamp.UTC()

		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
				s.logger.WithComponent("audit").WithError(err).Warn("Failed to unmarshal audit event payload")
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}

	return events, nil
}
