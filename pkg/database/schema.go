package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the audit history tables
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.WithComponent("database").Info("Creating audit schema...")

	for _, stmt := range []string{createAuditEventsTable, createAuditEventsIndexes} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create audit schema: %w", err)
		}
	}

	db.logger.WithComponent("database").Info("Audit schema created successfully")
	return nil
}

// audit_events mirrors the ledger journal. sequence is the ledger's own
// ordering; id is the event's uuid.
const createAuditEventsTable = `
CREATE TABLE IF NOT EXISTS audit_events (
    id UUID PRIMARY KEY,
    sequence BIGINT NOT NULL UNIQUE,
    name VARCHAR(64) NOT NULL,
    actor VARCHAR(255) NOT NULL,
    subject VARCHAR(255) NOT NULL DEFAULT '',
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    payload JSONB,
    recorded_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);`

const createAuditEventsIndexes = `
CREATE INDEX IF NOT EXISTS idx_audit_events_name ON audit_events(name);
CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor);
CREATE INDEX IF NOT EXISTS idx_audit_events_subject ON audit_events(subject);
CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at);`
