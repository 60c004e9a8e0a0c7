package reasonstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema holds the DDL for the visit reason table. Apply it with Migrate or
// through an external migration tool.
const Schema = `
CREATE TABLE IF NOT EXISTS visit_reasons (
    id          UUID PRIMARY KEY,
    call_id     TEXT NOT NULL,
    reason      TEXT NOT NULL,
    emergency   BOOLEAN NOT NULL DEFAULT FALSE,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS visit_reasons_recorded_at_idx ON visit_reasons (recorded_at DESC);
CREATE INDEX IF NOT EXISTS visit_reasons_emergency_idx ON visit_reasons (emergency) WHERE emergency;
`

// DB is the subset of pgx used by the store. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists visit reasons in PostgreSQL.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("reasonstore: applying schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, reason VisitReason) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO visit_reasons (id, call_id, reason, emergency, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		reason.ID, reason.CallID, reason.Reason, reason.Emergency, reason.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("reasonstore: saving visit reason %s: %w", reason.ID, err)
	}
	return nil
}

// RecentEmergencies returns the most recent emergency reasons, newest first.
func (s *PostgresStore) RecentEmergencies(ctx context.Context, limit int) ([]VisitReason, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, call_id, reason, emergency, recorded_at
		 FROM visit_reasons WHERE emergency ORDER BY recorded_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reasonstore: listing emergencies: %w", err)
	}
	defer rows.Close()

	var out []VisitReason
	for rows.Next() {
		var r VisitReason
		if err := rows.Scan(&r.ID, &r.CallID, &r.Reason, &r.Emergency, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("reasonstore: scanning visit reason: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reasonstore: listing emergencies: %w", err)
	}
	return out, nil
}
