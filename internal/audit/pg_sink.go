package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSink appends entries to the audit_log table.
type PgSink struct {
	pool *pgxpool.Pool
}

func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (s *PgSink) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id          BIGSERIAL PRIMARY KEY,
			action      TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			actor       TEXT NOT NULL,
			tx_id       TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			detail      JSONB,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create audit_log table: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS audit_log_entity_idx ON audit_log (entity_type, entity_id)
	`)
	if err != nil {
		return fmt.Errorf("create audit_log index: %w", err)
	}
	return nil
}

func (s *PgSink) Record(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (action, entity_type, entity_id, actor, tx_id, occurred_at, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.Action, e.EntityType, e.EntityID, e.Actor, e.TxID, e.At, e.Detail)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
