package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ledger-engine/pkg/utils"
)

// PostgresRepo persists audit entries in an insert-only table.
//
// Assumed schema:
//
//	CREATE TABLE audit_entries (
//	  id             BIGSERIAL PRIMARY KEY,
//	  at             TIMESTAMPTZ NOT NULL,
//	  actor          TEXT NOT NULL DEFAULT '',
//	  action         TEXT NOT NULL,
//	  lane           TEXT NOT NULL,
//	  event_id       TEXT NOT NULL,
//	  prior_state    TEXT NOT NULL,
//	  next_state     TEXT NOT NULL,
//	  amount         DOUBLE PRECISION NOT NULL,
//	  owner_id       TEXT NOT NULL DEFAULT '',
//	  policy_ok      BOOLEAN NOT NULL,
//	  policy_reasons JSONB NOT NULL DEFAULT '[]',
//	  sig            TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX audit_entries_event_id_idx ON audit_entries (event_id, id DESC);
//
// BIGSERIAL gives the strictly-increasing global id. The per-event retention
// window is enforced on read; the global stream itself is never trimmed.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Entry) (Entry, error) {
	reasons, err := json.Marshal(e.PolicyReasons)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: reasons marshal failed: %w", err)
	}

	const q = `
INSERT INTO audit_entries (
  at, actor, action, lane, event_id, prior_state, next_state, amount, owner_id, policy_ok, policy_reasons, sig
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
RETURNING id
`
	err = utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, q,
			e.At,
			e.Actor,
			e.Action,
			e.Lane,
			e.EventID,
			e.PriorState,
			e.NextState,
			e.Amount,
			e.Owner,
			e.PolicyOK,
			reasons,
			e.Sig,
		).Scan(&e.ID)
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *PostgresRepo) RecentGlobal(ctx context.Context, limit int) ([]Entry, error) {
	const q = `
SELECT id, at, actor, action, lane, event_id, prior_state, next_state, amount, owner_id, policy_ok, policy_reasons, sig
FROM audit_entries
ORDER BY id DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *PostgresRepo) ForEvent(ctx context.Context, eventID string) ([]Entry, error) {
	const q = `
SELECT id, at, actor, action, lane, event_id, prior_state, next_state, amount, owner_id, policy_ok, policy_reasons, sig
FROM audit_entries
WHERE event_id = $1
ORDER BY id DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, eventID, PerEventRetention)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var reasons []byte
		if err := rows.Scan(
			&e.ID,
			&e.At,
			&e.Actor,
			&e.Action,
			&e.Lane,
			&e.EventID,
			&e.PriorState,
			&e.NextState,
			&e.Amount,
			&e.Owner,
			&e.PolicyOK,
			&reasons,
			&e.Sig,
		); err != nil {
			return nil, err
		}
		if len(reasons) > 0 {
			if err := json.Unmarshal(reasons, &e.PolicyReasons); err != nil {
				return nil, fmt.Errorf("audit: reasons unmarshal failed: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
