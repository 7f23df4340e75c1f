// Package sqlite stores the saga journal in SQLite. Rows are never updated:
// every change of a saga appends a full snapshot, and the newest snapshot per
// order is its current state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS saga_journal (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id    TEXT    NOT NULL,
	step        TEXT    NOT NULL,
	state       TEXT    NOT NULL,
	resolved    INTEGER NOT NULL DEFAULT 0, -- 1 unless the saga is in flight
	trace_id    TEXT    NOT NULL DEFAULT '',
	span_id     TEXT    NOT NULL DEFAULT '',
	recorded_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_journal_order ON saga_journal(order_id, id);
`

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path with WAL enabled.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Append(ctx context.Context, e domain.JournalEntry) error {
	state, err := json.Marshal(e.State)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `INSERT INTO saga_journal (order_id, step, state, resolved, trace_id, span_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.OrderID.String(), e.Step, string(state), !e.State.InFlight(), e.TraceID, e.SpanID, e.RecordedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: append %s for %s: %w", e.Step, e.OrderID, err)
	}
	return nil
}

func (j *Journal) Unresolved(ctx context.Context) ([]domain.State, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT j.state FROM saga_journal j
		JOIN (SELECT order_id, MAX(id) AS id FROM saga_journal GROUP BY order_id) latest ON latest.id = j.id
		WHERE j.resolved = 0
		ORDER BY j.id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: unresolved sagas: %w", err)
	}
	defer rows.Close()

	var out []domain.State
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var st domain.State
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("sqlite: decode state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (j *Journal) History(ctx context.Context, orderID uuid.UUID) ([]domain.JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT step, state, trace_id, span_id, recorded_at
		FROM saga_journal WHERE order_id = ? ORDER BY id`, orderID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: history for %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []domain.JournalEntry
	for rows.Next() {
		var (
			e       = domain.JournalEntry{OrderID: orderID}
			raw, at string
		)
		if err := rows.Scan(&e.Step, &raw, &e.TraceID, &e.SpanID, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.State); err != nil {
			return nil, fmt.Errorf("sqlite: decode state: %w", err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("sqlite: parse time %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
