package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"foodlink/internal/outbox"
	"foodlink/pkg/platform/sentinel"
	txcontext "foodlink/pkg/platform/tx"
)

// PostgresStore implements the transactional outbox. Append joins the
// caller's transaction so an entry exists if and only if its write committed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, e *outbox.Entry) error {
	query := `
		INSERT INTO outbox (id, kind, aggregate_id, payload, status, attempts, last_error, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		e.ID, string(e.Kind), e.AggregateID, e.Payload, string(e.Status),
		e.Attempts, e.LastError, e.NextAttemptAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Lease pushes up to limit due entries to until in one statement and returns
// them. Rows another worker is leasing at the same moment are skipped.
func (s *PostgresStore) Lease(ctx context.Context, now, until time.Time, limit int) ([]*outbox.Entry, error) {
	query := `
		UPDATE outbox SET next_attempt_at = $2
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at, created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, aggregate_id, payload, status, attempts, last_error, next_attempt_at, created_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, now, until, limit)
	if err != nil {
		return nil, fmt.Errorf("lease due outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*outbox.Entry
	for rows.Next() {
		var (
			e            outbox.Entry
			kind, status string
		)
		if err := rows.Scan(&e.ID, &kind, &e.AggregateID, &e.Payload, &status,
			&e.Attempts, &e.LastError, &e.NextAttemptAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Kind = outbox.Kind(kind)
		e.Status = outbox.Status(status)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	// RETURNING carries no order
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

func (s *PostgresStore) MarkDone(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE outbox SET status = 'done', processed_at = $2 WHERE id = $1 AND status = 'pending'`, id, now)
	if err != nil {
		return fmt.Errorf("mark outbox entry done: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, f outbox.Failure) error {
	status := outbox.StatusPending
	if f.Dead {
		status = outbox.StatusDead
	}
	query := `
		UPDATE outbox SET status = $2, attempts = $3, last_error = $4, next_attempt_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, id, string(status), f.Attempts, f.Error, f.NextAttemptAt)
	if err != nil {
		return fmt.Errorf("mark outbox entry failed: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
