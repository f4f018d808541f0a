package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"foodlink/internal/claim/models"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/sentinel"
	txcontext "foodlink/pkg/platform/tx"
)

// PostgresStore persists claims in PostgreSQL. The partial unique index
// claims_one_active_per_donation is what makes concurrent claims exclusive.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const claimColumns = `id, organization_id, donation_id, delivery_mode, code_hash,
	buffer_expires_at, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Claim) error {
	query := `INSERT INTO claims (` + claimColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID), uuid.UUID(c.OrganizationID), uuid.UUID(c.DonationID),
		string(c.DeliveryMode), c.CodeHash, c.BufferExpiresAt, string(c.Status),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("insert claim: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ClaimID) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`
	c, err := scanClaim(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find claim: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindPendingByDonation(ctx context.Context, donationID domain.DonationID) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE donation_id = $1 AND status = 'pending'`
	c, err := scanClaim(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(donationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pending claim: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) HasClaims(ctx context.Context, donationID domain.DonationID) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM claims WHERE donation_id = $1)`, uuid.UUID(donationID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check donation claims: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListByOrganization(ctx context.Context, org domain.OrganizationID, status *models.Status) ([]*models.Claim, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != nil {
		query := `SELECT ` + claimColumns + ` FROM claims
			WHERE organization_id = $1 AND status = $2
			ORDER BY created_at DESC, id`
		rows, err = s.execer(ctx).QueryContext(ctx, query, uuid.UUID(org), string(*status))
	} else {
		query := `SELECT ` + claimColumns + ` FROM claims
			WHERE organization_id = $1
			ORDER BY created_at DESC, id`
		rows, err = s.execer(ctx).QueryContext(ctx, query, uuid.UUID(org))
	}
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()
	out, err := scanClaims(rows)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.Claim{}
	}
	return out, nil
}

// TransitionStatus applies only if the claim still holds the expected status.
func (s *PostgresStore) TransitionStatus(ctx context.Context, id domain.ClaimID, from, to models.Status, now time.Time) (bool, error) {
	query := `UPDATE claims SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(id), string(from), string(to), now)
	if err != nil {
		return false, fmt.Errorf("transition claim status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition claim rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, uuid.UUID(id)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check claim exists: %w", err)
	}
	if !exists {
		return false, sentinel.ErrNotFound
	}
	return false, nil
}

func (s *PostgresStore) ListTimedOut(ctx context.Context, now time.Time, limit int) ([]*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE status = 'pending' AND buffer_expires_at < $1
		ORDER BY buffer_expires_at
		LIMIT $2`
	rows, err := s.execer(ctx).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list timed out claims: %w", err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

func (s *PostgresStore) ExpirePendingForDonation(ctx context.Context, donationID domain.DonationID, now time.Time) ([]*models.Claim, error) {
	query := `UPDATE claims SET status = 'expired', updated_at = $2
		WHERE donation_id = $1 AND status = 'pending'
		RETURNING ` + claimColumns
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(donationID), now)
	if err != nil {
		return nil, fmt.Errorf("expire pending claims: %w", err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

type claimRow interface {
	Scan(dest ...any) error
}

func scanClaim(row claimRow) (*models.Claim, error) {
	var (
		c                    models.Claim
		id, org, donation    uuid.UUID
		deliveryMode, status string
	)
	if err := row.Scan(&id, &org, &donation, &deliveryMode, &c.CodeHash,
		&c.BufferExpiresAt, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = domain.ClaimID(id)
	c.OrganizationID = domain.OrganizationID(org)
	c.DonationID = domain.DonationID(donation)
	c.DeliveryMode = models.DeliveryMode(deliveryMode)
	c.Status = models.Status(status)
	return &c, nil
}

func scanClaims(rows *sql.Rows) ([]*models.Claim, error) {
	var out []*models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return out, nil
}
