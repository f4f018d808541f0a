package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/sentinel"
	txcontext "foodlink/pkg/platform/tx"
)

// PostgresStore persists donations in PostgreSQL.
// This store is pure I/O; transition rules belong in the services.
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

const donationColumns = `id, owner_id, status, title, description, food_types, allergens, quantity,
	address, city, state, latitude, longitude, expires_at, priority, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *models.Donation) error {
	query := `INSERT INTO donations (` + donationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID), uuid.UUID(d.OwnerID), string(d.Status), d.Title, d.Description,
		pq.Array(d.FoodTypes), pq.Array(d.Allergens), d.Quantity,
		d.Address, d.City, d.State, d.Latitude, d.Longitude,
		d.ExpiresAt, string(d.Priority), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert donation: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

// Update rewrites the descriptive fields. Status, priority and ownership are
// deliberately absent from the SET list.
func (s *PostgresStore) Update(ctx context.Context, d *models.Donation) error {
	query := `
		UPDATE donations SET
			title = $2, description = $3, food_types = $4, allergens = $5, quantity = $6,
			address = $7, city = $8, state = $9, latitude = $10, longitude = $11,
			expires_at = $12, updated_at = $13
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID), d.Title, d.Description, pq.Array(d.FoodTypes), pq.Array(d.Allergens),
		d.Quantity, d.Address, d.City, d.State, d.Latitude, d.Longitude, d.ExpiresAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update donation: %w", err)
	}
	return expectOneRow(res, "update donation")
}

// DeleteAvailable removes the donation only while it is available; any other
// status reports applied=false. Claim rows referencing it block the delete
// with sentinel.ErrConflict.
func (s *PostgresStore) DeleteAvailable(ctx context.Context, id domain.DonationID) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM donations WHERE id = $1 AND status = 'available'`, uuid.UUID(id))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, fmt.Errorf("delete donation: %w", sentinel.ErrConflict)
		}
		return false, fmt.Errorf("delete donation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete donation rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}
	return false, s.existsOrNotFound(ctx, id)
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.DonationID) (*models.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1`
	d, err := scanDonation(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find donation: %w", err)
	}
	return d, nil
}

// FindByIDs hydrates a candidate set in one round trip. Missing ids are
// simply absent from the result.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []domain.DonationID) ([]*models.Donation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = ANY($1::uuid[])`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find donations by ids: %w", err)
	}
	defer rows.Close()
	return scanDonations(rows)
}

func (s *PostgresStore) ListIDs(ctx context.Context) ([]domain.DonationID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT id FROM donations`)
	if err != nil {
		return nil, fmt.Errorf("list donation ids: %w", err)
	}
	defer rows.Close()

	var ids []domain.DonationID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan donation id: %w", err)
		}
		ids = append(ids, domain.DonationID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donation ids: %w", err)
	}
	return ids, nil
}

// TransitionStatus is the optimistic conditional write every status change
// goes through: it applies only if the row still holds the expected status.
func (s *PostgresStore) TransitionStatus(ctx context.Context, id domain.DonationID, from, to models.Status, now time.Time) (bool, error) {
	query := `UPDATE donations SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(id), string(from), string(to), now)
	if err != nil {
		return false, fmt.Errorf("transition donation status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition donation rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}
	return false, s.existsOrNotFound(ctx, id)
}

func (s *PostgresStore) existsOrNotFound(ctx context.Context, id domain.DonationID) error {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM donations WHERE id = $1)`, uuid.UUID(id)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check donation exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Donation, error) {
	query := `SELECT ` + donationColumns + `
		FROM donations
		WHERE status IN ('available', 'claimed') AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`
	rows, err := s.execer(ctx).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue donations: %w", err)
	}
	defer rows.Close()
	return scanDonations(rows)
}

type donationRow interface {
	Scan(dest ...any) error
}

func scanDonation(row donationRow) (*models.Donation, error) {
	var (
		d                 models.Donation
		id, owner         uuid.UUID
		status, priority  string
		foodTypes, allerg pq.StringArray
	)
	if err := row.Scan(&id, &owner, &status, &d.Title, &d.Description, &foodTypes, &allerg, &d.Quantity,
		&d.Address, &d.City, &d.State, &d.Latitude, &d.Longitude, &d.ExpiresAt, &priority,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = domain.DonationID(id)
	d.OwnerID = domain.UserID(owner)
	d.Status = models.Status(status)
	d.Priority = models.Priority(priority)
	d.FoodTypes = []string(foodTypes)
	d.Allergens = []string(allerg)
	return &d, nil
}

func scanDonations(rows *sql.Rows) ([]*models.Donation, error) {
	var out []*models.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donations: %w", err)
	}
	return out, nil
}

func expectOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
