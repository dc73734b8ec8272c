// Package payments persists per-user payment details (UPI handles and bank
// accounts). At most one row per user is primary.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no payment row matches.
var ErrNotFound = errors.New("payment details not found")

// Type is the payment instrument kind.
type Type string

const (
	TypeUPI  Type = "UPI"
	TypeBank Type = "BANK"
)

// Details is one payment instrument owned by a user.
type Details struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Type        Type       `json:"type"`
	UPIID       *string    `json:"upi_id,omitempty"`
	BankAccount *string    `json:"bank_account,omitempty"`
	IFSC        *string    `json:"ifsc,omitempty"`
	BankName    *string    `json:"bank_name,omitempty"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	Primary     bool       `json:"primary"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Repository persists payment details.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a payment row. When d.Primary is set, any existing primary
// for the user is demoted in the same transaction so the at-most-one-primary
// invariant holds under concurrent writes.
func (r *Repository) Create(ctx context.Context, d *Details) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if d.Primary {
		if _, err := tx.Exec(ctx,
			`UPDATE payment_details SET is_primary = false WHERE user_id = $1 AND is_primary`, d.UserID,
		); err != nil {
			return fmt.Errorf("demote primary: %w", err)
		}
	}

	d.CreatedAt = time.Now().UTC()
	q := `
		INSERT INTO payment_details (user_id, type, upi_id, bank_account, ifsc, bank_name,
			verified, verified_at, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := tx.QueryRow(ctx, q,
		d.UserID, d.Type, d.UPIID, d.BankAccount, d.IFSC, d.BankName,
		d.Verified, d.VerifiedAt, d.Primary, d.CreatedAt,
	).Scan(&d.ID); err != nil {
		return fmt.Errorf("insert payment details: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MarkVerified sets the verified flag and timestamp.
func (r *Repository) MarkVerified(ctx context.Context, id int64) error {
	q := `UPDATE payment_details SET verified = true, verified_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, id, time.Now().UTC())
	return err
}

// ListByUser returns a user's payment rows, primary first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Details, error) {
	q := `
		SELECT id, user_id, type, upi_id, bank_account, ifsc, bank_name,
			verified, verified_at, is_primary, created_at
		FROM payment_details WHERE user_id = $1
		ORDER BY is_primary DESC, created_at`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query payment details: %w", err)
	}
	defer rows.Close()

	var out []*Details
	for rows.Next() {
		var d Details
		if err := rows.Scan(&d.ID, &d.UserID, &d.Type, &d.UPIID, &d.BankAccount, &d.IFSC,
			&d.BankName, &d.Verified, &d.VerifiedAt, &d.Primary, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment details: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// GetPrimary returns the user's primary payment row.
func (r *Repository) GetPrimary(ctx context.Context, userID int64) (*Details, error) {
	q := `
		SELECT id, user_id, type, upi_id, bank_account, ifsc, bank_name,
			verified, verified_at, is_primary, created_at
		FROM payment_details WHERE user_id = $1 AND is_primary`
	var d Details
	err := r.db.QueryRow(ctx, q, userID).Scan(&d.ID, &d.UserID, &d.Type, &d.UPIID,
		&d.BankAccount, &d.IFSC, &d.BankName, &d.Verified, &d.VerifiedAt, &d.Primary, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan primary payment: %w", err)
	}
	return &d, nil
}
