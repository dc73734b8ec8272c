package buyer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrimandi/auth-service/internal/users"
)

// ErrNotFound is returned when a buyer profile lookup finds nothing.
var ErrNotFound = errors.New("buyer profile not found")

// Repository persists buyer profiles.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, user_id, business_name, business_type, gst_number,
	contact_name, address, city, state, pincode, created_at, updated_at`

// CreateAccount finalizes a verified registration: the User row and its
// BuyerProfile are inserted in one transaction so neither exists without the
// other.
func (r *Repository) CreateAccount(ctx context.Context, u *users.User, p *Profile) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	err = tx.QueryRow(ctx, `
		INSERT INTO users (phone, email, role, password_hash, is_active, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		u.Phone, u.Email, u.Role, u.PasswordHash, u.IsActive, u.Language, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return translateUnique(err)
	}

	p.UserID = u.ID
	p.CreatedAt = now
	p.UpdatedAt = now
	err = tx.QueryRow(ctx, `
		INSERT INTO buyer_profiles (user_id, business_name, business_type, gst_number,
			contact_name, address, city, state, pincode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		p.UserID, p.BusinessName, p.BusinessType, p.GSTNumber,
		p.ContactName, p.Address, p.City, p.State, p.Pincode, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert buyer profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_phone_key":
			return users.ErrDuplicatePhone
		case "users_email_key":
			return users.ErrDuplicateEmail
		}
	}
	return fmt.Errorf("insert buyer user: %w", err)
}

// GetProfileByUserID retrieves the profile owned by a user.
func (r *Repository) GetProfileByUserID(ctx context.Context, userID int64) (*Profile, error) {
	return r.scanOne(ctx, `SELECT `+profileColumns+` FROM buyer_profiles WHERE user_id = $1`, userID)
}

// GetProfileByID retrieves a profile (organization) by its own id.
func (r *Repository) GetProfileByID(ctx context.Context, id int64) (*Profile, error) {
	return r.scanOne(ctx, `SELECT `+profileColumns+` FROM buyer_profiles WHERE id = $1`, id)
}

func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&p.ID, &p.UserID, &p.BusinessName, &p.BusinessType, &p.GSTNumber,
		&p.ContactName, &p.Address, &p.City, &p.State, &p.Pincode, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan buyer profile: %w", err)
	}
	return &p, nil
}
