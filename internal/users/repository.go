package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a user lookup finds no matching record.
var ErrNotFound = errors.New("user not found")

// ErrDuplicatePhone is returned when a signup reuses a registered phone.
var ErrDuplicatePhone = errors.New("phone already registered")

// ErrDuplicateEmail is returned when a signup reuses a registered email.
var ErrDuplicateEmail = errors.New("email already registered")

const userColumns = `id, phone, email, role, password_hash, pin_hash, temp_pin_hash,
	pin_expires_at, login_attempts, locked_until, is_active, language,
	last_login_at, created_at, updated_at, deleted_at`

// Repository provides CRUD operations for users against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user record. Sets ID, CreatedAt, UpdatedAt on u.
func (r *Repository) Create(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	q := `
		INSERT INTO users (phone, email, role, password_hash, pin_hash, temp_pin_hash,
			pin_expires_at, is_active, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	err := r.db.QueryRow(ctx, q,
		u.Phone, u.Email, u.Role, u.PasswordHash, u.PINHash, u.TempPINHash,
		u.PINExpiresAt, u.IsActive, u.Language, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return translateUnique(err)
	}
	return nil
}

// translateUnique maps 23505 violations onto the duplicate sentinels.
func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_phone_key":
			return ErrDuplicatePhone
		case "users_email_key":
			return ErrDuplicateEmail
		}
	}
	return fmt.Errorf("create user: %w", err)
}

// GetByID retrieves a live user by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetByPhone retrieves a live user by normalized phone.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1 AND deleted_at IS NULL`, phone)
}

// GetByEmail retrieves a live user by case-folded email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
}

// SetPasswordHash updates a user's password hash.
func (r *Repository) SetPasswordHash(ctx context.Context, userID int64, hash string) error {
	q := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, userID, hash, time.Now().UTC())
	return err
}

// SetPINHash stores the permanent PIN hash and clears any temporary PIN.
func (r *Repository) SetPINHash(ctx context.Context, userID int64, hash string) error {
	q := `UPDATE users SET pin_hash = $2, temp_pin_hash = NULL, pin_expires_at = NULL, updated_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, userID, hash, time.Now().UTC())
	return err
}

// SetTempPIN stores a temporary PIN hash with its expiry.
func (r *Repository) SetTempPIN(ctx context.Context, userID int64, hash string, expires time.Time) error {
	q := `UPDATE users SET temp_pin_hash = $2, pin_expires_at = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, userID, hash, expires, time.Now().UTC())
	return err
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, userID int64) error {
	now := time.Now().UTC()
	q := `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, userID, now)
	return err
}

// RecordLoginFailure increments the DB-resident failure counter and, at the
// threshold, sets locked_until. Returns the new attempt count and the
// lockout deadline when one was set. Used by the email/password flow.
func (r *Repository) RecordLoginFailure(ctx context.Context, userID int64) (int, *time.Time, error) {
	now := time.Now().UTC()
	var attempts int
	q := `UPDATE users SET login_attempts = login_attempts + 1, updated_at = $2 WHERE id = $1 RETURNING login_attempts`
	if err := r.db.QueryRow(ctx, q, userID, now).Scan(&attempts); err != nil {
		return 0, nil, fmt.Errorf("record login failure: %w", err)
	}
	if attempts < BuyerLoginThreshold {
		return attempts, nil, nil
	}
	until := now.Add(BuyerLockoutWindow)
	if _, err := r.db.Exec(ctx,
		`UPDATE users SET locked_until = $2, updated_at = $3 WHERE id = $1`, userID, until, now,
	); err != nil {
		return attempts, nil, fmt.Errorf("set lockout: %w", err)
	}
	return attempts, &until, nil
}

// ResetLoginFailures clears the DB-resident counter and lockout.
func (r *Repository) ResetLoginFailures(ctx context.Context, userID int64) error {
	q := `UPDATE users SET login_attempts = 0, locked_until = NULL, updated_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, userID, time.Now().UTC())
	return err
}

// SoftDelete marks the user deleted. Profile rows are owned by the user and
// become unreachable through the live lookups.
func (r *Repository) SoftDelete(ctx context.Context, userID int64) error {
	now := time.Now().UTC()
	q := `UPDATE users SET deleted_at = $2, is_active = false, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.Exec(ctx, q, userID, now)
	return err
}

// scanOne executes a single-row query and scans the result into a User.
func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&u.ID, &u.Phone, &u.Email, &u.Role, &u.PasswordHash, &u.PINHash, &u.TempPINHash,
		&u.PINExpiresAt, &u.LoginAttempts, &u.LockedUntil, &u.IsActive, &u.Language,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
