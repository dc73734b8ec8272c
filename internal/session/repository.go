package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no matching session or token row exists.
var ErrNotFound = errors.New("session not found")

// Repository persists sessions and password-reset tokens.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a session row.
func (r *Repository) Create(ctx context.Context, s *Session) error {
	s.CreatedAt = time.Now().UTC()
	q := `
		INSERT INTO sessions (user_id, token_hash, refresh_token, expires_at, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.db.QueryRow(ctx, q,
		s.UserID, s.TokenHash, s.RefreshToken, s.ExpiresAt, s.IP, s.UserAgent, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetByTokenHash looks up a session by the SHA-256 of its access token,
// including inactive rows — the service decides validity.
func (r *Repository) GetByTokenHash(ctx context.Context, hash string) (*Session, error) {
	q := `
		SELECT id, user_id, token_hash, refresh_token, expires_at, ip, user_agent, created_at, deleted_at
		FROM sessions WHERE token_hash = $1`
	return r.scanOne(ctx, q, hash)
}

// GetByRefreshToken looks up a session by its refresh token.
func (r *Repository) GetByRefreshToken(ctx context.Context, refresh string) (*Session, error) {
	q := `
		SELECT id, user_id, token_hash, refresh_token, expires_at, ip, user_agent, created_at, deleted_at
		FROM sessions WHERE refresh_token = $1`
	return r.scanOne(ctx, q, refresh)
}

// SoftDelete marks a single session inactive.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	q := `UPDATE sessions SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.Exec(ctx, q, id, time.Now().UTC())
	return err
}

// SoftDeleteAllForUser marks every active session for the user inactive.
// Used for single-device login and password reset.
func (r *Repository) SoftDeleteAllForUser(ctx context.Context, userID int64) error {
	q := `UPDATE sessions SET deleted_at = $2 WHERE user_id = $1 AND deleted_at IS NULL`
	_, err := r.db.Exec(ctx, q, userID, time.Now().UTC())
	return err
}

func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Session, error) {
	var s Session
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.RefreshToken, &s.ExpiresAt,
		&s.IP, &s.UserAgent, &s.CreatedAt, &s.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// ─── Password reset tokens ──────────────────────────────────────────────────

// CreateResetToken stores a reset token's bcrypt hash plus a SHA-256 lookup
// column for O(1) retrieval.
func (r *Repository) CreateResetToken(ctx context.Context, t *PasswordResetToken) error {
	t.CreatedAt = time.Now().UTC()
	q := `
		INSERT INTO password_reset_tokens (user_id, token_hash, lookup_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := r.db.QueryRow(ctx, q, t.UserID, t.TokenHash, t.LookupHash, t.ExpiresAt, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	return nil
}

// GetResetTokenByLookup finds an unspent, unexpired reset token by its
// lookup hash.
func (r *Repository) GetResetTokenByLookup(ctx context.Context, lookupHash string) (*PasswordResetToken, error) {
	var t PasswordResetToken
	q := `
		SELECT id, user_id, token_hash, lookup_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE lookup_hash = $1 AND used_at IS NULL AND expires_at > now()`
	err := r.db.QueryRow(ctx, q, lookupHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.LookupHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan reset token: %w", err)
	}
	return &t, nil
}

// MarkResetTokenUsed spends the token. Returns ErrNotFound if it was already
// spent — the UPDATE is the serialization point for racing resets.
func (r *Repository) MarkResetTokenUsed(ctx context.Context, id int64) error {
	q := `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`
	tag, err := r.db.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark reset token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
