package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/credentials"
	"github.com/agrimandi/auth-service/internal/users"
)

// sessionRepo is the storage interface consumed by Service.
type sessionRepo interface {
	Create(ctx context.Context, s *Session) error
	GetByTokenHash(ctx context.Context, hash string) (*Session, error)
	GetByRefreshToken(ctx context.Context, refresh string) (*Session, error)
	SoftDelete(ctx context.Context, id int64) error
	SoftDeleteAllForUser(ctx context.Context, userID int64) error
}

// Service issues and validates login sessions.
type Service struct {
	repo   sessionRepo
	tokens *TokenIssuer
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(repo sessionRepo, tokens *TokenIssuer, logger *zap.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, logger: logger, now: time.Now}
}

// Meta carries optional per-login request metadata.
type Meta struct {
	DeviceID   string
	BuyerOrgID int64
	IP         string
	UserAgent  string
}

// Issue mints a token pair and persists the session row. Single-device
// semantics: all prior active sessions for the user are soft-deleted first.
func (s *Service) Issue(ctx context.Context, u *users.User, meta Meta) (*TokenPair, error) {
	if err := s.repo.SoftDeleteAllForUser(ctx, u.ID); err != nil {
		return nil, apperr.Wrap("revoke prior sessions", err)
	}

	access, exp, err := s.tokens.IssueAccess(u.ID, u.Role, meta.DeviceID, meta.BuyerOrgID)
	if err != nil {
		return nil, apperr.Wrap("issue access token", err)
	}
	refresh, _, err := s.tokens.IssueRefresh(u.ID, u.Role)
	if err != nil {
		return nil, apperr.Wrap("issue refresh token", err)
	}

	row := &Session{
		UserID:       u.ID,
		TokenHash:    credentials.HashToken(access),
		RefreshToken: refresh,
		ExpiresAt:    exp,
	}
	if meta.IP != "" {
		row.IP = &meta.IP
	}
	if meta.UserAgent != "" {
		row.UserAgent = &meta.UserAgent
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, apperr.Wrap("persist session", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// Verify validates an access token: signature, expiry, and a live session
// row keyed by the token's SHA-256.
func (s *Service) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid or expired token")
	}
	row, err := s.repo.GetByTokenHash(ctx, credentials.HashToken(accessToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeUnauthorized, "session not found")
		}
		return nil, apperr.Wrap("lookup session", err)
	}
	if !row.Active(s.now()) {
		return nil, apperr.New(apperr.CodeUnauthorized, "session revoked or expired")
	}
	return claims, nil
}

// Refresh exchanges a live refresh token for a new pair. Single-generation
// rotation: the old session row is soft-deleted; its refresh token is dead.
func (s *Service) Refresh(ctx context.Context, refreshToken string, u *users.User, meta Meta) (*TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil || claims.Purpose != "refresh" {
		return nil, apperr.New(apperr.CodeTokenExpired, "invalid refresh token")
	}
	row, err := s.repo.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeTokenExpired, "refresh token not recognized")
		}
		return nil, apperr.Wrap("lookup refresh token", err)
	}
	if row.DeletedAt != nil {
		return nil, apperr.New(apperr.CodeTokenExpired, "refresh token already used")
	}
	if row.UserID != u.ID {
		return nil, apperr.New(apperr.CodeUnauthorized, "refresh token does not belong to this user")
	}
	if err := s.repo.SoftDelete(ctx, row.ID); err != nil {
		return nil, apperr.Wrap("retire refreshed session", err)
	}
	return s.Issue(ctx, u, meta)
}

// UserIDForRefresh parses a refresh token and returns its subject user id
// without touching storage. The façade uses it to load the user before
// calling Refresh.
func (s *Service) UserIDForRefresh(refreshToken string) (int64, error) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil || claims.Purpose != "refresh" {
		return 0, apperr.New(apperr.CodeTokenExpired, "invalid refresh token")
	}
	return claims.UserID, nil
}

// Logout retires the session carrying the given access token.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	row, err := s.repo.GetByTokenHash(ctx, credentials.HashToken(accessToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil // already gone
		}
		return apperr.Wrap("lookup session", err)
	}
	if err := s.repo.SoftDelete(ctx, row.ID); err != nil {
		return apperr.Wrap("retire session", err)
	}
	return nil
}

// RevokeAll retires every session for a user. Called on password reset.
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	if err := s.repo.SoftDeleteAllForUser(ctx, userID); err != nil {
		return apperr.Wrap("revoke sessions", err)
	}
	s.logger.Info("all sessions revoked", zap.Int64("user_id", userID))
	return nil
}

// Tokens exposes the issuer for purpose-bound tokens (agent pin_change).
func (s *Service) Tokens() *TokenIssuer { return s.tokens }
