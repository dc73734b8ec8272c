package session

import "time"

// Session is a persisted login. TokenHash is the SHA-256 hex of the access
// token; the raw token is never stored. A row with a past expiry or non-nil
// DeletedAt is inactive.
type Session struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TokenHash    string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    time.Time  `json:"expires_at"`
	IP           *string    `json:"ip,omitempty"`
	UserAgent    *string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"-"`
}

// Active reports whether the session is usable at now.
func (s *Session) Active(now time.Time) bool {
	return s.DeletedAt == nil && s.ExpiresAt.After(now)
}

// PasswordResetToken is a single-use, bcrypt-hashed reset credential with a
// 1-hour expiry. Once UsedAt is set the row is spent.
type PasswordResetToken struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	TokenHash  string     `json:"-"`
	LookupHash string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TokenPair is the issued access/refresh pair returned to clients.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
