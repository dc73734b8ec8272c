// Package users holds the core User entity shared by every actor class and
// its PostgreSQL repository.
package users

import "time"

// Role is the closed set of principal actor classes.
type Role string

const (
	RoleFarmer Role = "FARMER"
	RoleBuyer  Role = "BUYER"
	RoleHauler Role = "HAULER"
	RoleAgent  Role = "AGENT"
	RoleAdmin  Role = "ADMIN"
)

// BuyerLoginThreshold and BuyerLockoutWindow govern the database-resident
// failure counter used for email/password logins. The phone flows use the
// KV-resident counters instead; the two are independent.
const (
	BuyerLoginThreshold = 5
	BuyerLockoutWindow  = 30 * time.Minute
)

// User is an account record. Phone is normalized and unique; email is
// case-folded and unique when present. A non-nil LockedUntil in the future
// makes the record unusable for login regardless of credential correctness.
type User struct {
	ID            int64      `json:"id"`
	Phone         string     `json:"phone"`
	Email         *string    `json:"email,omitempty"`
	Role          Role       `json:"role"`
	PasswordHash  *string    `json:"-"`
	PINHash       *string    `json:"-"`
	TempPINHash   *string    `json:"-"`
	PINExpiresAt  *time.Time `json:"-"`
	LoginAttempts int        `json:"-"`
	LockedUntil   *time.Time `json:"-"`
	IsActive      bool       `json:"is_active"`
	Language      string     `json:"language"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"-"`
}

// Locked reports whether the row-level lockout is active at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
