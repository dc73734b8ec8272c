// Package session implements JWT issuance, the persisted session model with
// single-device semantics, and password-reset tokens.
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agrimandi/auth-service/internal/users"
)

// Token lifetimes. Agents carry shorter-lived tokens than the other actor
// classes.
const (
	AccessTTL        = 30 * 24 * time.Hour
	RefreshTTL       = 60 * 24 * time.Hour
	AgentAccessTTL   = 7 * 24 * time.Hour
	AgentRefreshTTL  = 30 * 24 * time.Hour
	PinChangeTTL     = 15 * time.Minute
	PurposePinChange = "pin_change"
)

// Claims are the JWT claims for a marketplace session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID     int64  `json:"userId"`
	UserType   string `json:"userType"`
	DeviceID   string `json:"deviceId,omitempty"`
	BuyerOrgID int64  `json:"buyerOrgId,omitempty"`
	Purpose    string `json:"purpose,omitempty"`
}

// TokenIssuer signs and verifies session JWTs with the configured HMAC secret.
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(secret, issuerURL string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuerURL}
}

// accessTTLFor returns the access-token lifetime for a role.
func accessTTLFor(role users.Role) time.Duration {
	if role == users.RoleAgent {
		return AgentAccessTTL
	}
	return AccessTTL
}

// refreshTTLFor returns the refresh-token lifetime for a role.
func refreshTTLFor(role users.Role) time.Duration {
	if role == users.RoleAgent {
		return AgentRefreshTTL
	}
	return RefreshTTL
}

// IssueAccess signs an access token for the user. deviceID and buyerOrgID
// are optional and included only when non-zero.
func (t *TokenIssuer) IssueAccess(userID int64, role users.Role, deviceID string, buyerOrgID int64) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(accessTTLFor(role))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		UserID:     userID,
		UserType:   string(role),
		DeviceID:   deviceID,
		BuyerOrgID: buyerOrgID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefresh signs a refresh token for the user.
func (t *TokenIssuer) IssueRefresh(userID int64, role users.Role) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(refreshTTLFor(role))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		UserID:   userID,
		UserType: string(role),
		Purpose:  "refresh",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

// IssuePurpose signs a short-lived purpose-bound token (e.g. the 15-minute
// pin_change token handed out after an agent's first login).
func (t *TokenIssuer) IssuePurpose(userID int64, role users.Role, purpose string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		UserID:   userID,
		UserType: string(role),
		Purpose:  purpose,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

// Parse validates a token's signature and expiry and returns its claims.
func (t *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// ParsePurpose validates a purpose-bound token and checks its purpose.
func (t *TokenIssuer) ParsePurpose(tokenStr, purpose string) (*Claims, error) {
	claims, err := t.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("token purpose %q, want %q", claims.Purpose, purpose)
	}
	return claims, nil
}
