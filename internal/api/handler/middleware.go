package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/users"
)

const (
	ctxClaims = "auth.claims"
	ctxToken  = "auth.token"
)

// Authenticated verifies the bearer token against the session store and
// parks the claims on the request context.
func Authenticated(sessions *session.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondError(c, logger, apperr.New(apperr.CodeUnauthorized, "missing bearer token"))
			c.Abort()
			return
		}
		claims, err := sessions.Verify(c.Request.Context(), token)
		if err != nil {
			respondError(c, logger, err)
			c.Abort()
			return
		}
		c.Set(ctxClaims, claims)
		c.Set(ctxToken, token)
		c.Next()
	}
}

// RequireRole rejects requests whose session carries none of the given
// roles. Must run after Authenticated.
func RequireRole(logger *zap.Logger, roles ...users.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims != nil {
			for _, r := range roles {
				if claims.UserType == string(r) {
					c.Next()
					return
				}
			}
		}
		respondError(c, logger, apperr.New(apperr.CodeUnauthorized, "insufficient permissions"))
		c.Abort()
	}
}

// ClaimsFrom returns the verified claims set by Authenticated, or nil.
func ClaimsFrom(c *gin.Context) *session.Claims {
	if v, ok := c.Get(ctxClaims); ok {
		if claims, ok := v.(*session.Claims); ok {
			return claims
		}
	}
	return nil
}

// TokenFrom returns the raw access token set by Authenticated.
func TokenFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxToken); ok {
		if t, ok := v.(string); ok {
			return t
		}
	}
	return ""
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// sessionMeta builds the per-login metadata from the request.
func sessionMeta(c *gin.Context, deviceID string) session.Meta {
	return session.Meta{
		DeviceID:  deviceID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// RequestLogger logs each request with zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
