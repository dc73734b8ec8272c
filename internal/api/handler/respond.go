// Package handler exposes the RPC surface over HTTP with gin: request
// binding, the shared response envelope, auth middleware, and the
// Prometheus and rate-limit middlewares.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/agrimandi/auth-service/internal/apperr"
)

// respondOK writes the success envelope with optional extra fields.
func respondOK(c *gin.Context, message string, fields gin.H) {
	respondStatus(c, http.StatusOK, message, fields)
}

func respondStatus(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"success": true, "message": message}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// respondError translates a domain error into the failure envelope. The
// machine code, canonical status, and any attempt/lockout annotations ride
// along; internal faults are logged and masked.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	ae := apperr.As(err)
	if ae.Status == codes.Internal {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		ae = apperr.New(apperr.CodeInternal, "internal error")
	}
	if ae.Code == apperr.CodeAccountLocked {
		recordLockout(c.FullPath())
	}

	body := gin.H{
		"success": false,
		"code":    ae.Code,
		"status":  ae.Status.String(),
		"message": ae.Message,
	}
	if ae.RemainingAttempts != nil {
		body["remaining_attempts"] = *ae.RemainingAttempts
	}
	if ae.LockedUntil != nil {
		body["locked_until"] = ae.LockedUntil.UTC().Format(time.RFC3339)
	}
	if len(ae.Rules) > 0 {
		body["failed_rules"] = ae.Rules
	}
	c.JSON(apperr.HTTPStatus(ae.Status), body)
}

// bindJSON binds the request body, translating binding failures into the
// envelope. Returns false when the request was already answered.
func bindJSON(c *gin.Context, logger *zap.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, logger, apperr.New(apperr.CodeInvalidArgument, err.Error()))
		return false
	}
	return true
}
