package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/buyer"
	"github.com/agrimandi/auth-service/internal/farmer"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/users"
)

// SessionHandler exposes the role-agnostic auth surface: a unified login
// that dispatches on credential shape, token refresh, verification, and
// logout.
type SessionHandler struct {
	svc     *session.Service
	users   *users.Repository
	buyers  *buyer.Service
	farmers *farmer.Service
	logger  *zap.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc *session.Service, userRepo *users.Repository, buyers *buyer.Service, farmers *farmer.Service, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, users: userRepo, buyers: buyers, farmers: farmers, logger: logger}
}

// Register mounts the auth routes.
func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	{
		a.POST("/login", h.Login)
		a.POST("/refresh", h.Refresh)
		a.POST("/verify", h.VerifyToken)
	}
	a.POST("/logout", Authenticated(h.svc, h.logger), h.Logout)
}

type unifiedLoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	MobileNumber string `json:"mobile_number"`
	PIN          string `json:"pin"`
	DeviceID     string `json:"device_id"`
}

// Login handles POST /auth/login. Email plus password routes to the buyer
// flow, mobile number plus PIN to the farmer flow.
func (h *SessionHandler) Login(c *gin.Context) {
	var req unifiedLoginRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	meta := sessionMeta(c, req.DeviceID)
	switch {
	case req.Email != "" && req.Password != "":
		res, err := h.buyers.Login(c.Request.Context(), req.Email, req.Password, meta)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		respondOK(c, "login successful", gin.H{"user": res.User, "profile": res.Profile, "tokens": res.Tokens})
	case req.MobileNumber != "" && req.PIN != "":
		res, err := h.farmers.LoginWithPin(c.Request.Context(), req.MobileNumber, req.PIN, meta)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		respondOK(c, "login successful", gin.H{"user": res.User, "tokens": res.Tokens})
	default:
		respondError(c, h.logger, apperr.New(apperr.CodeInvalidArgument,
			"provide email and password, or mobile_number and pin"))
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	DeviceID     string `json:"device_id"`
}

// Refresh handles POST /auth/refresh. The old refresh token is rotated out.
func (h *SessionHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	userID, err := h.svc.UserIDForRefresh(req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	u, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, apperr.New(apperr.CodeTokenExpired, "invalid or expired refresh token"))
		return
	}
	tokens, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken, u, sessionMeta(c, req.DeviceID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "token refreshed", gin.H{"tokens": tokens})
}

type verifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyToken handles POST /auth/verify for downstream services.
func (h *SessionHandler) VerifyToken(c *gin.Context) {
	var req verifyTokenRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	claims, err := h.svc.Verify(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "token valid", gin.H{
		"user_id":      claims.UserID,
		"user_type":    claims.UserType,
		"buyer_org_id": claims.BuyerOrgID,
		"expires_at":   claims.ExpiresAt,
	})
}

// Logout handles POST /auth/logout.
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), TokenFrom(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "logged out", nil)
}
