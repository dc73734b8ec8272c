package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/buyer"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/team"
)

// BuyerHandler exposes buyer registration, login, and password recovery.
// Finalizing a registration also seeds the organization's founding admin
// membership.
type BuyerHandler struct {
	svc      *buyer.Service
	team     *team.Service
	sessions *session.Service
	logger   *zap.Logger
}

// NewBuyerHandler creates a BuyerHandler.
func NewBuyerHandler(svc *buyer.Service, teamSvc *team.Service, sessions *session.Service, logger *zap.Logger) *BuyerHandler {
	return &BuyerHandler{svc: svc, team: teamSvc, sessions: sessions, logger: logger}
}

// Register mounts the buyer routes.
func (h *BuyerHandler) Register(rg *gin.RouterGroup) {
	b := rg.Group("/buyer")
	{
		b.POST("/register", h.RegisterBuyer)
		b.POST("/verify-otp", h.VerifyBuyerOtp)
		b.POST("/login", h.Login)
		b.POST("/forgot-password", h.ForgotPassword)
		b.POST("/reset-password", h.ResetPassword)
	}
	b.POST("/logout", Authenticated(h.sessions, h.logger), h.Logout)
}

type registerBuyerRequest struct {
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	MobileNumber string `json:"mobile_number" binding:"required"`
	ContactName  string `json:"contact_name" binding:"required"`
	BusinessName string `json:"business_name" binding:"required"`
	BusinessType string `json:"business_type" binding:"required"`
	GSTNumber    string `json:"gst_number"`
	Language     string `json:"language"`
}

// RegisterBuyer handles POST /buyer/register.
func (h *BuyerHandler) RegisterBuyer(c *gin.Context) {
	var req registerBuyerRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.Register(c.Request.Context(), buyer.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		Phone:        req.MobileNumber,
		ContactName:  req.ContactName,
		BusinessName: req.BusinessName,
		BusinessType: buyer.BusinessType(req.BusinessType),
		GSTNumber:    req.GSTNumber,
		Language:     req.Language,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	recordOTPIssued(buyer.OTPScope)
	respondOK(c, "OTP sent, verify to complete registration", gin.H{
		"phone":      res.Phone,
		"expires_in": res.ExpiresIn,
	})
}

type verifyBuyerOtpRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	OTP          string `json:"otp" binding:"required"`
	Address      string `json:"address" binding:"required"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
	DeviceID     string `json:"device_id"`
}

// VerifyBuyerOtp handles POST /buyer/verify-otp. On success the creator
// becomes the organization's first active admin.
func (h *BuyerHandler) VerifyBuyerOtp(c *gin.Context) {
	var req verifyBuyerOtpRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	addr := buyer.Address{Line: req.Address, City: req.City, State: req.State, Pincode: req.Pincode}
	res, err := h.svc.VerifyOtp(c.Request.Context(), req.MobileNumber, req.OTP, addr, sessionMeta(c, req.DeviceID))
	recordOTPVerified(buyer.OTPScope, err == nil)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	email := ""
	if res.User.Email != nil {
		email = *res.User.Email
	}
	if _, err := h.team.AddFoundingAdmin(c.Request.Context(), res.Profile.ID, res.User.ID, res.Profile.ContactName, email); err != nil {
		// The account is committed; a missing founding membership is
		// repairable and must not strand the registration.
		h.logger.Error("seed founding admin membership",
			zap.Int64("org_id", res.Profile.ID),
			zap.Int64("user_id", res.User.ID),
			zap.Error(err))
	}

	respondOK(c, "registration complete", gin.H{
		"user":    res.User,
		"profile": res.Profile,
		"tokens":  res.Tokens,
	})
}

type buyerLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id"`
}

// Login handles POST /buyer/login.
func (h *BuyerHandler) Login(c *gin.Context) {
	var req buyerLoginRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, sessionMeta(c, req.DeviceID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "login successful", gin.H{
		"user":    res.User,
		"profile": res.Profile,
		"tokens":  res.Tokens,
	})
}

// Logout handles POST /buyer/logout.
func (h *BuyerHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), TokenFrom(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "logged out", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ForgotPassword handles POST /buyer/forgot-password. The response never
// reveals whether the email is registered.
func (h *BuyerHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "if the email is registered, a reset code has been sent", nil)
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ResetPassword handles POST /buyer/reset-password.
func (h *BuyerHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "password updated, log in with your new password", nil)
}
