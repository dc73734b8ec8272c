package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/farmer"
	"github.com/agrimandi/auth-service/internal/payments"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/users"
)

// FarmerHandler exposes the farmer onboarding and login flows.
type FarmerHandler struct {
	svc      *farmer.Service
	sessions *session.Service
	logger   *zap.Logger
}

// NewFarmerHandler creates a FarmerHandler.
func NewFarmerHandler(svc *farmer.Service, sessions *session.Service, logger *zap.Logger) *FarmerHandler {
	return &FarmerHandler{svc: svc, sessions: sessions, logger: logger}
}

// Register mounts the farmer routes.
func (h *FarmerHandler) Register(rg *gin.RouterGroup) {
	f := rg.Group("/farmer")
	{
		f.POST("/otp/request", h.RequestOtp)
		f.POST("/account", h.CreateAccount)
		f.POST("/login/otp/request", h.RequestLoginOtp)
		f.POST("/login/otp/verify", h.VerifyLoginOtp)
		f.POST("/login/pin", h.LoginWithPin)
	}
	auth := f.Group("", Authenticated(h.sessions, h.logger), RequireRole(h.logger, users.RoleFarmer))
	{
		auth.GET("/profile", h.GetProfile)
		auth.POST("/profile", h.SaveProfile)
		auth.POST("/farm", h.SaveFarmProfile)
		auth.POST("/payment", h.AddPaymentDetails)
		auth.POST("/upi/verify", h.VerifyUpi)
		auth.POST("/pin", h.SetPin)
	}
}

type phoneRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
}

// RequestOtp handles POST /farmer/otp/request for signups.
func (h *FarmerHandler) RequestOtp(c *gin.Context) {
	var req phoneRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.RequestSignupOTP(c.Request.Context(), req.MobileNumber)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	recordOTPIssued(farmer.OTPScope)
	respondOK(c, "OTP sent", gin.H{"expires_in": res.ExpiresIn})
}

// RequestLoginOtp handles POST /farmer/login/otp/request.
func (h *FarmerHandler) RequestLoginOtp(c *gin.Context) {
	var req phoneRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.RequestLoginOTP(c.Request.Context(), req.MobileNumber)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	recordOTPIssued(farmer.OTPScope)
	respondOK(c, "OTP sent", gin.H{"expires_in": res.ExpiresIn})
}

type createAccountRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	OTP          string `json:"otp" binding:"required"`
	Language     string `json:"language"`
}

// CreateAccount handles POST /farmer/account.
func (h *FarmerHandler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.CreateAccount(c.Request.Context(), req.MobileNumber, req.OTP, req.Language)
	recordOTPVerified(farmer.OTPScope, err == nil)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "account created", gin.H{"user": res.User, "tokens": res.Tokens})
}

type otpLoginRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	OTP          string `json:"otp" binding:"required"`
	DeviceID     string `json:"device_id"`
}

// VerifyLoginOtp handles POST /farmer/login/otp/verify.
func (h *FarmerHandler) VerifyLoginOtp(c *gin.Context) {
	var req otpLoginRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.VerifyLoginOTP(c.Request.Context(), req.MobileNumber, req.OTP, sessionMeta(c, req.DeviceID))
	recordOTPVerified(farmer.OTPScope, err == nil)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "login successful", gin.H{"user": res.User, "tokens": res.Tokens})
}

type pinLoginRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	PIN          string `json:"pin" binding:"required"`
	DeviceID     string `json:"device_id"`
}

// LoginWithPin handles POST /farmer/login/pin.
func (h *FarmerHandler) LoginWithPin(c *gin.Context) {
	var req pinLoginRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.LoginWithPin(c.Request.Context(), req.MobileNumber, req.PIN, sessionMeta(c, req.DeviceID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "login successful", gin.H{"user": res.User, "tokens": res.Tokens})
}

type farmerProfileRequest struct {
	FullName string  `json:"full_name" binding:"required"`
	District string  `json:"district" binding:"required"`
	State    string  `json:"state" binding:"required"`
	Village  *string `json:"village"`
}

// SaveProfile handles POST /farmer/profile.
func (h *FarmerHandler) SaveProfile(c *gin.Context) {
	var req farmerProfileRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	claims := ClaimsFrom(c)
	p, err := h.svc.UpdateProfile(c.Request.Context(), claims.UserID, req.FullName, req.District, req.State, req.Village)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "profile saved", gin.H{"profile": p})
}

type farmProfileRequest struct {
	FarmSize     string   `json:"farm_size" binding:"required"`
	FarmingTypes []string `json:"farming_types"`
	MainCrops    []string `json:"main_crops"`
}

// SaveFarmProfile handles POST /farmer/farm.
func (h *FarmerHandler) SaveFarmProfile(c *gin.Context) {
	var req farmProfileRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	claims := ClaimsFrom(c)
	err := h.svc.SaveFarmProfile(c.Request.Context(), claims.UserID, farmer.FarmSize(req.FarmSize), req.FarmingTypes, req.MainCrops)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "farm profile saved", nil)
}

type paymentDetailsRequest struct {
	Type        string `json:"type" binding:"required"`
	UPIID       string `json:"upi_id"`
	BankAccount string `json:"bank_account"`
	IFSC        string `json:"ifsc"`
}

// AddPaymentDetails handles POST /farmer/payment.
func (h *FarmerHandler) AddPaymentDetails(c *gin.Context) {
	var req paymentDetailsRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	claims := ClaimsFrom(c)
	d, err := h.svc.AddPaymentDetails(c.Request.Context(), claims.UserID,
		payments.Type(req.Type), req.UPIID, req.BankAccount, req.IFSC)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "payment details saved", gin.H{"payment": d})
}

type verifyUpiRequest struct {
	UPIID string `json:"upi_id" binding:"required"`
}

// VerifyUpi handles POST /farmer/upi/verify.
func (h *FarmerHandler) VerifyUpi(c *gin.Context) {
	var req verifyUpiRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	claims := ClaimsFrom(c)
	if err := h.svc.VerifyUPI(c.Request.Context(), claims.UserID, req.UPIID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "UPI verified", nil)
}

type setPinRequest struct {
	PIN string `json:"pin" binding:"required"`
}

// SetPin handles POST /farmer/pin.
func (h *FarmerHandler) SetPin(c *gin.Context) {
	var req setPinRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	claims := ClaimsFrom(c)
	if err := h.svc.SetPin(c.Request.Context(), claims.UserID, req.PIN); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "PIN set", nil)
}

// GetProfile handles GET /farmer/profile.
func (h *FarmerHandler) GetProfile(c *gin.Context) {
	claims := ClaimsFrom(c)
	p, err := h.svc.GetProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "profile", gin.H{"profile": p})
}
