package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/hauler"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/users"
	"github.com/agrimandi/auth-service/internal/validate"
)

// HaulerHandler exposes the five-step hauler registration wizard, the admin
// verification queue, and the hauler's own profile. Wizard steps carry the
// registration token in the body because the applicant has no session yet.
type HaulerHandler struct {
	svc      *hauler.Service
	sessions *session.Service
	logger   *zap.Logger
}

// NewHaulerHandler creates a HaulerHandler.
func NewHaulerHandler(svc *hauler.Service, sessions *session.Service, logger *zap.Logger) *HaulerHandler {
	return &HaulerHandler{svc: svc, sessions: sessions, logger: logger}
}

// Register mounts the hauler routes.
func (h *HaulerHandler) Register(rg *gin.RouterGroup) {
	hr := rg.Group("/hauler")
	{
		hr.GET("/eligibility", h.Eligibility)
		hr.POST("/register/step1", h.Step1)
		hr.POST("/register/verify-otp", h.VerifyOtp)
		hr.POST("/register/vehicle", h.AddVehicle)
		hr.POST("/register/license", h.AddLicense)
		hr.POST("/register/payment", h.AddPayment)
		hr.POST("/register/submit", h.Submit)
	}
	hr.GET("/profile", Authenticated(h.sessions, h.logger), RequireRole(h.logger, users.RoleHauler), h.GetProfile)

	admin := rg.Group("/admin/haulers", Authenticated(h.sessions, h.logger), RequireRole(h.logger, users.RoleAdmin))
	{
		admin.GET("/pending", h.ListPending)
		admin.POST("/:id/verify", h.Verify)
	}
}

// Eligibility handles GET /hauler/eligibility. Public, no token needed.
func (h *HaulerHandler) Eligibility(c *gin.Context) {
	respondOK(c, "vehicle eligibility", gin.H{"vehicles": h.svc.Eligibility()})
}

type haulerStep1Request struct {
	FullName     string `json:"full_name" binding:"required"`
	MobileNumber string `json:"mobile_number" binding:"required"`
	District     string `json:"district"`
}

// Step1 handles POST /hauler/register/step1.
func (h *HaulerHandler) Step1(c *gin.Context) {
	var req haulerStep1Request
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.Step1PersonalInfo(c.Request.Context(), req.FullName, req.MobileNumber, req.District)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	recordOTPIssued(hauler.OTPScope)
	respondOK(c, "OTP sent", gin.H{
		"registration_token": res.RegistrationToken,
		"expires_in":         res.ExpiresIn,
	})
}

type haulerVerifyOtpRequest struct {
	RegistrationToken string `json:"registration_token" binding:"required"`
	OTP               string `json:"otp" binding:"required"`
}

// VerifyOtp handles POST /hauler/register/verify-otp.
func (h *HaulerHandler) VerifyOtp(c *gin.Context) {
	var req haulerVerifyOtpRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	p, err := h.svc.VerifyOtpAndCreateUser(c.Request.Context(), req.RegistrationToken, req.OTP)
	recordOTPVerified(hauler.OTPScope, err == nil)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "phone verified", gin.H{"profile": p})
}

type haulerVehicleRequest struct {
	RegistrationToken string  `json:"registration_token" binding:"required"`
	VehicleType       string  `json:"vehicle_type" binding:"required"`
	VehicleNumber     string  `json:"vehicle_number" binding:"required"`
	PayloadCapacityKg float64 `json:"payload_capacity_kg" binding:"required"`
	PhotoFrontURL     string  `json:"photo_front_url"`
	PhotoSideURL      string  `json:"photo_side_url"`
	PhotoOtherURL     string  `json:"photo_other_url"`
}

// AddVehicle handles POST /hauler/register/vehicle.
func (h *HaulerHandler) AddVehicle(c *gin.Context) {
	var req haulerVehicleRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	p, err := h.svc.AddVehicleInfo(c.Request.Context(), req.RegistrationToken, hauler.VehicleInput{
		VehicleType:       validate.VehicleType(req.VehicleType),
		VehicleNumber:     req.VehicleNumber,
		PayloadCapacityKg: req.PayloadCapacityKg,
		PhotoFrontURL:     req.PhotoFrontURL,
		PhotoSideURL:      req.PhotoSideURL,
		PhotoOtherURL:     req.PhotoOtherURL,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "vehicle details saved", gin.H{"profile": p})
}

type haulerLicenseRequest struct {
	RegistrationToken string `json:"registration_token" binding:"required"`
	DLNumber          string `json:"dl_number" binding:"required"`
	DLExpiry          string `json:"dl_expiry" binding:"required"`
	PhotoFrontURL     string `json:"photo_front_url"`
	PhotoBackURL      string `json:"photo_back_url"`
}

// AddLicense handles POST /hauler/register/license.
func (h *HaulerHandler) AddLicense(c *gin.Context) {
	var req haulerLicenseRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	p, err := h.svc.AddLicenseInfo(c.Request.Context(), req.RegistrationToken, hauler.LicenseInput{
		DLNumber:      req.DLNumber,
		DLExpiry:      req.DLExpiry,
		PhotoFrontURL: req.PhotoFrontURL,
		PhotoBackURL:  req.PhotoBackURL,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "license details saved", gin.H{"profile": p})
}

type haulerPaymentRequest struct {
	RegistrationToken string `json:"registration_token" binding:"required"`
	UPIID             string `json:"upi_id"`
	BankAccount       string `json:"bank_account"`
	IFSC              string `json:"ifsc"`
}

// AddPayment handles POST /hauler/register/payment.
func (h *HaulerHandler) AddPayment(c *gin.Context) {
	var req haulerPaymentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	p, err := h.svc.AddPaymentInfo(c.Request.Context(), req.RegistrationToken, hauler.PaymentInput{
		UPIID:       req.UPIID,
		BankAccount: req.BankAccount,
		IFSC:        req.IFSC,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "payment details saved", gin.H{"profile": p})
}

type haulerSubmitRequest struct {
	RegistrationToken string `json:"registration_token" binding:"required"`
}

// Submit handles POST /hauler/register/submit.
func (h *HaulerHandler) Submit(c *gin.Context) {
	var req haulerSubmitRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	if err := h.svc.SubmitRegistration(c.Request.Context(), req.RegistrationToken); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "registration submitted for verification", nil)
}

// GetProfile handles GET /hauler/profile.
func (h *HaulerHandler) GetProfile(c *gin.Context) {
	claims := ClaimsFrom(c)
	p, docs, err := h.svc.GetProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "profile", gin.H{"profile": p, "documents": docs})
}

// ListPending handles GET /admin/haulers/pending.
func (h *HaulerHandler) ListPending(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.svc.ListPending(c.Request.Context(), page, limit, c.Query("district"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "pending haulers", gin.H{
		"haulers": res.Haulers,
		"total":   res.Total,
		"page":    res.Page,
		"limit":   res.Limit,
	})
}

type haulerVerifyRequest struct {
	Action          string `json:"action" binding:"required"`
	RejectionReason string `json:"rejection_reason"`
}

// Verify handles POST /admin/haulers/:id/verify.
func (h *HaulerHandler) Verify(c *gin.Context) {
	profileID, err := pathID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req haulerVerifyRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	claims := ClaimsFrom(c)
	err = h.svc.Decide(c.Request.Context(), hauler.Decision{
		ProfileID:       profileID,
		Action:          req.Action,
		RejectionReason: req.RejectionReason,
		VerifiedBy:      claims.UserID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	recordHaulerDecision(req.Action)
	respondOK(c, "decision recorded", nil)
}
