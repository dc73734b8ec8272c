package hauler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/kv"
	"github.com/agrimandi/auth-service/internal/otp"
	"github.com/agrimandi/auth-service/internal/payments"
	"github.com/agrimandi/auth-service/internal/sms"
	"github.com/agrimandi/auth-service/internal/upi"
	"github.com/agrimandi/auth-service/internal/users"
	"github.com/agrimandi/auth-service/internal/validate"
)

// OTPScope namespaces hauler OTP keys in the ephemeral store.
const OTPScope = "hauler"

type haulerRepo interface {
	CreateWithUser(ctx context.Context, u *users.User, p *Profile) error
	GetByToken(ctx context.Context, token string) (*Profile, error)
	GetByUserID(ctx context.Context, userID int64) (*Profile, error)
	GetByID(ctx context.Context, id int64) (*Profile, error)
	VehicleNumberTaken(ctx context.Context, number string, excludeProfileID int64) (bool, error)
	SetVehicleInfo(ctx context.Context, profileID int64, vt validate.VehicleType, number string, capacityKg float64, docs []*Document) error
	SetLicenseInfo(ctx context.Context, profileID int64, dlNumber string, dlExpiry time.Time, docs []*Document) error
	SetStep4(ctx context.Context, profileID int64) error
	Submit(ctx context.Context, profileID int64) error
	ListPending(ctx context.Context, page, limit int, district string) ([]*PendingHauler, int, error)
	Documents(ctx context.Context, profileID int64) ([]*Document, error)
	Approve(ctx context.Context, profileID, verifiedBy int64) error
	Reject(ctx context.Context, profileID, verifiedBy int64, reason string) error
}

type userRepo interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
	GetByPhone(ctx context.Context, phone string) (*users.User, error)
}

type paymentRepo interface {
	Create(ctx context.Context, d *payments.Details) error
}

type otpEngine interface {
	Generate(ctx context.Context, scope, phone string) (otp.Result, error)
	Verify(ctx context.Context, scope, phone, code string) (bool, error)
}

// Service implements the hauler registration state machine and the admin
// verification queue.
type Service struct {
	repo     haulerRepo
	userRepo userRepo
	payments paymentRepo
	store    kv.Store
	otp      otpEngine
	upi      upi.Verifier
	sender   sms.Sender
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(
	repo haulerRepo,
	ur userRepo,
	pay paymentRepo,
	store kv.Store,
	engine otpEngine,
	upiVerifier upi.Verifier,
	sender sms.Sender,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:     repo,
		userRepo: ur,
		payments: pay,
		store:    store,
		otp:      engine,
		upi:      upiVerifier,
		sender:   sender,
		logger:   logger,
	}
}

// Step1Result is the outcome of the first registration step.
type Step1Result struct {
	RegistrationToken string
	ExpiresIn         int
}

// Step1PersonalInfo validates the applicant, parks the step-1 bundle under a
// fresh registration token, and dispatches the OTP.
func (s *Service) Step1PersonalInfo(ctx context.Context, rawName, rawPhone, district string) (*Step1Result, error) {
	name, ok := validate.Name(rawName)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "name must be at least 2 characters")
	}
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	if _, err := s.userRepo.GetByPhone(ctx, phone); err == nil {
		return nil, apperr.New(apperr.CodePhoneExists, "mobile number already registered")
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, apperr.Wrap("lookup phone", err)
	}

	bundle := pendingStep1{FullName: name, Phone: phone}
	if district != "" {
		bundle.District = &district
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, apperr.Wrap("encode step 1 bundle", err)
	}
	token := uuid.NewString()
	if err := s.store.SetEX(ctx, kv.HaulerRegKey(token), string(raw), kv.HaulerRegTTL); err != nil {
		return nil, apperr.Wrap("park step 1 bundle", err)
	}

	res, err := s.otp.Generate(ctx, OTPScope, phone)
	if err != nil {
		return nil, apperr.Wrap("generate otp", err)
	}
	if !res.Allowed {
		return nil, apperr.New(apperr.CodeRateExceeded, res.Reason)
	}
	return &Step1Result{RegistrationToken: token, ExpiresIn: 600}, nil
}

// VerifyOtpAndCreateUser verifies the step-1 OTP and creates the HAULER user
// with a stub profile in one transaction. The stub carries a placeholder
// vehicle number until step 2 replaces it.
func (s *Service) VerifyOtpAndCreateUser(ctx context.Context, token, code string) (*Profile, error) {
	raw, found, err := s.store.Get(ctx, kv.HaulerRegKey(token))
	if err != nil {
		return nil, apperr.Wrap("load step 1 bundle", err)
	}
	if !found {
		return nil, apperr.New(apperr.CodeRegistrationNotFound, "registration expired, start again")
	}
	var bundle pendingStep1
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return nil, apperr.Wrap("decode step 1 bundle", err)
	}

	matched, err := s.otp.Verify(ctx, OTPScope, bundle.Phone, code)
	if err != nil {
		return nil, apperr.Wrap("verify otp", err)
	}
	if !matched {
		return nil, apperr.New(apperr.CodeInvalidOTP, "incorrect or expired OTP")
	}

	u := &users.User{Phone: bundle.Phone, Role: users.RoleHauler, IsActive: true, Language: "en"}
	p := &Profile{
		FullName:           bundle.FullName,
		District:           bundle.District,
		VehicleNumber:      TempVehiclePrefix + token[:8],
		CurrentStep:        1,
		VerificationStatus: StatusInProgress,
		RegistrationToken:  &token,
	}
	if err := s.repo.CreateWithUser(ctx, u, p); err != nil {
		return nil, apperr.Wrap("create hauler", err)
	}

	if err := s.store.Del(ctx, kv.HaulerRegKey(token)); err != nil {
		s.logger.Warn("clear step 1 bundle", zap.String("token", token), zap.Error(err))
	}
	s.logger.Info("hauler account created", zap.Int64("user_id", u.ID))
	return p, nil
}

// resolve maps a registration token to its live profile.
func (s *Service) resolve(ctx context.Context, token string) (*Profile, error) {
	p, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeRegistrationNotFound, "registration not found or already submitted")
		}
		return nil, apperr.Wrap("resolve registration token", err)
	}
	return p, nil
}

// requireStep enforces the no-skip rule: the profile must sit exactly one
// step behind the requested one, or at it (re-submission replaces the data).
func requireStep(p *Profile, step int) error {
	if p.CurrentStep != step-1 && p.CurrentStep != step {
		return apperr.Newf(apperr.CodeInvalidState,
			"step %d cannot follow step %d", step, p.CurrentStep)
	}
	return nil
}

// VehicleInput carries the step-2 fields.
type VehicleInput struct {
	VehicleType       validate.VehicleType
	VehicleNumber     string
	PayloadCapacityKg float64
	PhotoFrontURL     string
	PhotoSideURL      string
	PhotoOtherURL     string
}

// AddVehicleInfo applies step 2: vehicle class, plate, capacity against the
// class limit, and the photo documents.
func (s *Service) AddVehicleInfo(ctx context.Context, token string, in VehicleInput) (*Profile, error) {
	p, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := requireStep(p, 2); err != nil {
		return nil, err
	}

	if _, ok := validate.EligibilityFor(in.VehicleType); !ok {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "unknown vehicle type %q", in.VehicleType)
	}
	number, ok := validate.VehicleNumber(in.VehicleNumber)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid vehicle registration number")
	}
	if msg, ok := validate.PayloadCapacity(in.VehicleType, in.PayloadCapacityKg); !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, msg)
	}
	if in.PhotoFrontURL == "" || in.PhotoSideURL == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "front and side vehicle photos are required")
	}

	taken, err := s.repo.VehicleNumberTaken(ctx, number, p.ID)
	if err != nil {
		return nil, apperr.Wrap("check vehicle number", err)
	}
	if taken {
		return nil, apperr.New(apperr.CodeDuplicateVehicleNumber, "vehicle number already registered")
	}

	docs := []*Document{
		{Type: DocVehicleFront, URL: in.PhotoFrontURL},
		{Type: DocVehicleSide, URL: in.PhotoSideURL},
	}
	if in.PhotoOtherURL != "" {
		docs = append(docs, &Document{Type: DocVehicleOther, URL: in.PhotoOtherURL})
	}
	if err := s.repo.SetVehicleInfo(ctx, p.ID, in.VehicleType, number, in.PayloadCapacityKg, docs); err != nil {
		return nil, apperr.Wrap("save vehicle info", err)
	}

	p.VehicleType = in.VehicleType
	p.VehicleNumber = number
	p.PayloadCapacityKg = in.PayloadCapacityKg
	p.CurrentStep = 2
	return p, nil
}

// LicenseInput carries the step-3 fields.
type LicenseInput struct {
	DLNumber      string
	DLExpiry      string
	PhotoFrontURL string
	PhotoBackURL  string
}

// AddLicenseInfo applies step 3: licence number, a strictly-future expiry,
// and the DL documents.
func (s *Service) AddLicenseInfo(ctx context.Context, token string, in LicenseInput) (*Profile, error) {
	p, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := requireStep(p, 3); err != nil {
		return nil, err
	}

	dl, ok := validate.DrivingLicense(in.DLNumber)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid driving licence number")
	}
	expiry, ok := validate.DLExpiry(in.DLExpiry, time.Now())
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "driving licence must not be expired")
	}
	if in.PhotoFrontURL == "" || in.PhotoBackURL == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "front and back licence photos are required")
	}

	docs := []*Document{
		{Type: DocDLFront, URL: in.PhotoFrontURL},
		{Type: DocDLBack, URL: in.PhotoBackURL},
	}
	if err := s.repo.SetLicenseInfo(ctx, p.ID, dl, expiry, docs); err != nil {
		return nil, apperr.Wrap("save licence info", err)
	}

	p.DLNumber = &dl
	p.DLExpiry = &expiry
	p.CurrentStep = 3
	return p, nil
}

// PaymentInput carries the step-4 fields.
type PaymentInput struct {
	UPIID       string
	BankAccount string
	IFSC        string
}

// AddPaymentInfo applies step 4. The UPI provider check is required here:
// a provider failure degrades to INVALID_UPI rather than an internal error.
func (s *Service) AddPaymentInfo(ctx context.Context, token string, in PaymentInput) (*Profile, error) {
	p, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := requireStep(p, 4); err != nil {
		return nil, err
	}

	vpa, ok := validate.UPI(in.UPIID)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidUPI, "invalid UPI id")
	}
	live, err := s.upi.VerifyVPA(ctx, vpa)
	if err != nil || !live {
		return nil, apperr.New(apperr.CodeInvalidUPI, "UPI id could not be verified, try again")
	}

	now := time.Now().UTC()
	d := &payments.Details{
		UserID:     p.UserID,
		Type:       payments.TypeUPI,
		UPIID:      &vpa,
		Verified:   true,
		VerifiedAt: &now,
		Primary:    true,
	}
	if in.BankAccount != "" {
		code, ok := validate.IFSC(in.IFSC)
		if !ok {
			return nil, apperr.New(apperr.CodeInvalidArgument, "invalid IFSC code")
		}
		d.BankAccount = &in.BankAccount
		d.IFSC = &code
		if bank, err := s.upi.LookupIFSC(ctx, code); err != nil {
			s.logger.Warn("ifsc lookup failed", zap.String("ifsc", code), zap.Error(err))
		} else if bank != "" {
			d.BankName = &bank
		}
	}
	if err := s.payments.Create(ctx, d); err != nil {
		return nil, apperr.Wrap("save payment details", err)
	}
	if err := s.repo.SetStep4(ctx, p.ID); err != nil {
		return nil, apperr.Wrap("advance to step 4", err)
	}

	p.CurrentStep = 4
	return p, nil
}

// SubmitRegistration finishes the flow: the profile moves to
// PENDING_VERIFICATION and the registration token is consumed.
func (s *Service) SubmitRegistration(ctx context.Context, token string) error {
	p, err := s.resolve(ctx, token)
	if err != nil {
		return err
	}
	if err := s.repo.Submit(ctx, p.ID); err != nil {
		if errors.Is(err, ErrInvalidState) {
			return apperr.New(apperr.CodeInvalidState, "complete all four steps before submitting")
		}
		return apperr.Wrap("submit registration", err)
	}
	s.logger.Info("hauler registration submitted", zap.Int64("profile_id", p.ID))

	s.notify(ctx, p.UserID,
		"Your AgriMandi hauler registration has been submitted and is awaiting verification.")
	return nil
}

// notify sends a best-effort SMS to the profile's user.
func (s *Service) notify(ctx context.Context, userID int64, message string) {
	if s.sender == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Warn("notify lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if err := s.sender.Send(ctx, u.Phone, message); err != nil {
		s.logger.Warn("notification dispatch failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// PendingPage is one page of the admin verification queue.
type PendingPage struct {
	Haulers []*PendingHauler `json:"haulers"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
}

// ListPending returns the verification queue oldest-first. Page and limit
// are clamped; DL numbers are masked for display.
func (s *Service) ListPending(ctx context.Context, page, limit int, district string) (*PendingPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	haulers, total, err := s.repo.ListPending(ctx, page, limit, district)
	if err != nil {
		return nil, apperr.Wrap("list pending haulers", err)
	}
	for _, h := range haulers {
		if h.Profile.DLNumber != nil {
			h.MaskedDL = validate.MaskDL(*h.Profile.DLNumber)
		}
	}
	return &PendingPage{Haulers: haulers, Total: total, Page: page, Limit: limit}, nil
}

// Decision carries an admin verdict on a pending hauler.
type Decision struct {
	ProfileID       int64
	Action          string
	RejectionReason string
	VerifiedBy      int64
}

// Decide applies an APPROVE or REJECT verdict. Racing decisions serialize
// on the guarded update; the loser gets INVALID_STATE.
func (s *Service) Decide(ctx context.Context, d Decision) error {
	p, err := s.repo.GetByID(ctx, d.ProfileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "hauler not found")
		}
		return apperr.Wrap("load hauler", err)
	}

	switch d.Action {
	case ActionApprove:
		if err := s.repo.Approve(ctx, p.ID, d.VerifiedBy); err != nil {
			if errors.Is(err, ErrInvalidState) {
				return apperr.New(apperr.CodeInvalidState, "hauler is not awaiting verification")
			}
			return apperr.Wrap("approve hauler", err)
		}
		s.logger.Info("hauler approved", zap.Int64("profile_id", p.ID), zap.Int64("by", d.VerifiedBy))
		s.notify(ctx, p.UserID, "Congratulations! Your AgriMandi hauler account has been verified. You can start accepting deliveries.")
	case ActionReject:
		if d.RejectionReason == "" {
			return apperr.New(apperr.CodeInvalidArgument, "a rejection reason is required")
		}
		if err := s.repo.Reject(ctx, p.ID, d.VerifiedBy, d.RejectionReason); err != nil {
			if errors.Is(err, ErrInvalidState) {
				return apperr.New(apperr.CodeInvalidState, "hauler is not awaiting verification")
			}
			return apperr.Wrap("reject hauler", err)
		}
		s.logger.Info("hauler rejected", zap.Int64("profile_id", p.ID), zap.Int64("by", d.VerifiedBy))
		s.notify(ctx, p.UserID, fmt.Sprintf("Your AgriMandi hauler registration was not approved: %s", d.RejectionReason))
	default:
		return apperr.Newf(apperr.CodeInvalidArgument, "invalid action %q", d.Action)
	}
	return nil
}

// Eligibility returns the vehicle eligibility table.
func (s *Service) Eligibility() []validate.VehicleEligibility {
	return validate.EligibilityTable()
}

// GetProfile returns the hauler profile owned by a user, with documents.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, []*Document, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, apperr.New(apperr.CodeNotFound, "hauler profile not found")
		}
		return nil, nil, apperr.Wrap("load hauler profile", err)
	}
	docs, err := s.repo.Documents(ctx, p.ID)
	if err != nil {
		return nil, nil, apperr.Wrap("load documents", err)
	}
	return p, docs, nil
}
