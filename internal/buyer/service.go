package buyer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/credentials"
	"github.com/agrimandi/auth-service/internal/kv"
	"github.com/agrimandi/auth-service/internal/otp"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/sms"
	"github.com/agrimandi/auth-service/internal/users"
	"github.com/agrimandi/auth-service/internal/validate"
)

// OTPScope namespaces buyer OTP keys in the ephemeral store.
const OTPScope = "buyer"

// ResetTokenTTL is the lifetime of a password reset token.
const ResetTokenTTL = time.Hour

type userRepo interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
	GetByPhone(ctx context.Context, phone string) (*users.User, error)
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	SetPasswordHash(ctx context.Context, userID int64, hash string) error
	TouchLastLogin(ctx context.Context, userID int64) error
	RecordLoginFailure(ctx context.Context, userID int64) (int, *time.Time, error)
	ResetLoginFailures(ctx context.Context, userID int64) error
}

type profileRepo interface {
	CreateAccount(ctx context.Context, u *users.User, p *Profile) error
	GetProfileByUserID(ctx context.Context, userID int64) (*Profile, error)
}

type resetRepo interface {
	CreateResetToken(ctx context.Context, t *session.PasswordResetToken) error
	GetResetTokenByLookup(ctx context.Context, lookupHash string) (*session.PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id int64) error
}

type otpEngine interface {
	Generate(ctx context.Context, scope, phone string) (otp.Result, error)
	Verify(ctx context.Context, scope, phone, code string) (bool, error)
}

type sessionService interface {
	Issue(ctx context.Context, u *users.User, meta session.Meta) (*session.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	RevokeAll(ctx context.Context, userID int64) error
}

// Service implements buyer registration, login, and password reset.
type Service struct {
	userRepo    userRepo
	profileRepo profileRepo
	resets      resetRepo
	store       kv.Store
	otp         otpEngine
	sessions    sessionService
	sender      sms.Sender
	logger      *zap.Logger
}

// NewService creates a Service.
func NewService(
	ur userRepo,
	pr profileRepo,
	resets resetRepo,
	store kv.Store,
	engine otpEngine,
	sessions sessionService,
	sender sms.Sender,
	logger *zap.Logger,
) *Service {
	return &Service{
		userRepo:    ur,
		profileRepo: pr,
		resets:      resets,
		store:       store,
		otp:         engine,
		sessions:    sessions,
		sender:      sender,
		logger:      logger,
	}
}

// RegisterInput carries the first-phase registration fields.
type RegisterInput struct {
	Email        string
	Password     string
	Phone        string
	ContactName  string
	BusinessName string
	BusinessType BusinessType
	GSTNumber    string
	Language     string
}

// RegistrationPending is the outcome of Register: an OTP is in flight and
// the bundle waits in the ephemeral store.
type RegistrationPending struct {
	Phone     string
	ExpiresIn int
}

// Register validates the registration, parks the bundle under
// buyer_reg:<phone>, and dispatches the OTP. The email reservation key is
// what makes two concurrent registrations sharing an email resolve to
// exactly one winner.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegistrationPending, error) {
	email, ok := validate.Email(in.Email)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid email address")
	}
	phone, ok := validate.Phone(in.Phone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	if _, ok := validate.Name(in.ContactName); !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "contact name must be at least 2 characters")
	}
	if in.BusinessName == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "business name is required")
	}
	if !ValidBusinessType(in.BusinessType) {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "invalid business type %q", in.BusinessType)
	}
	var gst *string
	if in.GSTNumber != "" {
		g, ok := validate.GST(in.GSTNumber)
		if !ok {
			return nil, apperr.New(apperr.CodeInvalidArgument, "invalid GST number")
		}
		gst = &g
	}
	if res := credentials.CheckPassword(in.Password); !res.Valid {
		return nil, apperr.New(apperr.CodeWeakPassword, "password does not meet the policy").WithRules(res.FailedRules)
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, apperr.New(apperr.CodeEmailExists, "email already registered")
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, apperr.Wrap("lookup email", err)
	}
	if _, err := s.userRepo.GetByPhone(ctx, phone); err == nil {
		return nil, apperr.New(apperr.CodePhoneExists, "mobile number already registered")
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, apperr.Wrap("lookup phone", err)
	}

	won, err := s.store.SetNX(ctx, kv.BuyerRegEmailKey(email), phone, kv.BuyerRegTTL)
	if err != nil {
		return nil, apperr.Wrap("reserve email", err)
	}
	if !won {
		return nil, apperr.New(apperr.CodeEmailExists, "a registration for this email is already in progress")
	}

	hash, err := credentials.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap("hash password", err)
	}
	lang := in.Language
	if lang == "" {
		lang = "en"
	}
	bundle := pendingRegistration{
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		ContactName:  in.ContactName,
		BusinessName: in.BusinessName,
		BusinessType: in.BusinessType,
		GSTNumber:    gst,
		Language:     lang,
		CreatedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, apperr.Wrap("encode registration bundle", err)
	}
	if err := s.store.SetEX(ctx, kv.BuyerRegKey(phone), string(raw), kv.BuyerRegTTL); err != nil {
		return nil, apperr.Wrap("park registration bundle", err)
	}

	res, err := s.otp.Generate(ctx, OTPScope, phone)
	if err != nil {
		return nil, apperr.Wrap("generate otp", err)
	}
	if !res.Allowed {
		return nil, apperr.New(apperr.CodeRateExceeded, res.Reason)
	}
	s.logger.Info("buyer registration pending", zap.String("phone", phone))
	return &RegistrationPending{Phone: phone, ExpiresIn: 600}, nil
}

// Address carries the second-phase address fields. Line and city are
// required.
type Address struct {
	Line    string
	City    string
	State   string
	Pincode string
}

// LoginResult bundles the authenticated user, organization profile, and
// token pair.
type LoginResult struct {
	User    *users.User
	Profile *Profile
	Tokens  *session.TokenPair
}

// VerifyOtp finalizes the registration: OTP check, bundle retrieval,
// transactional user+profile creation, bundle deletion, session issuance.
func (s *Service) VerifyOtp(ctx context.Context, rawPhone, code string, addr Address, meta session.Meta) (*LoginResult, error) {
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	if addr.Line == "" || addr.City == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "address and city are required")
	}

	matched, err := s.otp.Verify(ctx, OTPScope, phone, code)
	if err != nil {
		return nil, apperr.Wrap("verify otp", err)
	}
	if !matched {
		return nil, apperr.New(apperr.CodeInvalidOTP, "incorrect or expired OTP")
	}

	raw, found, err := s.store.Get(ctx, kv.BuyerRegKey(phone))
	if err != nil {
		return nil, apperr.Wrap("load registration bundle", err)
	}
	if !found {
		return nil, apperr.New(apperr.CodeRegistrationNotFound, "registration expired, start again")
	}
	var bundle pendingRegistration
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return nil, apperr.Wrap("decode registration bundle", err)
	}

	u := &users.User{
		Phone:        bundle.Phone,
		Email:        &bundle.Email,
		Role:         users.RoleBuyer,
		PasswordHash: &bundle.PasswordHash,
		IsActive:     true,
		Language:     bundle.Language,
	}
	p := &Profile{
		BusinessName: bundle.BusinessName,
		BusinessType: bundle.BusinessType,
		GSTNumber:    bundle.GSTNumber,
		ContactName:  bundle.ContactName,
		Address:      &addr.Line,
		City:         &addr.City,
	}
	if addr.State != "" {
		p.State = &addr.State
	}
	if addr.Pincode != "" {
		p.Pincode = &addr.Pincode
	}
	if err := s.profileRepo.CreateAccount(ctx, u, p); err != nil {
		switch {
		case errors.Is(err, users.ErrDuplicateEmail):
			return nil, apperr.New(apperr.CodeEmailExists, "email already registered")
		case errors.Is(err, users.ErrDuplicatePhone):
			return nil, apperr.New(apperr.CodePhoneExists, "mobile number already registered")
		}
		return nil, apperr.Wrap("create buyer account", err)
	}

	if err := s.store.Del(ctx, kv.BuyerRegKey(phone), kv.BuyerRegEmailKey(bundle.Email)); err != nil {
		s.logger.Warn("clear registration bundle", zap.String("phone", phone), zap.Error(err))
	}
	if err := s.userRepo.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("touch last login", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	s.logger.Info("buyer account created",
		zap.Int64("user_id", u.ID),
		zap.Int64("org_id", p.ID),
	)

	meta.BuyerOrgID = p.ID
	pair, err := s.sessions.Issue(ctx, u, meta)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Profile: p, Tokens: pair}, nil
}

// Login authenticates by email/password. Failure accounting lives on the
// User row: users.BuyerLoginThreshold failures lock the account for
// users.BuyerLockoutWindow.
func (s *Service) Login(ctx context.Context, rawEmail, password string, meta session.Meta) (*LoginResult, error) {
	email, ok := validate.Email(rawEmail)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid email address")
	}
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.New(apperr.CodeUnauthorized, "invalid email or password")
		}
		return nil, apperr.Wrap("lookup email", err)
	}
	if !u.IsActive {
		return nil, apperr.New(apperr.CodeUnauthorized, "account is inactive")
	}
	if u.Locked(time.Now()) {
		return nil, apperr.New(apperr.CodeAccountLocked, "account temporarily locked").WithLockedUntil(*u.LockedUntil)
	}
	if u.PasswordHash == nil || !credentials.VerifyPassword(password, *u.PasswordHash) {
		attempts, until, ferr := s.userRepo.RecordLoginFailure(ctx, u.ID)
		if ferr != nil {
			return nil, apperr.Wrap("record login failure", ferr)
		}
		if until != nil {
			return nil, apperr.New(apperr.CodeAccountLocked, "too many failed attempts, account locked").
				WithAttempts(0).WithLockedUntil(*until)
		}
		remaining := users.BuyerLoginThreshold - attempts
		if remaining < 0 {
			remaining = 0
		}
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid email or password").WithAttempts(remaining)
	}

	if err := s.userRepo.ResetLoginFailures(ctx, u.ID); err != nil {
		s.logger.Warn("reset login failures", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	if err := s.userRepo.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("touch last login", zap.Int64("user_id", u.ID), zap.Error(err))
	}

	p, err := s.profileRepo.GetProfileByUserID(ctx, u.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, apperr.Wrap("load buyer profile", err)
	}
	if p != nil {
		meta.BuyerOrgID = p.ID
	}
	pair, err := s.sessions.Issue(ctx, u, meta)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Profile: p, Tokens: pair}, nil
}

// Logout retires the session carrying the access token.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	return s.sessions.Logout(ctx, accessToken)
}

// ForgotPassword issues a reset token when the email belongs to a buyer.
// The response shape is identical either way so the endpoint does not leak
// which emails are registered.
func (s *Service) ForgotPassword(ctx context.Context, rawEmail string) error {
	email, ok := validate.Email(rawEmail)
	if !ok {
		return apperr.New(apperr.CodeInvalidArgument, "invalid email address")
	}
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.logger.Info("password reset for unknown email", zap.String("email", email))
			return nil
		}
		return apperr.Wrap("lookup email", err)
	}

	raw, err := credentials.RandomToken(32)
	if err != nil {
		return apperr.Wrap("draw reset token", err)
	}
	hash, err := credentials.HashPassword(raw)
	if err != nil {
		return apperr.Wrap("hash reset token", err)
	}
	t := &session.PasswordResetToken{
		UserID:     u.ID,
		TokenHash:  hash,
		LookupHash: credentials.HashToken(raw),
		ExpiresAt:  time.Now().UTC().Add(ResetTokenTTL),
	}
	if err := s.resets.CreateResetToken(ctx, t); err != nil {
		return apperr.Wrap("store reset token", err)
	}

	msg := fmt.Sprintf("Your AgriMandi password reset code is %s. Valid for 1 hour.", raw)
	if s.sender != nil {
		if err := s.sender.Send(ctx, u.Phone, msg); err != nil {
			s.logger.Warn("reset token dispatch failed", zap.Int64("user_id", u.ID), zap.Error(err))
		}
	}
	return nil
}

// ResetPassword consumes a reset token: bcrypt verification against the
// looked-up row, policy check, credential update, and revocation of every
// session for the user.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	t, err := s.resets.GetResetTokenByLookup(ctx, credentials.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return apperr.New(apperr.CodeTokenExpired, "invalid or expired reset token")
		}
		return apperr.Wrap("lookup reset token", err)
	}
	if !credentials.VerifyPassword(rawToken, t.TokenHash) {
		return apperr.New(apperr.CodeTokenExpired, "invalid or expired reset token")
	}
	if res := credentials.CheckPassword(newPassword); !res.Valid {
		return apperr.New(apperr.CodeWeakPassword, "password does not meet the policy").WithRules(res.FailedRules)
	}

	hash, err := credentials.HashPassword(newPassword)
	if err != nil {
		return apperr.Wrap("hash password", err)
	}
	if err := s.resets.MarkResetTokenUsed(ctx, t.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return apperr.New(apperr.CodeTokenExpired, "reset token already used")
		}
		return apperr.Wrap("spend reset token", err)
	}
	if err := s.userRepo.SetPasswordHash(ctx, t.UserID, hash); err != nil {
		return apperr.Wrap("update password", err)
	}
	if err := s.sessions.RevokeAll(ctx, t.UserID); err != nil {
		return err
	}
	s.logger.Info("password reset completed", zap.Int64("user_id", t.UserID))
	return nil
}
