package farmer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/credentials"
	"github.com/agrimandi/auth-service/internal/otp"
	"github.com/agrimandi/auth-service/internal/payments"
	"github.com/agrimandi/auth-service/internal/ratelimit"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/upi"
	"github.com/agrimandi/auth-service/internal/users"
	"github.com/agrimandi/auth-service/internal/validate"
)

// OTPScope namespaces farmer OTP keys in the ephemeral store.
const OTPScope = "farmer"

// userRepo is the slice of the users repository the farmer flow needs.
type userRepo interface {
	Create(ctx context.Context, u *users.User) error
	GetByID(ctx context.Context, id int64) (*users.User, error)
	GetByPhone(ctx context.Context, phone string) (*users.User, error)
	SetPINHash(ctx context.Context, userID int64, hash string) error
	TouchLastLogin(ctx context.Context, userID int64) error
	RecordLoginFailure(ctx context.Context, userID int64) (int, *time.Time, error)
	ResetLoginFailures(ctx context.Context, userID int64) error
}

// profileRepo is the storage interface for farmer profiles.
type profileRepo interface {
	Upsert(ctx context.Context, p *Profile) error
	SaveFarm(ctx context.Context, userID int64, size FarmSize, farmingTypes, mainCrops []string) error
	GetByUserID(ctx context.Context, userID int64) (*Profile, error)
}

// paymentRepo is the storage interface for payment details.
type paymentRepo interface {
	Create(ctx context.Context, d *payments.Details) error
	MarkVerified(ctx context.Context, id int64) error
	GetPrimary(ctx context.Context, userID int64) (*payments.Details, error)
}

// otpEngine abstracts the OTP engine for tests.
type otpEngine interface {
	Generate(ctx context.Context, scope, phone string) (otp.Result, error)
	Verify(ctx context.Context, scope, phone, code string) (bool, error)
}

// sessionIssuer abstracts session issuance.
type sessionIssuer interface {
	Issue(ctx context.Context, u *users.User, meta session.Meta) (*session.TokenPair, error)
}

// Service implements the farmer onboarding and login flows.
type Service struct {
	userRepo    userRepo
	profileRepo profileRepo
	payments    paymentRepo
	otp         otpEngine
	guard       *ratelimit.LoginGuard
	sessions    sessionIssuer
	upi         upi.Verifier
	logger      *zap.Logger
}

// NewService creates a Service.
func NewService(
	ur userRepo,
	pr profileRepo,
	pay paymentRepo,
	engine otpEngine,
	guard *ratelimit.LoginGuard,
	sessions sessionIssuer,
	upiVerifier upi.Verifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		userRepo:    ur,
		profileRepo: pr,
		payments:    pay,
		otp:         engine,
		guard:       guard,
		sessions:    sessions,
		upi:         upiVerifier,
		logger:      logger,
	}
}

// OTPRequest is the outcome of an OTP issuance, reported to the façade.
// The code itself never leaves the service.
type OTPRequest struct {
	Sent      bool
	ExpiresIn int
}

// RequestSignupOTP issues an OTP for a phone that is not yet registered.
func (s *Service) RequestSignupOTP(ctx context.Context, rawPhone string) (*OTPRequest, error) {
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	if _, err := s.userRepo.GetByPhone(ctx, phone); err == nil {
		return nil, apperr.New(apperr.CodePhoneExists, "mobile number already registered")
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, apperr.Wrap("lookup phone", err)
	}
	return s.issueOTP(ctx, phone)
}

// RequestLoginOTP issues an OTP for a registered, unlocked farmer.
func (s *Service) RequestLoginOTP(ctx context.Context, rawPhone string) (*OTPRequest, error) {
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	u, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.New(apperr.CodePhoneNotRegistered, "mobile number not registered")
		}
		return nil, apperr.Wrap("lookup phone", err)
	}
	if !u.IsActive {
		return nil, apperr.New(apperr.CodeUnauthorized, "account is inactive")
	}
	if locked, until, err := s.guard.Status(ctx, phone); err != nil {
		return nil, apperr.Wrap("lockout status", err)
	} else if locked {
		return nil, apperr.New(apperr.CodeAccountLocked, "account temporarily locked").WithLockedUntil(until)
	}
	return s.issueOTP(ctx, phone)
}

func (s *Service) issueOTP(ctx context.Context, phone string) (*OTPRequest, error) {
	res, err := s.otp.Generate(ctx, OTPScope, phone)
	if err != nil {
		return nil, apperr.Wrap("generate otp", err)
	}
	if !res.Allowed {
		return nil, apperr.New(apperr.CodeRateExceeded, res.Reason)
	}
	return &OTPRequest{Sent: res.Sent, ExpiresIn: 600}, nil
}

// LoginResult bundles the authenticated user and token pair.
type LoginResult struct {
	User   *users.User
	Tokens *session.TokenPair
}

// CreateAccount verifies the signup OTP and creates the FARMER user with an
// initial session.
func (s *Service) CreateAccount(ctx context.Context, rawPhone, code, language string) (*LoginResult, error) {
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	if err := s.checkOTP(ctx, phone, code); err != nil {
		return nil, err
	}

	if language == "" {
		language = "en"
	}
	u := &users.User{Phone: phone, Role: users.RoleFarmer, IsActive: true, Language: language}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, users.ErrDuplicatePhone) {
			return nil, apperr.New(apperr.CodePhoneExists, "mobile number already registered")
		}
		return nil, apperr.Wrap("create farmer", err)
	}
	s.logger.Info("farmer account created", zap.Int64("user_id", u.ID))

	pair, err := s.sessions.Issue(ctx, u, session.Meta{})
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Tokens: pair}, nil
}

// VerifyLoginOTP completes the passwordless login: lockout check, OTP
// verification with failure accounting, counter reset, and single-device
// session issuance.
func (s *Service) VerifyLoginOTP(ctx context.Context, rawPhone, code string, meta session.Meta) (*LoginResult, error) {
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	u, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.New(apperr.CodePhoneNotRegistered, "mobile number not registered")
		}
		return nil, apperr.Wrap("lookup phone", err)
	}
	if err := s.checkOTP(ctx, phone, code); err != nil {
		return nil, err
	}
	if err := s.userRepo.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("touch last login", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	pair, err := s.sessions.Issue(ctx, u, meta)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Tokens: pair}, nil
}

// checkOTP enforces the lockout, verifies-and-consumes the code, and keeps
// the failure counters: reset on success, incremented (possibly locking) on
// failure.
func (s *Service) checkOTP(ctx context.Context, phone, code string) error {
	locked, until, err := s.guard.Status(ctx, phone)
	if err != nil {
		return apperr.Wrap("lockout status", err)
	}
	if locked {
		return apperr.New(apperr.CodeAccountLocked, "account temporarily locked").WithLockedUntil(until)
	}

	ok, err := s.otp.Verify(ctx, OTPScope, phone, code)
	if err != nil {
		return apperr.Wrap("verify otp", err)
	}
	if !ok {
		remaining, nowLocked, lockUntil, ferr := s.guard.RecordFailure(ctx, phone)
		if ferr != nil {
			return apperr.Wrap("record failure", ferr)
		}
		if nowLocked {
			return apperr.New(apperr.CodeAccountLocked, "too many failed attempts, account locked").
				WithAttempts(0).WithLockedUntil(lockUntil)
		}
		return apperr.New(apperr.CodeInvalidOTP, "incorrect or expired OTP").WithAttempts(remaining)
	}

	if err := s.guard.Reset(ctx, phone); err != nil {
		return apperr.Wrap("reset failure counters", err)
	}
	return nil
}

// UpdateProfile writes the profile-details step. District and state are
// required.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, fullName, district, state string, village *string) (*Profile, error) {
	if _, ok := validate.Name(fullName); !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "name must be at least 2 characters")
	}
	if district == "" || state == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "district and state are required")
	}
	p := &Profile{UserID: userID, FullName: fullName, District: district, State: state, Village: village}
	if err := s.profileRepo.Upsert(ctx, p); err != nil {
		return nil, apperr.Wrap("save profile", err)
	}
	return p, nil
}

// SaveFarmProfile writes the farm step.
func (s *Service) SaveFarmProfile(ctx context.Context, userID int64, size FarmSize, farmingTypes, mainCrops []string) error {
	switch size {
	case FarmSmall, FarmMedium, FarmLarge:
	default:
		return apperr.Newf(apperr.CodeInvalidArgument, "invalid farm size %q", size)
	}
	if err := s.profileRepo.SaveFarm(ctx, userID, size, farmingTypes, mainCrops); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "complete profile details first")
		}
		return apperr.Wrap("save farm profile", err)
	}
	return nil
}

// AddPaymentDetails records a UPI or bank instrument for the farmer.
func (s *Service) AddPaymentDetails(ctx context.Context, userID int64, payType payments.Type, upiID, bankAccount, ifsc string) (*payments.Details, error) {
	d := &payments.Details{UserID: userID, Type: payType, Primary: true}
	switch payType {
	case payments.TypeUPI:
		vpa, ok := validate.UPI(upiID)
		if !ok {
			return nil, apperr.New(apperr.CodeInvalidArgument, "invalid UPI id")
		}
		d.UPIID = &vpa
	case payments.TypeBank:
		if bankAccount == "" {
			return nil, apperr.New(apperr.CodeInvalidArgument, "bank account is required")
		}
		code, ok := validate.IFSC(ifsc)
		if !ok {
			return nil, apperr.New(apperr.CodeInvalidArgument, "invalid IFSC code")
		}
		d.BankAccount = &bankAccount
		d.IFSC = &code
		if bank, err := s.upi.LookupIFSC(ctx, code); err != nil {
			s.logger.Warn("ifsc lookup failed", zap.String("ifsc", code), zap.Error(err))
		} else if bank != "" {
			d.BankName = &bank
		}
	default:
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "invalid payment type %q", payType)
	}

	if err := s.payments.Create(ctx, d); err != nil {
		return nil, apperr.Wrap("save payment details", err)
	}
	return d, nil
}

// VerifyUPI runs the provider check against the farmer's primary UPI
// instrument and marks it verified.
func (s *Service) VerifyUPI(ctx context.Context, userID int64, rawVPA string) error {
	vpa, ok := validate.UPI(rawVPA)
	if !ok {
		return apperr.New(apperr.CodeInvalidUPI, "invalid UPI id")
	}
	live, err := s.upi.VerifyVPA(ctx, vpa)
	if err != nil || !live {
		return apperr.New(apperr.CodeInvalidUPI, "UPI id could not be verified, try again")
	}
	d, err := s.payments.GetPrimary(ctx, userID)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "add payment details first")
		}
		return apperr.Wrap("load payment details", err)
	}
	if err := s.payments.MarkVerified(ctx, d.ID); err != nil {
		return apperr.Wrap("mark verified", err)
	}
	return nil
}

// SetPin stores the farmer's permanent 4-digit PIN.
func (s *Service) SetPin(ctx context.Context, userID int64, pin string) error {
	if ok, reason := credentials.CheckPIN(pin); !ok {
		return apperr.New(apperr.CodeInvalidArgument, pinMessage(reason))
	}
	hash, err := credentials.HashPIN(pin)
	if err != nil {
		return apperr.Wrap("hash pin", err)
	}
	if err := s.userRepo.SetPINHash(ctx, userID, hash); err != nil {
		return apperr.Wrap("store pin", err)
	}
	return nil
}

// LoginWithPin authenticates a farmer by phone + PIN. Two independent
// failure counters apply: the KV guard (threshold 3) and the row counter
// (threshold 5); either can lock.
func (s *Service) LoginWithPin(ctx context.Context, rawPhone, pin string, meta session.Meta) (*LoginResult, error) {
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	u, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.New(apperr.CodePhoneNotRegistered, "mobile number not registered")
		}
		return nil, apperr.Wrap("lookup phone", err)
	}
	if u.Locked(time.Now()) {
		return nil, apperr.New(apperr.CodeAccountLocked, "account temporarily locked").WithLockedUntil(*u.LockedUntil)
	}
	if locked, until, err := s.guard.Status(ctx, phone); err != nil {
		return nil, apperr.Wrap("lockout status", err)
	} else if locked {
		return nil, apperr.New(apperr.CodeAccountLocked, "account temporarily locked").WithLockedUntil(until)
	}
	if u.PINHash == nil {
		return nil, apperr.New(apperr.CodeInvalidPIN, "no PIN set for this account")
	}

	if !credentials.VerifyPIN(pin, *u.PINHash) {
		remaining, nowLocked, lockUntil, ferr := s.guard.RecordFailure(ctx, phone)
		if ferr != nil {
			return nil, apperr.Wrap("record failure", ferr)
		}
		if _, dbUntil, derr := s.userRepo.RecordLoginFailure(ctx, u.ID); derr != nil {
			s.logger.Warn("record db login failure", zap.Int64("user_id", u.ID), zap.Error(derr))
		} else if dbUntil != nil && !nowLocked {
			return nil, apperr.New(apperr.CodeAccountLocked, "too many failed attempts, account locked").WithLockedUntil(*dbUntil)
		}
		if nowLocked {
			return nil, apperr.New(apperr.CodeAccountLocked, "too many failed attempts, account locked").
				WithAttempts(0).WithLockedUntil(lockUntil)
		}
		return nil, apperr.New(apperr.CodeInvalidPIN, "incorrect PIN").WithAttempts(remaining)
	}

	if err := s.guard.Reset(ctx, phone); err != nil {
		return nil, apperr.Wrap("reset failure counters", err)
	}
	if err := s.userRepo.ResetLoginFailures(ctx, u.ID); err != nil {
		s.logger.Warn("reset db login failures", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	if err := s.userRepo.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("touch last login", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	pair, err := s.sessions.Issue(ctx, u, meta)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Tokens: pair}, nil
}

// GetProfile returns the farmer's profile.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	p, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "profile not found")
		}
		return nil, apperr.Wrap("load profile", err)
	}
	return p, nil
}

// pinMessage maps PIN rule codes onto user-facing messages, keeping the rule
// code in the message for clients that branch on it.
func pinMessage(reason string) string {
	switch reason {
	case "SEQUENTIAL":
		return "SEQUENTIAL: PIN must not be a sequential pattern"
	case "REPEATED":
		return "REPEATED: PIN must not repeat a single digit"
	default:
		return reason
	}
}
