package farmer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/kv"
	"github.com/agrimandi/auth-service/internal/otp"
	"github.com/agrimandi/auth-service/internal/payments"
	"github.com/agrimandi/auth-service/internal/ratelimit"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/upi"
	"github.com/agrimandi/auth-service/internal/users"
)

// ── Stubs ───────────────────────────────────────────────────────────────────

type stubUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*users.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{byID: map[int64]*users.User{}}
}

func (r *stubUserRepo) Create(_ context.Context, u *users.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byID {
		if e.Phone == u.Phone {
			return users.ErrDuplicatePhone
		}
	}
	r.nextID++
	u.ID = r.nextID
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id int64) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, users.ErrNotFound
}

func (r *stubUserRepo) GetByPhone(_ context.Context, phone string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, users.ErrNotFound
}

func (r *stubUserRepo) SetPINHash(_ context.Context, userID int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return users.ErrNotFound
	}
	u.PINHash = &hash
	return nil
}

func (r *stubUserRepo) TouchLastLogin(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

func (r *stubUserRepo) RecordLoginFailure(_ context.Context, userID int64) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID[userID]
	u.LoginAttempts++
	if u.LoginAttempts >= users.BuyerLoginThreshold {
		until := time.Now().Add(users.BuyerLockoutWindow)
		u.LockedUntil = &until
		return u.LoginAttempts, &until, nil
	}
	return u.LoginAttempts, nil, nil
}

func (r *stubUserRepo) ResetLoginFailures(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok {
		u.LoginAttempts = 0
		u.LockedUntil = nil
	}
	return nil
}

type stubProfileRepo struct {
	mu       sync.Mutex
	profiles map[int64]*Profile
}

func newStubProfileRepo() *stubProfileRepo {
	return &stubProfileRepo{profiles: map[int64]*Profile{}}
}

func (r *stubProfileRepo) Upsert(_ context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.profiles[p.UserID]; ok {
		p.ID = e.ID
	} else {
		p.ID = int64(len(r.profiles) + 1)
	}
	cp := *p
	r.profiles[p.UserID] = &cp
	return nil
}

func (r *stubProfileRepo) SaveFarm(_ context.Context, userID int64, size FarmSize, farmingTypes, mainCrops []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.FarmSize = &size
	p.FarmingTypes = farmingTypes
	p.MainCrops = mainCrops
	return nil
}

func (r *stubProfileRepo) GetByUserID(_ context.Context, userID int64) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrNotFound
}

type stubPaymentRepo struct {
	mu   sync.Mutex
	rows []*payments.Details
}

func (r *stubPaymentRepo) Create(_ context.Context, d *payments.Details) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Primary {
		for _, e := range r.rows {
			if e.UserID == d.UserID {
				e.Primary = false
			}
		}
	}
	d.ID = int64(len(r.rows) + 1)
	cp := *d
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *stubPaymentRepo) MarkVerified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rows {
		if e.ID == id {
			e.Verified = true
			return nil
		}
	}
	return payments.ErrNotFound
}

func (r *stubPaymentRepo) GetPrimary(_ context.Context, userID int64) (*payments.Details, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rows {
		if e.UserID == userID && e.Primary {
			cp := *e
			return &cp, nil
		}
	}
	return nil, payments.ErrNotFound
}

type stubIssuer struct {
	mu     sync.Mutex
	issued []int64
}

func (s *stubIssuer) Issue(_ context.Context, u *users.User, _ session.Meta) (*session.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued = append(s.issued, u.ID)
	return &session.TokenPair{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type stubUPI struct {
	vpaOK bool
	bank  string
}

func (v *stubUPI) VerifyVPA(context.Context, string) (bool, error) { return v.vpaOK, nil }
func (v *stubUPI) LookupIFSC(context.Context, string) (string, error) {
	return v.bank, nil
}

var _ upi.Verifier = (*stubUPI)(nil)

// recordingSender captures dispatched OTP messages so tests can read the code.
type recordingSender struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSender) Send(_ context.Context, _ string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

// lastCode returns the 6-digit code from the most recent message.
func (s *recordingSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatal("no OTP message dispatched")
	}
	return s.messages[len(s.messages)-1][:6]
}

// ── Harness ─────────────────────────────────────────────────────────────────

type harness struct {
	svc      *Service
	users    *stubUserRepo
	profiles *stubProfileRepo
	payments *stubPaymentRepo
	issuer   *stubIssuer
	sender   *recordingSender
	engine   *otp.Engine
	store    kv.Store
	mr       *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := kv.NewRedisStore(client)

	logger := zap.NewNop()
	sender := &recordingSender{}
	engine := otp.NewEngine(store, ratelimit.NewOTPLimiter(store), sender, true, logger)
	h := &harness{
		users:    newStubUserRepo(),
		profiles: newStubProfileRepo(),
		payments: &stubPaymentRepo{},
		issuer:   &stubIssuer{},
		sender:   sender,
		engine:   engine,
		store:    store,
		mr:       mr,
	}
	h.svc = NewService(h.users, h.profiles, h.payments, engine,
		ratelimit.NewLoginGuard(store), h.issuer, &stubUPI{vpaOK: true, bank: "State Bank of India"}, logger)
	return h
}

func (h *harness) signup(t *testing.T, phone string) *users.User {
	t.Helper()
	ctx := context.Background()
	req, err := h.svc.RequestSignupOTP(ctx, phone)
	if err != nil {
		t.Fatalf("RequestSignupOTP: %v", err)
	}
	if req.ExpiresIn != 600 {
		t.Fatalf("ExpiresIn = %d, want 600", req.ExpiresIn)
	}
	out, err := h.svc.CreateAccount(ctx, phone, h.sender.lastCode(t), "hi")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return out.User
}

func errCode(t *testing.T, err error) apperr.Code {
	t.Helper()
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("error %v is not an apperr.Error", err)
	}
	return ae.Code
}

// ── Tests ───────────────────────────────────────────────────────────────────

func TestSignupFlow(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "98765 43210")

	if u.Role != users.RoleFarmer {
		t.Errorf("role = %s, want FARMER", u.Role)
	}
	if u.Phone != "9876543210" {
		t.Errorf("phone not normalized: %s", u.Phone)
	}
	if u.Language != "hi" {
		t.Errorf("language = %s", u.Language)
	}
	if len(h.issuer.issued) != 1 {
		t.Errorf("sessions issued = %d, want 1", len(h.issuer.issued))
	}
}

func TestSignupRejectsRegisteredPhone(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "9876543210")

	_, err := h.svc.RequestSignupOTP(context.Background(), "9876543210")
	if errCode(t, err) != apperr.CodePhoneExists {
		t.Errorf("code = %s, want PHONE_EXISTS", errCode(t, err))
	}
}

func TestLoginOTPRequiresRegistration(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.RequestLoginOTP(context.Background(), "9876543210")
	if errCode(t, err) != apperr.CodePhoneNotRegistered {
		t.Errorf("code = %s, want PHONE_NOT_REGISTERED", errCode(t, err))
	}
}

func TestOTPLoginSuccess(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "9876543210")
	ctx := context.Background()

	if _, err := h.svc.RequestLoginOTP(ctx, "9876543210"); err != nil {
		t.Fatalf("RequestLoginOTP: %v", err)
	}
	out, err := h.svc.VerifyLoginOTP(ctx, "9876543210", h.sender.lastCode(t), session.Meta{DeviceID: "dev-1"})
	if err != nil {
		t.Fatalf("VerifyLoginOTP: %v", err)
	}
	if out.User.ID != u.ID {
		t.Errorf("user id = %d, want %d", out.User.ID, u.ID)
	}
	got, _ := h.users.GetByID(ctx, u.ID)
	if got.LastLoginAt == nil {
		t.Error("last login not recorded")
	}
}

func TestOTPLoginLockoutAfterThreeFailures(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "9876543210")
	ctx := context.Background()

	if _, err := h.svc.RequestLoginOTP(ctx, "9876543210"); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 2; i++ {
		_, err := h.svc.VerifyLoginOTP(ctx, "9876543210", "000000", session.Meta{})
		if errCode(t, err) != apperr.CodeInvalidOTP {
			t.Fatalf("failure #%d code = %s", i, errCode(t, err))
		}
		var ae *apperr.Error
		errors.As(err, &ae)
		if ae.RemainingAttempts == nil || *ae.RemainingAttempts != 3-i {
			t.Fatalf("failure #%d remaining = %v", i, ae.RemainingAttempts)
		}
	}

	_, err := h.svc.VerifyLoginOTP(ctx, "9876543210", "000000", session.Meta{})
	if errCode(t, err) != apperr.CodeAccountLocked {
		t.Fatalf("3rd failure code = %s, want ACCOUNT_LOCKED", errCode(t, err))
	}

	// While locked, both login paths refuse before touching the OTP.
	_, err = h.svc.RequestLoginOTP(ctx, "9876543210")
	if errCode(t, err) != apperr.CodeAccountLocked {
		t.Errorf("RequestLoginOTP while locked = %s", errCode(t, err))
	}

	// The window lapses and the phone is usable again.
	h.mr.FastForward(1801 * time.Second)
	if _, err := h.svc.RequestLoginOTP(ctx, "9876543210"); err != nil {
		t.Errorf("RequestLoginOTP after lockout expiry: %v", err)
	}
}

func TestProfileSteps(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "9876543210")
	ctx := context.Background()

	village := "Hiriyur"
	p, err := h.svc.UpdateProfile(ctx, u.ID, "Ramesh Gowda", "Chitradurga", "Karnataka", &village)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.ID == 0 {
		t.Error("profile id not assigned")
	}

	if _, err := h.svc.UpdateProfile(ctx, u.ID, "R", "Chitradurga", "Karnataka", nil); err == nil {
		t.Error("1-char name accepted")
	}
	if _, err := h.svc.UpdateProfile(ctx, u.ID, "Ramesh", "", "Karnataka", nil); err == nil {
		t.Error("empty district accepted")
	}

	if err := h.svc.SaveFarmProfile(ctx, u.ID, FarmMedium, []string{"ORGANIC"}, []string{"ragi", "onion"}); err != nil {
		t.Fatalf("SaveFarmProfile: %v", err)
	}
	if err := h.svc.SaveFarmProfile(ctx, u.ID, "HUGE", nil, nil); err == nil {
		t.Error("invalid farm size accepted")
	}
	if err := h.svc.SaveFarmProfile(ctx, 999, FarmSmall, nil, nil); errCode(t, err) != apperr.CodeNotFound {
		t.Error("farm step without profile step should be NOT_FOUND")
	}

	got, err := h.svc.GetProfile(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.FarmSize == nil || *got.FarmSize != FarmMedium {
		t.Errorf("farm size = %v", got.FarmSize)
	}
}

func TestPaymentAndUPIVerification(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "9876543210")
	ctx := context.Background()

	d, err := h.svc.AddPaymentDetails(ctx, u.ID, payments.TypeUPI, "ramesh@upi", "", "")
	if err != nil {
		t.Fatalf("AddPaymentDetails: %v", err)
	}
	if !d.Primary {
		t.Error("first instrument not primary")
	}

	if err := h.svc.VerifyUPI(ctx, u.ID, "ramesh@upi"); err != nil {
		t.Fatalf("VerifyUPI: %v", err)
	}
	got, _ := h.payments.GetPrimary(ctx, u.ID)
	if !got.Verified {
		t.Error("instrument not marked verified")
	}

	if err := h.svc.VerifyUPI(ctx, u.ID, "not-a-vpa"); errCode(t, err) != apperr.CodeInvalidUPI {
		t.Error("malformed VPA should be INVALID_UPI")
	}
}

func TestBankDetailsIFSCLookup(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "9876543210")

	d, err := h.svc.AddPaymentDetails(context.Background(), u.ID, payments.TypeBank, "", "12345678901", "SBIN0001234")
	if err != nil {
		t.Fatalf("AddPaymentDetails: %v", err)
	}
	if d.BankName == nil || *d.BankName != "State Bank of India" {
		t.Errorf("bank name = %v", d.BankName)
	}
}

func TestPinLifecycle(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "9876543210")
	ctx := context.Background()

	if err := h.svc.SetPin(ctx, u.ID, "1234"); err == nil {
		t.Fatal("sequential PIN accepted")
	}
	if err := h.svc.SetPin(ctx, u.ID, "7777"); err == nil {
		t.Fatal("repeated PIN accepted")
	}
	if err := h.svc.SetPin(ctx, u.ID, "4083"); err != nil {
		t.Fatalf("SetPin: %v", err)
	}

	out, err := h.svc.LoginWithPin(ctx, "9876543210", "4083", session.Meta{})
	if err != nil {
		t.Fatalf("LoginWithPin: %v", err)
	}
	if out.Tokens.AccessToken == "" {
		t.Error("no access token issued")
	}
}

func TestPinLoginFailureCounters(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "9876543210")
	ctx := context.Background()

	if err := h.svc.SetPin(ctx, u.ID, "4083"); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 2; i++ {
		_, err := h.svc.LoginWithPin(ctx, "9876543210", "0000", session.Meta{})
		if errCode(t, err) != apperr.CodeInvalidPIN {
			t.Fatalf("failure #%d code = %s", i, errCode(t, err))
		}
	}
	_, err := h.svc.LoginWithPin(ctx, "9876543210", "0000", session.Meta{})
	if errCode(t, err) != apperr.CodeAccountLocked {
		t.Fatalf("3rd failure code = %s, want ACCOUNT_LOCKED", errCode(t, err))
	}

	// The row counter advanced alongside the ephemeral one.
	got, _ := h.users.GetByID(ctx, u.ID)
	if got.LoginAttempts != 3 {
		t.Errorf("row login attempts = %d, want 3", got.LoginAttempts)
	}

	// Success after the window clears both counters.
	h.mr.FastForward(1801 * time.Second)
	if _, err := h.svc.LoginWithPin(ctx, "9876543210", "4083", session.Meta{}); err != nil {
		t.Fatalf("LoginWithPin after expiry: %v", err)
	}
	got, _ = h.users.GetByID(ctx, u.ID)
	if got.LoginAttempts != 0 {
		t.Errorf("row counter not reset: %d", got.LoginAttempts)
	}
}

func TestOTPSingleUse(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "9876543210")
	ctx := context.Background()

	if _, err := h.svc.RequestLoginOTP(ctx, "9876543210"); err != nil {
		t.Fatal(err)
	}
	code := h.sender.lastCode(t)
	if _, err := h.svc.VerifyLoginOTP(ctx, "9876543210", code, session.Meta{}); err != nil {
		t.Fatalf("first verification: %v", err)
	}
	_, err := h.svc.VerifyLoginOTP(ctx, "9876543210", code, session.Meta{})
	if errCode(t, err) != apperr.CodeInvalidOTP {
		t.Errorf("replayed OTP code = %s, want INVALID_OTP", errCode(t, err))
	}
}
