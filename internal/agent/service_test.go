package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/credentials"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/users"
	"github.com/agrimandi/auth-service/internal/zones"
)

// ── Stub store (agents + users) ─────────────────────────────────────────────

type stubStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*users.User
	profiles    map[int64]*Profile
	assignments []*ZoneAssignment
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    map[int64]*users.User{},
		profiles: map[int64]*Profile{},
	}
}

func (s *stubStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *stubStore) Create(_ context.Context, u *users.User, p *Profile, za *ZoneAssignment, stateCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.users {
		if ex.Phone == u.Phone {
			return users.ErrDuplicatePhone
		}
	}
	now := time.Now().UTC()
	u.ID = s.id()
	u.CreatedAt = now
	cp := *u
	s.users[u.ID] = &cp

	prefix := "AGT-" + stateCode + "-"
	seq := 1
	for _, ex := range s.profiles {
		if strings.HasPrefix(ex.EmployeeID, prefix) {
			seq++
		}
	}
	p.ID = s.id()
	p.UserID = u.ID
	p.EmployeeID = prefix + pad3(seq)
	p.CreatedAt = now
	p.UpdatedAt = now
	pp := *p
	s.profiles[p.ID] = &pp

	za.ID = s.id()
	za.AgentID = p.ID
	za.CreatedAt = now
	zcp := *za
	s.assignments = append(s.assignments, &zcp)
	return nil
}

func pad3(n int) string {
	out := []byte{'0', '0', '0'}
	for i := 2; i >= 0 && n > 0; i-- {
		out[i] = byte('0' + n%10)
		n /= 10
	}
	return string(out)
}

func (s *stubStore) GetByID(_ context.Context, id int64) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *stubStore) GetByUserID(_ context.Context, userID int64) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) CompleteTraining(_ context.Context, profileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok || p.Status != StatusTraining {
		return ErrInvalidState
	}
	now := time.Now().UTC()
	p.Status = StatusActive
	p.TrainingCompletedAt = &now
	return nil
}

func (s *stubStore) Deactivate(_ context.Context, profileID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok || p.Status == StatusInactive {
		return ErrInvalidState
	}
	now := time.Now().UTC()
	p.Status = StatusInactive
	p.DeactivatedAt = &now
	p.DeactivationReason = &reason
	return nil
}

func (s *stubStore) CurrentAssignment(_ context.Context, agentID int64) (*ZoneAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, za := range s.assignments {
		if za.AgentID == agentID && za.EffectiveTo == nil {
			cp := *za
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) ReassignZone(_ context.Context, agentID, newZoneID, byUser int64, effectiveFrom time.Time) (*ZoneAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	closed := false
	for _, za := range s.assignments {
		if za.AgentID == agentID && za.EffectiveTo == nil {
			t := effectiveFrom
			za.EffectiveTo = &t
			closed = true
		}
	}
	if !closed {
		return nil, ErrNotFound
	}
	za := &ZoneAssignment{
		ID:            s.id(),
		AgentID:       agentID,
		ZoneID:        newZoneID,
		AssignedBy:    byUser,
		EffectiveFrom: effectiveFrom,
		CreatedAt:     time.Now().UTC(),
	}
	cp := *za
	s.assignments = append(s.assignments, &cp)
	return za, nil
}

func (s *stubStore) List(_ context.Context, f ListFilter) ([]*Summary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*Summary
	for _, p := range s.profiles {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		var cur *ZoneAssignment
		for _, za := range s.assignments {
			if za.AgentID == p.ID && za.EffectiveTo == nil {
				cur = za
			}
		}
		if cur == nil || (f.ZoneID != 0 && cur.ZoneID != f.ZoneID) {
			continue
		}
		cp := *p
		all = append(all, &Summary{Profile: &cp, Phone: s.users[p.UserID].Phone, ZoneID: cur.ZoneID})
	}
	total := len(all)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// userRepo view over the same store.

func (s *stubStore) GetUserByID(_ context.Context, id int64) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, users.ErrNotFound
}

func (s *stubStore) GetByPhone(_ context.Context, phone string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, users.ErrNotFound
}

func (s *stubStore) SetPINHash(_ context.Context, userID int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	u.PINHash = &hash
	u.TempPINHash = nil
	u.PINExpiresAt = nil
	return nil
}

func (s *stubStore) TouchLastLogin(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		now := time.Now().UTC()
		u.LastLoginAt = &now
	}
	return nil
}

// expireTempPIN backdates the temporary PIN for expiry tests.
func (s *stubStore) expireTempPIN(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	past := time.Now().UTC().Add(-time.Minute)
	s.users[userID].PINExpiresAt = &past
}

// userLookup adapts the store to the service's userRepo interface, working
// around the GetByID name collision with the profile lookup.
type userLookup struct{ s *stubStore }

func (a userLookup) GetByID(ctx context.Context, id int64) (*users.User, error) {
	return a.s.GetUserByID(ctx, id)
}
func (a userLookup) GetByPhone(ctx context.Context, phone string) (*users.User, error) {
	return a.s.GetByPhone(ctx, phone)
}
func (a userLookup) SetPINHash(ctx context.Context, userID int64, hash string) error {
	return a.s.SetPINHash(ctx, userID, hash)
}
func (a userLookup) TouchLastLogin(ctx context.Context, userID int64) error {
	return a.s.TouchLastLogin(ctx, userID)
}

// ── Stub zones ──────────────────────────────────────────────────────────────

type stubZones struct {
	byID map[int64]*zones.Zone
}

// Fixture tree: Karnataka → Hassan district → two taluks → one village.
func newStubZones() *stubZones {
	parent := func(id int64) *int64 { return &id }
	return &stubZones{byID: map[int64]*zones.Zone{
		1: {ID: 1, Name: "Karnataka", Code: "KA", Type: zones.TypeState},
		2: {ID: 2, Name: "Hassan", Code: "HSN", Type: zones.TypeDistrict, ParentID: parent(1)},
		3: {ID: 3, Name: "Belur", Code: "BLR", Type: zones.TypeTaluk, ParentID: parent(2)},
		4: {ID: 4, Name: "Arsikere", Code: "ASK", Type: zones.TypeTaluk, ParentID: parent(2)},
		5: {ID: 5, Name: "Halebidu", Code: "HLB", Type: zones.TypeVillage, ParentID: parent(3)},
	}}
}

func (z *stubZones) GetByID(_ context.Context, id int64) (*zones.Zone, error) {
	if zn, ok := z.byID[id]; ok {
		return zn, nil
	}
	return nil, zones.ErrNotFound
}

func (z *stubZones) RootState(_ context.Context, zoneID int64) (*zones.Zone, error) {
	zn, ok := z.byID[zoneID]
	if !ok {
		return nil, zones.ErrNotFound
	}
	for zn.Type != zones.TypeState {
		zn = z.byID[*zn.ParentID]
	}
	return zn, nil
}

func (z *stubZones) Subtree(_ context.Context, rootID int64) ([]*zones.Zone, error) {
	root, ok := z.byID[rootID]
	if !ok {
		return nil, zones.ErrNotFound
	}
	out := []*zones.Zone{root}
	for i := 0; i < len(out); i++ {
		for _, zn := range z.byID {
			if zn.ParentID != nil && *zn.ParentID == out[i].ID {
				out = append(out, zn)
			}
		}
	}
	return out, nil
}

// ── Stub session issuer + recording sender ──────────────────────────────────

type stubIssuer struct {
	mu     sync.Mutex
	issued []int64
}

func (s *stubIssuer) Issue(_ context.Context, u *users.User, _ session.Meta) (*session.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued = append(s.issued, u.ID)
	return &session.TokenPair{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(session.AgentAccessTTL),
	}, nil
}

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

// lastPIN extracts the 6-digit temporary PIN from the welcome SMS.
func (s *recordingSender) lastPIN(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatal("no welcome SMS dispatched")
	}
	msg := s.messages[len(s.messages)-1]
	const marker = "temporary PIN "
	i := strings.Index(msg, marker)
	if i < 0 || len(msg) < i+len(marker)+6 {
		t.Fatalf("unexpected welcome SMS %q", msg)
	}
	return msg[i+len(marker) : i+len(marker)+6]
}

// ── Harness ─────────────────────────────────────────────────────────────────

type harness struct {
	svc    *Service
	store  *stubStore
	sender *recordingSender
	issuer *stubIssuer
	tokens *session.TokenIssuer
}

// managerID is the district manager driving provisioning in these tests.
const managerID = int64(42)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  newStubStore(),
		sender: &recordingSender{},
		issuer: &stubIssuer{},
		tokens: session.NewTokenIssuer("test-secret", "https://auth.test"),
	}
	h.svc = NewService(h.store, userLookup{h.store}, newStubZones(), h.issuer, h.tokens, h.sender, zap.NewNop())
	return h
}

func (h *harness) create(t *testing.T, name, phone string, zoneID int64) (*Profile, string) {
	t.Helper()
	p, err := h.svc.Create(context.Background(), CreateInput{
		FullName:       name,
		Phone:          phone,
		ZoneID:         zoneID,
		EmploymentType: EmploymentFullTime,
		CreatedBy:      managerID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p, h.sender.lastPIN(t)
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

func TestCreateAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, pin := h.create(t, "Asha Verma", "9811122233", 3)
	if p.EmployeeID != "AGT-KA-001" {
		t.Errorf("employee id = %q, want AGT-KA-001", p.EmployeeID)
	}
	if p.Status != StatusTraining {
		t.Errorf("status = %s, want TRAINING", p.Status)
	}
	if !credentials.CheckTempPIN(pin) {
		t.Errorf("welcome SMS carries malformed PIN %q", pin)
	}

	// The sequence is state-scoped.
	p2, _ := h.create(t, "Vikram Shetty", "9811122244", 4)
	if p2.EmployeeID != "AGT-KA-002" {
		t.Errorf("second employee id = %q, want AGT-KA-002", p2.EmployeeID)
	}

	// Exactly one open assignment per agent.
	za, err := h.store.CurrentAssignment(ctx, p.ID)
	if err != nil {
		t.Fatalf("CurrentAssignment: %v", err)
	}
	if za.ZoneID != 3 || za.AssignedBy != managerID {
		t.Errorf("assignment = %+v", za)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.create(t, "Asha Verma", "9811122233", 3)

	_, err := h.svc.Create(ctx, CreateInput{
		FullName: "Someone Else", Phone: "9811122233", ZoneID: 3,
		EmploymentType: EmploymentFullTime, CreatedBy: managerID,
	})
	if errCode(t, err) != apperr.CodePhoneExists {
		t.Errorf("duplicate phone: code = %s", errCode(t, err))
	}

	_, err = h.svc.Create(ctx, CreateInput{
		FullName: "Meera Nair", Phone: "9811122299", ZoneID: 999,
		EmploymentType: EmploymentFullTime, CreatedBy: managerID,
	})
	if errCode(t, err) != apperr.CodeNotFound {
		t.Errorf("unknown zone: code = %s", errCode(t, err))
	}

	_, err = h.svc.Create(ctx, CreateInput{
		FullName: "Meera Nair", Phone: "9811122299", ZoneID: 3,
		EmploymentType: "GIG", CreatedBy: managerID,
	})
	if errCode(t, err) != apperr.CodeInvalidArgument {
		t.Errorf("bad employment type: code = %s", errCode(t, err))
	}
}

func TestFirstLoginAndSetPin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, pin := h.create(t, "Asha Verma", "9811122233", 3)

	if _, err := h.svc.FirstLogin(ctx, "9811122233", "12ab56"); errCode(t, err) != apperr.CodeInvalidPIN {
		t.Errorf("malformed PIN: code = %s", errCode(t, err))
	}
	if _, err := h.svc.FirstLogin(ctx, "9811122233", "000000"); errCode(t, err) != apperr.CodeInvalidPIN {
		t.Errorf("wrong PIN: code = %s", errCode(t, err))
	}

	res, err := h.svc.FirstLogin(ctx, "9811122233", pin)
	if err != nil {
		t.Fatalf("FirstLogin: %v", err)
	}
	if !res.RequiresPinChange {
		t.Error("RequiresPinChange = false")
	}
	if res.ExpiresIn != 900 {
		t.Errorf("ExpiresIn = %d, want 900", res.ExpiresIn)
	}
	claims, err := h.tokens.ParsePurpose(res.TemporaryToken, session.PurposePinChange)
	if err != nil {
		t.Fatalf("temporary token does not parse: %v", err)
	}
	if claims.UserID != p.UserID {
		t.Errorf("token user = %d, want %d", claims.UserID, p.UserID)
	}

	// Sequential and mismatched PINs are rejected before anything is stored.
	_, err = h.svc.SetPin(ctx, res.TemporaryToken, "1234", "1234")
	if errCode(t, err) != apperr.CodeInvalidArgument || !strings.Contains(err.Error(), "SEQUENTIAL") {
		t.Errorf("sequential PIN: %v", err)
	}
	if _, err := h.svc.SetPin(ctx, res.TemporaryToken, "4827", "4828"); errCode(t, err) != apperr.CodeInvalidArgument {
		t.Errorf("mismatched confirmation: code = %s", errCode(t, err))
	}

	out, err := h.svc.SetPin(ctx, res.TemporaryToken, "4827", "4827")
	if err != nil {
		t.Fatalf("SetPin: %v", err)
	}
	if !out.RequiresTraining {
		t.Error("RequiresTraining = false for a TRAINING agent")
	}
	if out.Tokens == nil || out.Tokens.AccessToken == "" {
		t.Error("no session issued after PIN change")
	}

	u, _ := h.store.GetUserByID(ctx, p.UserID)
	if u.TempPINHash != nil || u.PINExpiresAt != nil {
		t.Error("temporary PIN fields not cleared")
	}
	if u.PINHash == nil || !credentials.VerifyPIN("4827", *u.PINHash) {
		t.Error("permanent PIN not stored")
	}

	// With the temp PIN consumed, first login is closed.
	if _, err := h.svc.FirstLogin(ctx, "9811122233", pin); errCode(t, err) != apperr.CodeInvalidPIN {
		t.Errorf("replayed first login: code = %s", errCode(t, err))
	}
}

func TestFirstLoginExpiredPIN(t *testing.T) {
	h := newHarness(t)
	p, pin := h.create(t, "Asha Verma", "9811122233", 3)

	h.store.expireTempPIN(p.UserID)
	_, err := h.svc.FirstLogin(context.Background(), "9811122233", pin)
	if errCode(t, err) != apperr.CodePINExpired {
		t.Errorf("expired PIN: code = %s", errCode(t, err))
	}
}

func TestSetPinRejectsBadToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, _ := h.create(t, "Asha Verma", "9811122233", 3)

	if _, err := h.svc.SetPin(ctx, "not-a-jwt", "4827", "4827"); errCode(t, err) != apperr.CodeTokenExpired {
		t.Errorf("garbage token: code = %s", errCode(t, err))
	}

	// A structurally valid token with the wrong purpose is refused too.
	wrong, err := h.tokens.IssuePurpose(p.UserID, users.RoleAgent, "refresh", session.PinChangeTTL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.SetPin(ctx, wrong, "4827", "4827"); errCode(t, err) != apperr.CodeTokenExpired {
		t.Errorf("wrong-purpose token: code = %s", errCode(t, err))
	}
}

func TestCompleteTrainingIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, _ := h.create(t, "Asha Verma", "9811122233", 3)

	res, err := h.svc.CompleteTraining(ctx, p.UserID)
	if err != nil {
		t.Fatalf("CompleteTraining: %v", err)
	}
	if res.Status != StatusActive || res.Message != "training completed" {
		t.Errorf("first call = %+v", res)
	}

	res, err = h.svc.CompleteTraining(ctx, p.UserID)
	if err != nil {
		t.Fatalf("repeat CompleteTraining: %v", err)
	}
	if res.Message != "training already completed" {
		t.Errorf("second call message = %q", res.Message)
	}

	if err := h.svc.Deactivate(ctx, p.ID, "left the company", managerID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := h.svc.CompleteTraining(ctx, p.UserID); errCode(t, err) != apperr.CodeInvalidState {
		t.Errorf("deactivated agent: code = %s", errCode(t, err))
	}
}

func TestDeactivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, _ := h.create(t, "Asha Verma", "9811122233", 3)

	if err := h.svc.Deactivate(ctx, p.ID, "", managerID); errCode(t, err) != apperr.CodeInvalidArgument {
		t.Errorf("missing reason: code = %s", errCode(t, err))
	}

	if err := h.svc.Deactivate(ctx, p.ID, "repeated no-shows", managerID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, _ := h.store.GetByID(ctx, p.ID)
	if got.Status != StatusInactive || got.DeactivationReason == nil || *got.DeactivationReason != "repeated no-shows" {
		t.Errorf("profile after deactivation = %+v", got)
	}
	last := h.sender.messages[len(h.sender.messages)-1]
	if !strings.Contains(last, p.EmployeeID) {
		t.Errorf("notification SMS %q does not name the agent", last)
	}

	if err := h.svc.Deactivate(ctx, p.ID, "again", managerID); errCode(t, err) != apperr.CodeInvalidState {
		t.Errorf("double deactivation: code = %s", errCode(t, err))
	}
}

func TestReassignZone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, _ := h.create(t, "Asha Verma", "9811122233", 3)

	if _, err := h.svc.ReassignZone(ctx, p.ID, 999, managerID, time.Time{}); errCode(t, err) != apperr.CodeNotFound {
		t.Errorf("unknown zone: code = %s", errCode(t, err))
	}
	if _, err := h.svc.ReassignZone(ctx, p.ID, 3, managerID, time.Time{}); errCode(t, err) != apperr.CodeInvalidArgument {
		t.Errorf("same zone: code = %s", errCode(t, err))
	}

	from := time.Now().UTC().Truncate(time.Second)
	za, err := h.svc.ReassignZone(ctx, p.ID, 4, managerID, from)
	if err != nil {
		t.Fatalf("ReassignZone: %v", err)
	}
	if za.ZoneID != 4 || za.EffectiveTo != nil {
		t.Errorf("new assignment = %+v", za)
	}

	// The old row is closed at the handover instant; exactly one row stays open.
	open := 0
	for _, a := range h.store.assignments {
		if a.AgentID != p.ID {
			continue
		}
		if a.EffectiveTo == nil {
			open++
		} else if !a.EffectiveTo.Equal(from) {
			t.Errorf("closed assignment ends at %v, want %v", a.EffectiveTo, from)
		}
	}
	if open != 1 {
		t.Errorf("open assignments = %d, want 1", open)
	}
}

func TestListAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p1, _ := h.create(t, "Asha Verma", "9811122233", 3)
	h.create(t, "Vikram Shetty", "9811122244", 4)
	if _, err := h.svc.CompleteTraining(ctx, p1.UserID); err != nil {
		t.Fatal(err)
	}

	page, err := h.svc.List(ctx, ListFilter{Page: 0, Limit: 500})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 2 || page.Page != 1 || page.Limit != 50 {
		t.Errorf("page = %+v", page)
	}

	page, err = h.svc.List(ctx, ListFilter{Status: StatusActive})
	if err != nil {
		t.Fatalf("List active: %v", err)
	}
	if page.Total != 1 || page.Agents[0].Profile.ID != p1.ID {
		t.Errorf("active roster = %+v", page)
	}

	if _, err := h.svc.List(ctx, ListFilter{Status: "RETIRED"}); errCode(t, err) != apperr.CodeInvalidArgument {
		t.Errorf("bad status filter: code = %s", errCode(t, err))
	}

	d, err := h.svc.Get(ctx, p1.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Phone != "9811122233" || d.Zone == nil || d.Zone.Name != "Belur" {
		t.Errorf("detail = %+v", d)
	}
}

func TestDashboardRequiresActiveStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, _ := h.create(t, "Asha Verma", "9811122233", 3)

	if _, err := h.svc.GetDashboard(ctx, p.UserID); errCode(t, err) != apperr.CodeInvalidState {
		t.Errorf("dashboard during training: code = %s", errCode(t, err))
	}

	if _, err := h.svc.CompleteTraining(ctx, p.UserID); err != nil {
		t.Fatal(err)
	}
	dash, err := h.svc.GetDashboard(ctx, p.UserID)
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if dash.Zone == nil || dash.Zone.ID != 3 {
		t.Errorf("dashboard zone = %+v", dash.Zone)
	}
	// Belur taluk covers itself plus Halebidu.
	if dash.ZonesCovered != 2 {
		t.Errorf("ZonesCovered = %d, want 2", dash.ZonesCovered)
	}

	if err := h.svc.Deactivate(ctx, p.ID, "resigned", managerID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.GetDashboard(ctx, p.UserID); errCode(t, err) != apperr.CodeUnauthorized {
		t.Errorf("dashboard after deactivation: code = %s", errCode(t, err))
	}
}
