package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/users"
)

// ── Stub repo ───────────────────────────────────────────────────────────────

type stubSessionRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*session.Session
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{rows: make(map[int64]*session.Session)}
}

func (r *stubSessionRepo) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.ID = r.nextID
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

func (r *stubSessionRepo) GetByTokenHash(_ context.Context, hash string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.TokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, session.ErrNotFound
}

func (r *stubSessionRepo) GetByRefreshToken(_ context.Context, refresh string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.RefreshToken == refresh {
			cp := *s
			return &cp, nil
		}
	}
	return nil, session.ErrNotFound
}

func (r *stubSessionRepo) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[id]; ok && s.DeletedAt == nil {
		now := time.Now()
		s.DeletedAt = &now
	}
	return nil
}

func (r *stubSessionRepo) SoftDeleteAllForUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.rows {
		if s.UserID == userID && s.DeletedAt == nil {
			s.DeletedAt = &now
		}
	}
	return nil
}

func (r *stubSessionRepo) activeCount(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.rows {
		if s.UserID == userID && s.DeletedAt == nil {
			n++
		}
	}
	return n
}

func newService(repo *stubSessionRepo) *session.Service {
	issuer := session.NewTokenIssuer("test-secret", "https://auth.test")
	return session.NewService(repo, issuer, zap.NewNop())
}

func farmer(id int64) *users.User {
	return &users.User{ID: id, Phone: "9876543210", Role: users.RoleFarmer, IsActive: true}
}

// ── Tests ───────────────────────────────────────────────────────────────────

func TestIssueAndVerify(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newService(repo)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, farmer(7), session.Meta{DeviceID: "D1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != 7 || claims.UserType != "FARMER" || claims.DeviceID != "D1" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestSingleDeviceInvalidation(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newService(repo)
	ctx := context.Background()
	u := farmer(7)

	first, err := svc.Issue(ctx, u, session.Meta{DeviceID: "D1"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Issue(ctx, u, session.Meta{DeviceID: "D2"})
	if err != nil {
		t.Fatal(err)
	}

	if repo.activeCount(7) != 1 {
		t.Fatalf("active sessions = %d, want 1", repo.activeCount(7))
	}
	if _, err := svc.Verify(ctx, first.AccessToken); err == nil {
		t.Error("prior device session still valid")
	}
	if _, err := svc.Verify(ctx, second.AccessToken); err != nil {
		t.Errorf("new device session rejected: %v", err)
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newService(repo)

	_, err := svc.Verify(context.Background(), "not-a-jwt")
	if err == nil {
		t.Fatal("garbage token verified")
	}
	if ae := apperr.As(err); ae.Code != apperr.CodeUnauthorized {
		t.Errorf("code = %s, want UNAUTHORIZED", ae.Code)
	}
}

func TestRefreshRotation(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newService(repo)
	ctx := context.Background()
	u := farmer(7)

	pair, err := svc.Issue(ctx, u, session.Meta{})
	if err != nil {
		t.Fatal(err)
	}

	uid, err := svc.UserIDForRefresh(pair.RefreshToken)
	if err != nil || uid != 7 {
		t.Fatalf("UserIDForRefresh = %d, %v", uid, err)
	}

	next, err := svc.Refresh(ctx, pair.RefreshToken, u, session.Meta{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken == pair.AccessToken {
		t.Error("access token not rotated")
	}

	// Single-generation: the old refresh token is dead.
	if _, err := svc.Refresh(ctx, pair.RefreshToken, u, session.Meta{}); err == nil {
		t.Error("spent refresh token accepted")
	}
}

func TestLogoutAndRevokeAll(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newService(repo)
	ctx := context.Background()
	u := farmer(9)

	pair, _ := svc.Issue(ctx, u, session.Meta{})
	if err := svc.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Verify(ctx, pair.AccessToken); err == nil {
		t.Error("token valid after logout")
	}

	pair2, _ := svc.Issue(ctx, u, session.Meta{})
	if err := svc.RevokeAll(ctx, u.ID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if _, err := svc.Verify(ctx, pair2.AccessToken); err == nil {
		t.Error("token valid after RevokeAll")
	}
}

func TestPurposeToken(t *testing.T) {
	issuer := session.NewTokenIssuer("test-secret", "https://auth.test")
	tok, err := issuer.IssuePurpose(5, users.RoleAgent, session.PurposePinChange, session.PinChangeTTL)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := issuer.ParsePurpose(tok, session.PurposePinChange)
	if err != nil || claims.UserID != 5 {
		t.Fatalf("ParsePurpose = %+v, %v", claims, err)
	}
	if _, err := issuer.ParsePurpose(tok, "refresh"); err == nil {
		t.Error("wrong purpose accepted")
	}
}

func TestAgentTokenTTL(t *testing.T) {
	issuer := session.NewTokenIssuer("test-secret", "https://auth.test")
	_, exp, err := issuer.IssueAccess(5, users.RoleAgent, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Now().Add(session.AgentAccessTTL)
	if exp.Before(want.Add(-time.Minute)) || exp.After(want.Add(time.Minute)) {
		t.Errorf("agent access expiry %v not ~7 days out", exp)
	}
}
