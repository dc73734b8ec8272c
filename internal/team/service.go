package team

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/credentials"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/sms"
	"github.com/agrimandi/auth-service/internal/users"
	"github.com/agrimandi/auth-service/internal/validate"
)

// teamRepo is the storage interface consumed by Service.
type teamRepo interface {
	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, orgID, membershipID int64) (*Membership, error)
	GetMembershipByUser(ctx context.Context, orgID, userID int64) (*Membership, error)
	HasMemberEmail(ctx context.Context, orgID int64, email string) (bool, error)
	ListMembers(ctx context.Context, orgID int64, f ListFilter) ([]*Membership, int, error)
	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetPendingInvitation(ctx context.Context, orgID int64, email string) (*Invitation, error)
	GetInvitation(ctx context.Context, orgID, invitationID int64) (*Invitation, error)
	GetInvitationByLookup(ctx context.Context, lookupHash string) (*Invitation, error)
	RefreshInvitation(ctx context.Context, id int64, tokenHash, lookupHash string, expiresAt time.Time) error
	Accept(ctx context.Context, inv *Invitation, u *users.User, fullName string) (*Membership, error)
	UpdateRole(ctx context.Context, orgID, membershipID int64, newRole MemberRole, changedBy int64) (*RoleChange, error)
	Deactivate(ctx context.Context, orgID, membershipID int64) error
	Delete(ctx context.Context, orgID, membershipID int64) error
}

type sessionIssuer interface {
	Issue(ctx context.Context, u *users.User, meta session.Meta) (*session.TokenPair, error)
}

// Service implements team membership management for buyer organizations.
type Service struct {
	repo     teamRepo
	sessions sessionIssuer
	sender   sms.Sender
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(repo teamRepo, sessions sessionIssuer, sender sms.Sender, logger *zap.Logger) *Service {
	return &Service{repo: repo, sessions: sessions, sender: sender, logger: logger}
}

// AddFoundingAdmin records the organization creator as its first ACTIVE
// ADMIN member. Called once, right after the buyer account is finalized.
func (s *Service) AddFoundingAdmin(ctx context.Context, orgID, userID int64, fullName, email string) (*Membership, error) {
	now := time.Now().UTC()
	m := &Membership{
		BuyerOrgID: orgID,
		UserID:     userID,
		FullName:   fullName,
		Email:      email,
		Role:       RoleAdmin,
		Status:     StatusActive,
		AcceptedAt: &now,
	}
	if err := s.repo.CreateMembership(ctx, m); err != nil {
		return nil, apperr.Wrap("create founding admin", err)
	}
	return m, nil
}

// requireActiveAdmin loads the caller's membership and asserts ACTIVE ADMIN.
func (s *Service) requireActiveAdmin(ctx context.Context, orgID, userID int64) (*Membership, error) {
	m, err := s.repo.GetMembershipByUser(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeUnauthorized, "not a member of this organization")
		}
		return nil, apperr.Wrap("load caller membership", err)
	}
	if m.Role != RoleAdmin || m.Status != StatusActive {
		return nil, apperr.New(apperr.CodeUnauthorized, "admin privileges required")
	}
	return m, nil
}

// Invite creates an invitation and dispatches its token best-effort.
func (s *Service) Invite(ctx context.Context, orgID int64, rawEmail, rawPhone string, role MemberRole, invitedBy int64) (*Invitation, error) {
	if _, err := s.requireActiveAdmin(ctx, orgID, invitedBy); err != nil {
		return nil, err
	}
	if !ValidRole(role) {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "invalid team role %q", role)
	}
	email, ok := validate.Email(rawEmail)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid email address")
	}
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}

	if exists, err := s.repo.HasMemberEmail(ctx, orgID, email); err != nil {
		return nil, apperr.Wrap("check member email", err)
	} else if exists {
		return nil, apperr.New(apperr.CodeDuplicateEmail, "this email already belongs to a team member")
	}
	if _, err := s.repo.GetPendingInvitation(ctx, orgID, email); err == nil {
		return nil, apperr.New(apperr.CodeDuplicateEmail, "an invitation for this email is already pending")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperr.Wrap("check pending invitation", err)
	}

	raw, tokenHash, lookupHash, err := newInvitationToken()
	if err != nil {
		return nil, err
	}
	inv := &Invitation{
		BuyerOrgID: orgID,
		Email:      email,
		Phone:      phone,
		Role:       role,
		TokenHash:  tokenHash,
		LookupHash: lookupHash,
		ExpiresAt:  time.Now().UTC().Add(InvitationTTL),
		InvitedBy:  invitedBy,
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return nil, apperr.Wrap("store invitation", err)
	}

	s.dispatchInvitation(ctx, inv, raw)
	s.logger.Info("team invitation created",
		zap.Int64("org_id", orgID),
		zap.String("email", email),
		zap.String("role", string(role)),
	)
	return inv, nil
}

func newInvitationToken() (raw, tokenHash, lookupHash string, err error) {
	raw, err = credentials.RandomToken(32)
	if err != nil {
		return "", "", "", apperr.Wrap("draw invitation token", err)
	}
	tokenHash, err = credentials.HashPassword(raw)
	if err != nil {
		return "", "", "", apperr.Wrap("hash invitation token", err)
	}
	return raw, tokenHash, credentials.HashToken(raw), nil
}

func (s *Service) dispatchInvitation(ctx context.Context, inv *Invitation, raw string) {
	if s.sender == nil {
		return
	}
	msg := fmt.Sprintf("You have been invited to join a team on AgriMandi. Your invitation code is %s. Valid for 24 hours.", raw)
	if err := s.sender.Send(ctx, inv.Phone, msg); err != nil {
		s.logger.Warn("invitation dispatch failed", zap.Int64("invitation_id", inv.ID), zap.Error(err))
	}
}

// findByToken resolves a raw token to its invitation: indexed SHA-256
// lookup, then bcrypt as the authoritative check.
func (s *Service) findByToken(ctx context.Context, rawToken string) (*Invitation, error) {
	inv, err := s.repo.GetInvitationByLookup(ctx, credentials.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeInvitationExpired, "invalid or expired invitation")
		}
		return nil, apperr.Wrap("lookup invitation", err)
	}
	if !credentials.VerifyPassword(rawToken, inv.TokenHash) {
		return nil, apperr.New(apperr.CodeInvitationExpired, "invalid or expired invitation")
	}
	return inv, nil
}

// ValidateToken reports the organization, email, and role an invitation
// token grants, without redeeming it.
func (s *Service) ValidateToken(ctx context.Context, rawToken string) (*Invitation, error) {
	return s.findByToken(ctx, rawToken)
}

// AcceptResult bundles the new member, their user record, and tokens.
type AcceptResult struct {
	User       *users.User
	Membership *Membership
	Tokens     *session.TokenPair
}

// Accept redeems an invitation: password policy, transactional
// user+membership creation, and a full session.
func (s *Service) Accept(ctx context.Context, rawToken, fullName, password string, meta session.Meta) (*AcceptResult, error) {
	inv, err := s.findByToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if _, ok := validate.Name(fullName); !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "name must be at least 2 characters")
	}
	if res := credentials.CheckPassword(password); !res.Valid {
		return nil, apperr.New(apperr.CodeWeakPassword, "password does not meet the policy").WithRules(res.FailedRules)
	}
	hash, err := credentials.HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap("hash password", err)
	}

	u := &users.User{
		Phone:        inv.Phone,
		Email:        &inv.Email,
		Role:         users.RoleBuyer,
		PasswordHash: &hash,
		IsActive:     true,
		Language:     "en",
	}
	m, err := s.repo.Accept(ctx, inv, u, fullName)
	if err != nil {
		if errors.Is(err, ErrAlreadyAccepted) {
			return nil, apperr.New(apperr.CodeAlreadyAccepted, "invitation already accepted")
		}
		return nil, apperr.Wrap("accept invitation", err)
	}
	s.logger.Info("team invitation accepted",
		zap.Int64("org_id", inv.BuyerOrgID),
		zap.Int64("user_id", u.ID),
	)

	meta.BuyerOrgID = inv.BuyerOrgID
	pair, err := s.sessions.Issue(ctx, u, meta)
	if err != nil {
		return nil, err
	}
	return &AcceptResult{User: u, Membership: m, Tokens: pair}, nil
}

// List returns a page of the organization's members. Any member may list.
func (s *Service) List(ctx context.Context, orgID, callerUserID int64, f ListFilter) ([]*Membership, int, error) {
	if _, err := s.repo.GetMembershipByUser(ctx, orgID, callerUserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, 0, apperr.New(apperr.CodeUnauthorized, "not a member of this organization")
		}
		return nil, 0, apperr.Wrap("load caller membership", err)
	}
	if f.Role != "" && !ValidRole(f.Role) {
		return nil, 0, apperr.Newf(apperr.CodeInvalidArgument, "invalid team role %q", f.Role)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 50 {
		f.Limit = 50
	}
	members, total, err := s.repo.ListMembers(ctx, orgID, f)
	if err != nil {
		return nil, 0, apperr.Wrap("list members", err)
	}
	return members, total, nil
}

// UpdateRole changes a member's role. The last-admin invariant is enforced
// in the repository transaction.
func (s *Service) UpdateRole(ctx context.Context, orgID, membershipID int64, newRole MemberRole, changedBy int64) (*RoleChange, error) {
	if _, err := s.requireActiveAdmin(ctx, orgID, changedBy); err != nil {
		return nil, err
	}
	if !ValidRole(newRole) {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "invalid team role %q", newRole)
	}
	change, err := s.repo.UpdateRole(ctx, orgID, membershipID, newRole, changedBy)
	if err != nil {
		switch {
		case errors.Is(err, ErrLastAdmin):
			return nil, apperr.New(apperr.CodeLastAdmin, "organization must keep at least one active admin")
		case errors.Is(err, ErrNotFound):
			return nil, apperr.New(apperr.CodeNotFound, "team member not found")
		}
		return nil, apperr.Wrap("update member role", err)
	}
	return change, nil
}

// Deactivate sets a member INACTIVE. Self-deactivation is forbidden.
func (s *Service) Deactivate(ctx context.Context, orgID, membershipID, byUserID int64) error {
	return s.removeLike(ctx, orgID, membershipID, byUserID, s.repo.Deactivate)
}

// Delete removes a member. Self-deletion is forbidden.
func (s *Service) Delete(ctx context.Context, orgID, membershipID, byUserID int64) error {
	return s.removeLike(ctx, orgID, membershipID, byUserID, s.repo.Delete)
}

func (s *Service) removeLike(ctx context.Context, orgID, membershipID, byUserID int64, op func(context.Context, int64, int64) error) error {
	if _, err := s.requireActiveAdmin(ctx, orgID, byUserID); err != nil {
		return err
	}
	target, err := s.repo.GetMembership(ctx, orgID, membershipID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "team member not found")
		}
		return apperr.Wrap("load target membership", err)
	}
	if target.UserID == byUserID {
		return apperr.New(apperr.CodeSelfAction, "cannot remove or deactivate yourself")
	}
	if err := op(ctx, orgID, membershipID); err != nil {
		switch {
		case errors.Is(err, ErrLastAdmin):
			return apperr.New(apperr.CodeLastAdmin, "organization must keep at least one active admin")
		case errors.Is(err, ErrNotFound):
			return apperr.New(apperr.CodeNotFound, "team member not found")
		}
		return apperr.Wrap("mutate membership", err)
	}
	return nil
}

// Resend regenerates an invitation's token and expiry and dispatches it
// again.
func (s *Service) Resend(ctx context.Context, orgID, invitationID, byUserID int64) (*Invitation, error) {
	if _, err := s.requireActiveAdmin(ctx, orgID, byUserID); err != nil {
		return nil, err
	}
	inv, err := s.repo.GetInvitation(ctx, orgID, invitationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "invitation not found")
		}
		return nil, apperr.Wrap("load invitation", err)
	}

	raw, tokenHash, lookupHash, err := newInvitationToken()
	if err != nil {
		return nil, err
	}
	expires := time.Now().UTC().Add(InvitationTTL)
	if err := s.repo.RefreshInvitation(ctx, inv.ID, tokenHash, lookupHash, expires); err != nil {
		return nil, apperr.Wrap("refresh invitation", err)
	}
	inv.TokenHash = tokenHash
	inv.LookupHash = lookupHash
	inv.ExpiresAt = expires
	inv.AcceptedAt = nil

	s.dispatchInvitation(ctx, inv, raw)
	return inv, nil
}
