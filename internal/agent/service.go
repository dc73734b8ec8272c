package agent

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
	"github.com/agrimandi/auth-service/internal/zones"
)

// agentRepo is the storage interface consumed by Service.
type agentRepo interface {
	Create(ctx context.Context, u *users.User, p *Profile, za *ZoneAssignment, stateCode string) error
	GetByID(ctx context.Context, id int64) (*Profile, error)
	GetByUserID(ctx context.Context, userID int64) (*Profile, error)
	CompleteTraining(ctx context.Context, profileID int64) error
	Deactivate(ctx context.Context, profileID int64, reason string) error
	CurrentAssignment(ctx context.Context, agentID int64) (*ZoneAssignment, error)
	ReassignZone(ctx context.Context, agentID, newZoneID, byUser int64, effectiveFrom time.Time) (*ZoneAssignment, error)
	List(ctx context.Context, f ListFilter) ([]*Summary, int, error)
}

// userRepo is the slice of the users repository the agent flow needs.
type userRepo interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
	GetByPhone(ctx context.Context, phone string) (*users.User, error)
	SetPINHash(ctx context.Context, userID int64, hash string) error
	TouchLastLogin(ctx context.Context, userID int64) error
}

// zoneRepo is the slice of the zones repository the agent flow needs:
// existence checks, the STATE ancestor for employee ids, and subtree sizes
// for the dashboard.
type zoneRepo interface {
	GetByID(ctx context.Context, id int64) (*zones.Zone, error)
	RootState(ctx context.Context, zoneID int64) (*zones.Zone, error)
	Subtree(ctx context.Context, rootID int64) ([]*zones.Zone, error)
}

// sessionIssuer abstracts session issuance.
type sessionIssuer interface {
	Issue(ctx context.Context, u *users.User, meta session.Meta) (*session.TokenPair, error)
}

// Service implements agent provisioning, first login, and lifecycle
// transitions.
type Service struct {
	repo     agentRepo
	users    userRepo
	zones    zoneRepo
	sessions sessionIssuer
	tokens   *session.TokenIssuer
	sender   sms.Sender
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(
	repo agentRepo,
	ur userRepo,
	zr zoneRepo,
	sessions sessionIssuer,
	tokens *session.TokenIssuer,
	sender sms.Sender,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:     repo,
		users:    ur,
		zones:    zr,
		sessions: sessions,
		tokens:   tokens,
		sender:   sender,
		logger:   logger,
	}
}

// CreateInput is the district manager's provisioning request.
type CreateInput struct {
	FullName       string
	Phone          string
	ZoneID         int64
	StartDate      time.Time
	EmploymentType EmploymentType
	CreatedBy      int64
}

// Create provisions a field agent: user + profile + zone assignment in one
// transaction, with a 72-hour temporary PIN dispatched over SMS.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Profile, error) {
	name, ok := validate.Name(in.FullName)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "name must be at least 2 characters")
	}
	phone, ok := validate.Phone(in.Phone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	if !ValidEmploymentType(in.EmploymentType) {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "invalid employment type %q", in.EmploymentType)
	}
	if _, err := s.users.GetByPhone(ctx, phone); err == nil {
		return nil, apperr.New(apperr.CodePhoneExists, "mobile number already registered")
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, apperr.Wrap("lookup phone", err)
	}
	if _, err := s.zones.GetByID(ctx, in.ZoneID); err != nil {
		if errors.Is(err, zones.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "zone not found")
		}
		return nil, apperr.Wrap("lookup zone", err)
	}
	state, err := s.zones.RootState(ctx, in.ZoneID)
	if err != nil {
		return nil, apperr.Wrap("resolve state for zone", err)
	}

	tempPIN, err := credentials.GenerateTempPIN()
	if err != nil {
		return nil, apperr.Wrap("generate temp pin", err)
	}
	tempHash, err := credentials.HashPIN(tempPIN)
	if err != nil {
		return nil, apperr.Wrap("hash temp pin", err)
	}

	now := time.Now().UTC()
	expires := now.Add(TempPINTTL)
	u := &users.User{
		Phone:        phone,
		Role:         users.RoleAgent,
		TempPINHash:  &tempHash,
		PINExpiresAt: &expires,
		IsActive:     true,
		Language:     "en",
	}
	startDate := in.StartDate
	if startDate.IsZero() {
		startDate = now
	}
	p := &Profile{
		FullName:       name,
		EmploymentType: in.EmploymentType,
		Status:         StatusTraining,
		StartDate:      startDate,
		CreatedBy:      in.CreatedBy,
	}
	za := &ZoneAssignment{
		ZoneID:        in.ZoneID,
		AssignedBy:    in.CreatedBy,
		EffectiveFrom: startDate,
	}
	if err := s.repo.Create(ctx, u, p, za, state.Code); err != nil {
		if errors.Is(err, users.ErrDuplicatePhone) {
			return nil, apperr.New(apperr.CodePhoneExists, "mobile number already registered")
		}
		return nil, apperr.Wrap("create agent", err)
	}
	s.logger.Info("agent provisioned",
		zap.Int64("user_id", u.ID),
		zap.String("employee_id", p.EmployeeID),
		zap.Int64("zone_id", in.ZoneID))

	s.notify(ctx, phone, fmt.Sprintf(
		"Welcome to AgriMandi, %s. Your agent ID is %s. Log in with temporary PIN %s within 72 hours.",
		name, p.EmployeeID, tempPIN))

	return p, nil
}

// FirstLoginResult is returned after a successful temp-PIN login: a
// 15-minute token authorizing only the PIN change.
type FirstLoginResult struct {
	RequiresPinChange bool
	TemporaryToken    string
	ExpiresIn         int
}

// FirstLogin authenticates the temporary PIN and hands back the
// purpose-bound pin_change token.
func (s *Service) FirstLogin(ctx context.Context, rawPhone, tempPIN string) (*FirstLoginResult, error) {
	phone, ok := validate.Phone(rawPhone)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, "invalid mobile number")
	}
	if !credentials.CheckTempPIN(tempPIN) {
		return nil, apperr.New(apperr.CodeInvalidPIN, "temporary PIN must be exactly 6 digits")
	}
	u, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.New(apperr.CodePhoneNotRegistered, "mobile number not registered")
		}
		return nil, apperr.Wrap("lookup phone", err)
	}
	if u.Role != users.RoleAgent || !u.IsActive {
		return nil, apperr.New(apperr.CodeUnauthorized, "not an active agent account")
	}
	if u.TempPINHash == nil {
		return nil, apperr.New(apperr.CodeInvalidPIN, "no temporary PIN pending for this account")
	}
	if u.PINExpiresAt != nil && u.PINExpiresAt.Before(time.Now().UTC()) {
		return nil, apperr.New(apperr.CodePINExpired, "temporary PIN has expired, contact your district manager")
	}
	if !credentials.VerifyPIN(tempPIN, *u.TempPINHash) {
		return nil, apperr.New(apperr.CodeInvalidPIN, "incorrect temporary PIN")
	}

	token, err := s.tokens.IssuePurpose(u.ID, u.Role, session.PurposePinChange, session.PinChangeTTL)
	if err != nil {
		return nil, apperr.Wrap("issue pin change token", err)
	}
	return &FirstLoginResult{
		RequiresPinChange: true,
		TemporaryToken:    token,
		ExpiresIn:         int(session.PinChangeTTL.Seconds()),
	}, nil
}

// SetPinResult carries the full session issued once the permanent PIN is
// set, plus whether the agent still has training outstanding.
type SetPinResult struct {
	User             *users.User
	Tokens           *session.TokenPair
	RequiresTraining bool
}

// SetPin exchanges the pin_change token for a permanent PIN and a normal
// session. The temporary PIN fields are cleared atomically with the store.
func (s *Service) SetPin(ctx context.Context, tempToken, newPIN, confirmPIN string) (*SetPinResult, error) {
	claims, err := s.tokens.ParsePurpose(tempToken, session.PurposePinChange)
	if err != nil {
		return nil, apperr.New(apperr.CodeTokenExpired, "invalid or expired pin change token")
	}
	if ok, reason := credentials.CheckPIN(newPIN); !ok {
		return nil, apperr.New(apperr.CodeInvalidArgument, pinMessage(reason))
	}
	if newPIN != confirmPIN {
		return nil, apperr.New(apperr.CodeInvalidArgument, "PIN and confirmation do not match")
	}
	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "account not found")
		}
		return nil, apperr.Wrap("load user", err)
	}

	hash, err := credentials.HashPIN(newPIN)
	if err != nil {
		return nil, apperr.Wrap("hash pin", err)
	}
	if err := s.users.SetPINHash(ctx, u.ID, hash); err != nil {
		return nil, apperr.Wrap("store pin", err)
	}

	p, err := s.repo.GetByUserID(ctx, u.ID)
	if err != nil {
		return nil, apperr.Wrap("load agent profile", err)
	}
	if err := s.users.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("touch last login", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	pair, err := s.sessions.Issue(ctx, u, session.Meta{})
	if err != nil {
		return nil, err
	}
	return &SetPinResult{
		User:             u,
		Tokens:           pair,
		RequiresTraining: p.Status == StatusTraining,
	}, nil
}

// TrainingResult reports the training transition outcome.
type TrainingResult struct {
	Status  Status
	Message string
}

// CompleteTraining flips TRAINING to ACTIVE, unlocking the dashboard.
// Calling it again reports completion without error.
func (s *Service) CompleteTraining(ctx context.Context, userID int64) (*TrainingResult, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "agent not found")
		}
		return nil, apperr.Wrap("load agent profile", err)
	}
	switch p.Status {
	case StatusActive:
		return &TrainingResult{Status: StatusActive, Message: "training already completed"}, nil
	case StatusInactive:
		return nil, apperr.New(apperr.CodeInvalidState, "agent is deactivated")
	}
	if err := s.repo.CompleteTraining(ctx, p.ID); err != nil {
		if errors.Is(err, ErrInvalidState) {
			// Lost a race with a concurrent call; same outcome.
			return &TrainingResult{Status: StatusActive, Message: "training already completed"}, nil
		}
		return nil, apperr.Wrap("complete training", err)
	}
	s.logger.Info("agent training completed", zap.Int64("user_id", userID), zap.String("employee_id", p.EmployeeID))
	return &TrainingResult{Status: StatusActive, Message: "training completed"}, nil
}

// Deactivate transitions an agent to INACTIVE with a required reason and
// notifies the agent best-effort.
func (s *Service) Deactivate(ctx context.Context, agentID int64, reason string, byUser int64) error {
	if reason == "" {
		return apperr.New(apperr.CodeInvalidArgument, "deactivation reason is required")
	}
	p, err := s.repo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "agent not found")
		}
		return apperr.Wrap("load agent profile", err)
	}
	if err := s.repo.Deactivate(ctx, p.ID, reason); err != nil {
		if errors.Is(err, ErrInvalidState) {
			return apperr.New(apperr.CodeInvalidState, "agent is already deactivated")
		}
		return apperr.Wrap("deactivate agent", err)
	}
	s.logger.Info("agent deactivated",
		zap.Int64("agent_id", p.ID),
		zap.Int64("by_user", byUser),
		zap.String("reason", reason))

	if u, err := s.users.GetByID(ctx, p.UserID); err == nil {
		s.notify(ctx, u.Phone, fmt.Sprintf(
			"Your AgriMandi agent account %s has been deactivated. Contact your district manager for details.",
			p.EmployeeID))
	}
	return nil
}

// ReassignZone moves the agent's current assignment to a new zone.
func (s *Service) ReassignZone(ctx context.Context, agentID, newZoneID, byUser int64, effectiveFrom time.Time) (*ZoneAssignment, error) {
	if _, err := s.zones.GetByID(ctx, newZoneID); err != nil {
		if errors.Is(err, zones.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "zone not found")
		}
		return nil, apperr.Wrap("lookup zone", err)
	}
	if _, err := s.repo.GetByID(ctx, agentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "agent not found")
		}
		return nil, apperr.Wrap("load agent profile", err)
	}
	current, err := s.repo.CurrentAssignment(ctx, agentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, apperr.Wrap("load current assignment", err)
	}
	if current != nil && current.ZoneID == newZoneID {
		return nil, apperr.New(apperr.CodeInvalidArgument, "agent is already assigned to this zone")
	}
	if effectiveFrom.IsZero() {
		effectiveFrom = time.Now().UTC()
	}
	za, err := s.repo.ReassignZone(ctx, agentID, newZoneID, byUser, effectiveFrom)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "agent has no current assignment")
		}
		return nil, apperr.Wrap("reassign zone", err)
	}
	return za, nil
}

// Page is one page of the agent roster.
type Page struct {
	Agents []*Summary `json:"agents"`
	Total  int        `json:"total"`
	Page   int        `json:"page"`
	Limit  int        `json:"limit"`
}

// List returns the agent roster with clamped pagination.
func (s *Service) List(ctx context.Context, f ListFilter) (*Page, error) {
	if f.Status != "" {
		switch f.Status {
		case StatusTraining, StatusActive, StatusInactive:
		default:
			return nil, apperr.Newf(apperr.CodeInvalidArgument, "invalid status %q", f.Status)
		}
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
	agents, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperr.Wrap("list agents", err)
	}
	return &Page{Agents: agents, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Detail is the full agent view: profile, phone, and current zone.
type Detail struct {
	Profile       *Profile    `json:"profile"`
	Phone         string      `json:"phone"`
	Zone          *zones.Zone `json:"zone,omitempty"`
	AssignedSince *time.Time  `json:"assigned_since,omitempty"`
}

// Get returns the detail view for one agent.
func (s *Service) Get(ctx context.Context, agentID int64) (*Detail, error) {
	p, err := s.repo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "agent not found")
		}
		return nil, apperr.Wrap("load agent profile", err)
	}
	return s.detail(ctx, p)
}

// Dashboard is the agent's own view once training is complete: their
// profile, current zone, and how much of the tree the zone covers.
type Dashboard struct {
	Profile       *Profile    `json:"profile"`
	Phone         string      `json:"phone"`
	Zone          *zones.Zone `json:"zone,omitempty"`
	AssignedSince *time.Time  `json:"assigned_since,omitempty"`
	ZonesCovered  int         `json:"zones_covered"`
}

// GetDashboard returns the dashboard for the calling agent. Training must
// be complete first.
func (s *Service) GetDashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "agent not found")
		}
		return nil, apperr.Wrap("load agent profile", err)
	}
	switch p.Status {
	case StatusTraining:
		return nil, apperr.New(apperr.CodeInvalidState, "complete training to access the dashboard")
	case StatusInactive:
		return nil, apperr.New(apperr.CodeUnauthorized, "agent account is deactivated")
	}

	d, err := s.detail(ctx, p)
	if err != nil {
		return nil, err
	}
	dash := &Dashboard{
		Profile:       d.Profile,
		Phone:         d.Phone,
		Zone:          d.Zone,
		AssignedSince: d.AssignedSince,
	}
	if d.Zone != nil {
		if sub, err := s.zones.Subtree(ctx, d.Zone.ID); err != nil {
			s.logger.Warn("load zone subtree", zap.Int64("zone_id", d.Zone.ID), zap.Error(err))
		} else {
			dash.ZonesCovered = len(sub)
		}
	}
	return dash, nil
}

// detail assembles the common profile + phone + zone projection.
func (s *Service) detail(ctx context.Context, p *Profile) (*Detail, error) {
	d := &Detail{Profile: p}
	if u, err := s.users.GetByID(ctx, p.UserID); err == nil {
		d.Phone = u.Phone
	}
	za, err := s.repo.CurrentAssignment(ctx, p.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return d, nil
		}
		return nil, apperr.Wrap("load current assignment", err)
	}
	d.AssignedSince = &za.EffectiveFrom
	if z, err := s.zones.GetByID(ctx, za.ZoneID); err == nil {
		d.Zone = z
	}
	return d, nil
}

// notify sends a best-effort SMS; delivery failures are logged, never
// surfaced.
func (s *Service) notify(ctx context.Context, phone, message string) {
	if err := s.sender.Send(ctx, phone, message); err != nil {
		s.logger.Warn("sms dispatch failed", zap.String("phone", phone), zap.Error(err))
	}
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
