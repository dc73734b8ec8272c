package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrimandi/auth-service/internal/users"
)

// ErrNotFound is returned when an agent lookup finds no matching record.
var ErrNotFound = errors.New("agent not found")

// ErrInvalidState is returned when a guarded status transition matches no
// row, meaning the profile already left the expected state.
var ErrInvalidState = errors.New("agent not in expected state")

// Repository persists agent profiles and zone assignments.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, user_id, full_name, employee_id, employment_type, status,
	start_date, created_by, training_completed_at, deactivated_at, deactivation_reason,
	created_at, updated_at`

// employeeIDAttempts bounds the retry loop against concurrent provisioning
// racing for the same sequence number.
const employeeIDAttempts = 3

// Create provisions an agent in one transaction: the AGENT user, the
// profile with a state-scoped employee id, and the initial zone assignment.
// The employee id unique constraint arbitrates concurrent creations; losers
// retry with the next sequence number.
func (r *Repository) Create(ctx context.Context, u *users.User, p *Profile, za *ZoneAssignment, stateCode string) error {
	var lastErr error
	for attempt := 0; attempt < employeeIDAttempts; attempt++ {
		lastErr = r.create(ctx, u, p, za, stateCode)
		if lastErr == nil || !isUniqueViolation(lastErr, "agent_profiles_employee_id_key") {
			return lastErr
		}
	}
	return lastErr
}

func (r *Repository) create(ctx context.Context, u *users.User, p *Profile, za *ZoneAssignment, stateCode string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	err = tx.QueryRow(ctx, `
		INSERT INTO users (phone, role, temp_pin_hash, pin_expires_at, is_active, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		u.Phone, u.Role, u.TempPINHash, u.PINExpiresAt, u.IsActive, u.Language, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err, "users_phone_key") {
			return users.ErrDuplicatePhone
		}
		return fmt.Errorf("insert agent user: %w", err)
	}

	employeeID, err := nextEmployeeID(ctx, tx, stateCode)
	if err != nil {
		return err
	}

	p.UserID = u.ID
	p.EmployeeID = employeeID
	p.CreatedAt = now
	p.UpdatedAt = now
	err = tx.QueryRow(ctx, `
		INSERT INTO agent_profiles (user_id, full_name, employee_id, employment_type, status,
			start_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		p.UserID, p.FullName, p.EmployeeID, p.EmploymentType, p.Status,
		p.StartDate, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert agent profile: %w", err)
	}

	za.AgentID = p.ID
	za.CreatedAt = now
	err = tx.QueryRow(ctx, `
		INSERT INTO agent_zone_assignments (agent_id, zone_id, assigned_by, effective_from, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		za.AgentID, za.ZoneID, za.AssignedBy, za.EffectiveFrom, za.CreatedAt,
	).Scan(&za.ID)
	if err != nil {
		return fmt.Errorf("insert zone assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// nextEmployeeID computes AGT-<state>-<NNN> from the highest sequence number
// already issued for the state.
func nextEmployeeID(ctx context.Context, tx pgx.Tx, stateCode string) (string, error) {
	prefix := "AGT-" + stateCode + "-"
	var seq int
	q := `
		SELECT COALESCE(MAX(SUBSTRING(employee_id FROM '[0-9]+$')::int), 0) + 1
		FROM agent_profiles WHERE employee_id LIKE $1`
	if err := tx.QueryRow(ctx, q, prefix+"%").Scan(&seq); err != nil {
		return "", fmt.Errorf("next employee sequence: %w", err)
	}
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// GetByID retrieves a profile by its own id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM agent_profiles WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// GetByUserID retrieves the profile owned by a user.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM agent_profiles WHERE user_id = $1`
	return r.scanOne(ctx, q, userID)
}

// CompleteTraining flips TRAINING to ACTIVE. Matching no row means the
// profile already left TRAINING.
func (r *Repository) CompleteTraining(ctx context.Context, profileID int64) error {
	now := time.Now().UTC()
	q := `
		UPDATE agent_profiles
		SET status = $2, training_completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`
	tag, err := r.db.Exec(ctx, q, profileID, StatusActive, now, StatusTraining)
	if err != nil {
		return fmt.Errorf("complete training: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Deactivate transitions a profile to INACTIVE with the reason and
// timestamp. Matching no row means it was already inactive.
func (r *Repository) Deactivate(ctx context.Context, profileID int64, reason string) error {
	now := time.Now().UTC()
	q := `
		UPDATE agent_profiles
		SET status = $2, deactivated_at = $3, deactivation_reason = $4, updated_at = $3
		WHERE id = $1 AND status <> $2`
	tag, err := r.db.Exec(ctx, q, profileID, StatusInactive, now, reason)
	if err != nil {
		return fmt.Errorf("deactivate agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

const assignmentColumns = `id, agent_id, zone_id, assigned_by, effective_from, effective_to, created_at`

// CurrentAssignment returns the open-ended assignment for an agent.
func (r *Repository) CurrentAssignment(ctx context.Context, agentID int64) (*ZoneAssignment, error) {
	q := `SELECT ` + assignmentColumns + ` FROM agent_zone_assignments
		WHERE agent_id = $1 AND effective_to IS NULL`
	var za ZoneAssignment
	err := r.db.QueryRow(ctx, q, agentID).Scan(
		&za.ID, &za.AgentID, &za.ZoneID, &za.AssignedBy,
		&za.EffectiveFrom, &za.EffectiveTo, &za.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	return &za, nil
}

// ReassignZone closes the current assignment at effectiveFrom and opens the
// new one in a single transaction, preserving the one-current-row invariant.
func (r *Repository) ReassignZone(ctx context.Context, agentID, newZoneID, byUser int64, effectiveFrom time.Time) (*ZoneAssignment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		UPDATE agent_zone_assignments SET effective_to = $2
		WHERE agent_id = $1 AND effective_to IS NULL`,
		agentID, effectiveFrom,
	)
	if err != nil {
		return nil, fmt.Errorf("close current assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	za := &ZoneAssignment{
		AgentID:       agentID,
		ZoneID:        newZoneID,
		AssignedBy:    byUser,
		EffectiveFrom: effectiveFrom,
		CreatedAt:     time.Now().UTC(),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO agent_zone_assignments (agent_id, zone_id, assigned_by, effective_from, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		za.AgentID, za.ZoneID, za.AssignedBy, za.EffectiveFrom, za.CreatedAt,
	).Scan(&za.ID)
	if err != nil {
		return nil, fmt.Errorf("open new assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return za, nil
}

// List returns a page of the agent roster with phone and current zone,
// newest first, plus the total count before pagination.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]*Summary, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND p.status = $%d", len(args))
	}
	if f.ZoneID != 0 {
		args = append(args, f.ZoneID)
		where += fmt.Sprintf(" AND a.zone_id = $%d", len(args))
	}

	base := `
		FROM agent_profiles p
		JOIN users u ON u.id = p.user_id
		JOIN agent_zone_assignments a ON a.agent_id = p.id AND a.effective_to IS NULL
		JOIN zones z ON z.id = a.zone_id `

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) `+base+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agents: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	q := fmt.Sprintf(`
		SELECT p.id, p.user_id, p.full_name, p.employee_id, p.employment_type, p.status,
			p.start_date, p.created_by, p.training_completed_at, p.deactivated_at,
			p.deactivation_reason, p.created_at, p.updated_at,
			u.phone, z.id, z.name
		%s%s
		ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`,
		base, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var p Profile
		var s Summary
		err := rows.Scan(
			&p.ID, &p.UserID, &p.FullName, &p.EmployeeID, &p.EmploymentType, &p.Status,
			&p.StartDate, &p.CreatedBy, &p.TrainingCompletedAt, &p.DeactivatedAt,
			&p.DeactivationReason, &p.CreatedAt, &p.UpdatedAt,
			&s.Phone, &s.ZoneID, &s.ZoneName,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan agent row: %w", err)
		}
		s.Profile = &p
		out = append(out, &s)
	}
	return out, total, rows.Err()
}

func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&p.ID, &p.UserID, &p.FullName, &p.EmployeeID, &p.EmploymentType, &p.Status,
		&p.StartDate, &p.CreatedBy, &p.TrainingCompletedAt, &p.DeactivatedAt,
		&p.DeactivationReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan agent profile: %w", err)
	}
	return &p, nil
}
