package team

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrimandi/auth-service/internal/users"
)

// ErrNotFound is returned when a membership or invitation lookup finds
// nothing.
var ErrNotFound = errors.New("team record not found")

// ErrLastAdmin is returned when a mutation would leave an organization with
// no active admin.
var ErrLastAdmin = errors.New("organization must keep at least one active admin")

// ErrAlreadyAccepted is returned when an invitation has already been
// redeemed.
var ErrAlreadyAccepted = errors.New("invitation already accepted")

// Repository persists memberships, invitations, and the role-change audit
// trail.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const membershipColumns = `id, buyer_org_id, user_id, full_name, email, role, status,
	invited_by, accepted_at, created_at, updated_at`

// CreateMembership inserts a membership row. Used for the founding admin at
// organization creation.
func (r *Repository) CreateMembership(ctx context.Context, m *Membership) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	q := `
		INSERT INTO team_memberships (buyer_org_id, user_id, full_name, email, role, status,
			invited_by, accepted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	err := r.db.QueryRow(ctx, q,
		m.BuyerOrgID, m.UserID, m.FullName, m.Email, m.Role, m.Status,
		m.InvitedBy, m.AcceptedAt, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// GetMembership retrieves one membership scoped to its organization.
func (r *Repository) GetMembership(ctx context.Context, orgID, membershipID int64) (*Membership, error) {
	q := `SELECT ` + membershipColumns + ` FROM team_memberships WHERE buyer_org_id = $1 AND id = $2`
	return scanMembership(r.db.QueryRow(ctx, q, orgID, membershipID))
}

// GetMembershipByUser retrieves a user's membership in an organization.
func (r *Repository) GetMembershipByUser(ctx context.Context, orgID, userID int64) (*Membership, error) {
	q := `SELECT ` + membershipColumns + ` FROM team_memberships WHERE buyer_org_id = $1 AND user_id = $2`
	return scanMembership(r.db.QueryRow(ctx, q, orgID, userID))
}

// HasMemberEmail reports whether the organization already has a member with
// this email.
func (r *Repository) HasMemberEmail(ctx context.Context, orgID int64, email string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM team_memberships WHERE buyer_org_id = $1 AND email = $2)`
	if err := r.db.QueryRow(ctx, q, orgID, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check member email: %w", err)
	}
	return exists, nil
}

// ListMembers returns a page of memberships with the total count before
// pagination.
func (r *Repository) ListMembers(ctx context.Context, orgID int64, f ListFilter) ([]*Membership, int, error) {
	where := `WHERE buyer_org_id = $1`
	args := []any{orgID}
	if f.Role != "" {
		args = append(args, f.Role)
		where += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(" AND (full_name ILIKE $%d OR email ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM team_memberships `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	q := fmt.Sprintf(`SELECT %s FROM team_memberships %s ORDER BY created_at LIMIT $%d OFFSET $%d`,
		membershipColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*Membership, error) {
	var m Membership
	err := row.Scan(
		&m.ID, &m.BuyerOrgID, &m.UserID, &m.FullName, &m.Email, &m.Role, &m.Status,
		&m.InvitedBy, &m.AcceptedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	return &m, nil
}

// ─── Invitations ────────────────────────────────────────────────────────────

const invitationColumns = `id, buyer_org_id, email, phone, role, token_hash, lookup_hash,
	expires_at, accepted_at, invited_by, created_at`

// CreateInvitation inserts an invitation row.
func (r *Repository) CreateInvitation(ctx context.Context, inv *Invitation) error {
	inv.CreatedAt = time.Now().UTC()
	q := `
		INSERT INTO team_invitations (buyer_org_id, email, phone, role, token_hash, lookup_hash,
			expires_at, invited_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := r.db.QueryRow(ctx, q,
		inv.BuyerOrgID, inv.Email, inv.Phone, inv.Role, inv.TokenHash, inv.LookupHash,
		inv.ExpiresAt, inv.InvitedBy, inv.CreatedAt,
	).Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// GetPendingInvitation finds an unaccepted, unexpired invitation for
// (org, email).
func (r *Repository) GetPendingInvitation(ctx context.Context, orgID int64, email string) (*Invitation, error) {
	q := `
		SELECT ` + invitationColumns + ` FROM team_invitations
		WHERE buyer_org_id = $1 AND email = $2 AND accepted_at IS NULL AND expires_at > now()`
	return r.scanInvitation(ctx, q, orgID, email)
}

// GetInvitation retrieves an invitation by id within its organization.
func (r *Repository) GetInvitation(ctx context.Context, orgID, invitationID int64) (*Invitation, error) {
	q := `SELECT ` + invitationColumns + ` FROM team_invitations WHERE buyer_org_id = $1 AND id = $2`
	return r.scanInvitation(ctx, q, orgID, invitationID)
}

// GetInvitationByLookup finds an unaccepted, unexpired invitation by the
// SHA-256 of its raw token.
func (r *Repository) GetInvitationByLookup(ctx context.Context, lookupHash string) (*Invitation, error) {
	q := `
		SELECT ` + invitationColumns + ` FROM team_invitations
		WHERE lookup_hash = $1 AND accepted_at IS NULL AND expires_at > now()`
	return r.scanInvitation(ctx, q, lookupHash)
}

// RefreshInvitation swaps in a regenerated token and a fresh expiry, and
// clears any acceptance mark.
func (r *Repository) RefreshInvitation(ctx context.Context, id int64, tokenHash, lookupHash string, expiresAt time.Time) error {
	q := `
		UPDATE team_invitations
		SET token_hash = $2, lookup_hash = $3, expires_at = $4, accepted_at = NULL
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, tokenHash, lookupHash, expiresAt)
	if err != nil {
		return fmt.Errorf("refresh invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) scanInvitation(ctx context.Context, q string, args ...any) (*Invitation, error) {
	var inv Invitation
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&inv.ID, &inv.BuyerOrgID, &inv.Email, &inv.Phone, &inv.Role, &inv.TokenHash, &inv.LookupHash,
		&inv.ExpiresAt, &inv.AcceptedAt, &inv.InvitedBy, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	return &inv, nil
}

// Accept redeems an invitation in one transaction: mark it accepted (the
// guarded UPDATE is the serialization point for racing acceptances), create
// the User, create the ACTIVE membership.
func (r *Repository) Accept(ctx context.Context, inv *Invitation, u *users.User, fullName string) (*Membership, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE team_invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`,
		inv.ID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("mark invitation accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyAccepted
	}

	u.CreatedAt = now
	u.UpdatedAt = now
	err = tx.QueryRow(ctx, `
		INSERT INTO users (phone, email, role, password_hash, is_active, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		u.Phone, u.Email, u.Role, u.PasswordHash, u.IsActive, u.Language, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("insert invited user: %w", err)
	}

	m := &Membership{
		BuyerOrgID: inv.BuyerOrgID,
		UserID:     u.ID,
		FullName:   fullName,
		Email:      inv.Email,
		Role:       inv.Role,
		Status:     StatusActive,
		InvitedBy:  &inv.InvitedBy,
		AcceptedAt: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO team_memberships (buyer_org_id, user_id, full_name, email, role, status,
			invited_by, accepted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		m.BuyerOrgID, m.UserID, m.FullName, m.Email, m.Role, m.Status,
		m.InvitedBy, m.AcceptedAt, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		return nil, fmt.Errorf("insert membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// ─── Guarded mutations ──────────────────────────────────────────────────────

// lockActiveAdmins takes row locks on every ACTIVE ADMIN membership of the
// organization and returns their ids. Holding the locks for the rest of the
// transaction is what makes the last-admin check race-free.
func lockActiveAdmins(ctx context.Context, tx pgx.Tx, orgID int64) ([]int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT id FROM team_memberships
		WHERE buyer_org_id = $1 AND role = 'ADMIN' AND status = 'ACTIVE'
		ORDER BY id
		FOR UPDATE`, orgID)
	if err != nil {
		return nil, fmt.Errorf("lock admins: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isOnlyAdmin(adminIDs []int64, membershipID int64) bool {
	return len(adminIDs) == 1 && adminIDs[0] == membershipID
}

// UpdateRole changes a member's role and writes the audit row in one
// transaction. Moving the last active admin off ADMIN fails with
// ErrLastAdmin.
func (r *Repository) UpdateRole(ctx context.Context, orgID, membershipID int64, newRole MemberRole, changedBy int64) (*RoleChange, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	admins, err := lockActiveAdmins(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}

	m, err := scanMembership(tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM team_memberships WHERE buyer_org_id = $1 AND id = $2 FOR UPDATE`,
		orgID, membershipID))
	if err != nil {
		return nil, err
	}
	if m.Role == RoleAdmin && newRole != RoleAdmin && isOnlyAdmin(admins, m.ID) {
		return nil, ErrLastAdmin
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE team_memberships SET role = $2, updated_at = $3 WHERE id = $1`,
		m.ID, newRole, now,
	); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}

	change := &RoleChange{MembershipID: m.ID, OldRole: m.Role, NewRole: newRole, ChangedBy: changedBy, CreatedAt: now}
	err = tx.QueryRow(ctx, `
		INSERT INTO team_role_changes (membership_id, old_role, new_role, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		change.MembershipID, change.OldRole, change.NewRole, change.ChangedBy, change.CreatedAt,
	).Scan(&change.ID)
	if err != nil {
		return nil, fmt.Errorf("insert role change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return change, nil
}

// Deactivate sets a membership INACTIVE. Deactivating the last active admin
// fails with ErrLastAdmin.
func (r *Repository) Deactivate(ctx context.Context, orgID, membershipID int64) error {
	return r.guardedMutation(ctx, orgID, membershipID, func(tx pgx.Tx, m *Membership) error {
		_, err := tx.Exec(ctx,
			`UPDATE team_memberships SET status = 'INACTIVE', updated_at = $2 WHERE id = $1`,
			m.ID, time.Now().UTC())
		return err
	})
}

// Delete removes a membership row. Deleting the last active admin fails
// with ErrLastAdmin.
func (r *Repository) Delete(ctx context.Context, orgID, membershipID int64) error {
	return r.guardedMutation(ctx, orgID, membershipID, func(tx pgx.Tx, m *Membership) error {
		_, err := tx.Exec(ctx, `DELETE FROM team_memberships WHERE id = $1`, m.ID)
		return err
	})
}

func (r *Repository) guardedMutation(ctx context.Context, orgID, membershipID int64, mutate func(pgx.Tx, *Membership) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	admins, err := lockActiveAdmins(ctx, tx, orgID)
	if err != nil {
		return err
	}
	m, err := scanMembership(tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM team_memberships WHERE buyer_org_id = $1 AND id = $2 FOR UPDATE`,
		orgID, membershipID))
	if err != nil {
		return err
	}
	if m.Role == RoleAdmin && m.Status == StatusActive && isOnlyAdmin(admins, m.ID) {
		return ErrLastAdmin
	}
	if err := mutate(tx, m); err != nil {
		return fmt.Errorf("guarded mutation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
