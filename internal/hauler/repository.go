package hauler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrimandi/auth-service/internal/users"
	"github.com/agrimandi/auth-service/internal/validate"
)

// ErrNotFound is returned when a hauler profile lookup finds nothing.
var ErrNotFound = errors.New("hauler profile not found")

// ErrInvalidState is returned when a transition finds the row no longer in
// the state it requires. Racing admin decisions and out-of-order step
// submissions surface as this.
var ErrInvalidState = errors.New("hauler profile not in the required state")

// Repository persists hauler profiles and documents.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, user_id, full_name, district, vehicle_type, vehicle_number,
	payload_capacity_kg, dl_number, dl_expiry, current_step, verification_status,
	registration_token, verified_by, verified_at, rejection_reason, created_at, updated_at`

// CreateWithUser inserts the User and the stub profile in one transaction.
// The stub carries a placeholder vehicle number so the uniqueness constraint
// stays satisfiable before step 2.
func (r *Repository) CreateWithUser(ctx context.Context, u *users.User, p *Profile) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	err = tx.QueryRow(ctx, `
		INSERT INTO users (phone, role, is_active, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		u.Phone, u.Role, u.IsActive, u.Language, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("insert hauler user: %w", err)
	}

	p.UserID = u.ID
	p.CreatedAt = now
	p.UpdatedAt = now
	err = tx.QueryRow(ctx, `
		INSERT INTO hauler_profiles (user_id, full_name, district, vehicle_type, vehicle_number,
			payload_capacity_kg, current_step, verification_status, registration_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		p.UserID, p.FullName, p.District, p.VehicleType, p.VehicleNumber,
		p.PayloadCapacityKg, p.CurrentStep, p.VerificationStatus, p.RegistrationToken, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert hauler profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByToken resolves a profile by its live registration token.
func (r *Repository) GetByToken(ctx context.Context, token string) (*Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM hauler_profiles WHERE registration_token = $1`
	return r.scanOne(ctx, q, token)
}

// GetByUserID retrieves the profile owned by a user.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM hauler_profiles WHERE user_id = $1`
	return r.scanOne(ctx, q, userID)
}

// GetByID retrieves a profile by its own id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM hauler_profiles WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// VehicleNumberTaken reports whether another profile past step 1 already
// carries this vehicle number. Placeholder rows never collide.
func (r *Repository) VehicleNumberTaken(ctx context.Context, number string, excludeProfileID int64) (bool, error) {
	var exists bool
	q := `
		SELECT EXISTS (
			SELECT 1 FROM hauler_profiles
			WHERE vehicle_number = $1 AND current_step > 1 AND id <> $2
		)`
	if err := r.db.QueryRow(ctx, q, number, excludeProfileID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check vehicle number: %w", err)
	}
	return exists, nil
}

// SetVehicleInfo writes the step-2 fields and the photo document rows in
// one transaction.
func (r *Repository) SetVehicleInfo(ctx context.Context, profileID int64, vt validate.VehicleType, number string, capacityKg float64, docs []*Document) error {
	return r.stepUpdate(ctx, profileID, 2, docs, `
		UPDATE hauler_profiles
		SET vehicle_type = $2, vehicle_number = $3, payload_capacity_kg = $4, current_step = 2, updated_at = $5
		WHERE id = $1`,
		profileID, vt, number, capacityKg, time.Now().UTC())
}

// SetLicenseInfo writes the step-3 fields and the DL document rows in one
// transaction.
func (r *Repository) SetLicenseInfo(ctx context.Context, profileID int64, dlNumber string, dlExpiry time.Time, docs []*Document) error {
	return r.stepUpdate(ctx, profileID, 3, docs, `
		UPDATE hauler_profiles
		SET dl_number = $2, dl_expiry = $3, current_step = 3, updated_at = $4
		WHERE id = $1`,
		profileID, dlNumber, dlExpiry, time.Now().UTC())
}

func (r *Repository) stepUpdate(ctx context.Context, profileID int64, step int, docs []*Document, q string, args ...any) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("step %d update: %w", step, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	now := time.Now().UTC()
	for _, d := range docs {
		d.ProfileID = profileID
		d.CreatedAt = now
		if err := tx.QueryRow(ctx, `
			INSERT INTO hauler_documents (profile_id, type, url, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			d.ProfileID, d.Type, d.URL, d.CreatedAt,
		).Scan(&d.ID); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetStep4 records completion of the payment step.
func (r *Repository) SetStep4(ctx context.Context, profileID int64) error {
	q := `UPDATE hauler_profiles SET current_step = 4, updated_at = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, profileID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set step 4: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Submit transitions IN_PROGRESS at step 4 to PENDING_VERIFICATION and
// consumes the registration token. The guarded UPDATE is the serialization
// point; anything else is an invalid state.
func (r *Repository) Submit(ctx context.Context, profileID int64) error {
	q := `
		UPDATE hauler_profiles
		SET verification_status = $2, registration_token = NULL, updated_at = $3
		WHERE id = $1 AND current_step = 4 AND verification_status = $4`
	tag, err := r.db.Exec(ctx, q, profileID, StatusPendingVerification, time.Now().UTC(), StatusInProgress)
	if err != nil {
		return fmt.Errorf("submit registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListPending returns a page of PENDING_VERIFICATION profiles with their
// user phone, oldest-first, plus the total count.
func (r *Repository) ListPending(ctx context.Context, page, limit int, district string) ([]*PendingHauler, int, error) {
	where := `WHERE p.verification_status = 'PENDING_VERIFICATION'`
	args := []any{}
	if district != "" {
		args = append(args, district)
		where += fmt.Sprintf(" AND p.district = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM hauler_profiles p `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pending: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	q := fmt.Sprintf(`
		SELECT p.id, p.user_id, p.full_name, p.district, p.vehicle_type, p.vehicle_number,
			p.payload_capacity_kg, p.dl_number, p.dl_expiry, p.current_step, p.verification_status,
			p.registration_token, p.verified_by, p.verified_at, p.rejection_reason, p.created_at, p.updated_at,
			u.phone
		FROM hauler_profiles p
		JOIN users u ON u.id = p.user_id
		%s
		ORDER BY p.created_at
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []*PendingHauler
	for rows.Next() {
		var p Profile
		var phone string
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.FullName, &p.District, &p.VehicleType, &p.VehicleNumber,
			&p.PayloadCapacityKg, &p.DLNumber, &p.DLExpiry, &p.CurrentStep, &p.VerificationStatus,
			&p.RegistrationToken, &p.VerifiedBy, &p.VerifiedAt, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt,
			&phone,
		); err != nil {
			return nil, 0, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, &PendingHauler{Profile: &p, Phone: phone})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, ph := range out {
		docs, err := r.Documents(ctx, ph.Profile.ID)
		if err != nil {
			return nil, 0, err
		}
		ph.Documents = docs
	}
	return out, total, nil
}

// Documents returns the uploaded documents for a profile.
func (r *Repository) Documents(ctx context.Context, profileID int64) ([]*Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, profile_id, type, url, created_at FROM hauler_documents WHERE profile_id = $1 ORDER BY id`,
		profileID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.ProfileID, &d.Type, &d.URL, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Approve moves PENDING_VERIFICATION to ACTIVE. A row already decided
// surfaces as ErrInvalidState.
func (r *Repository) Approve(ctx context.Context, profileID, verifiedBy int64) error {
	q := `
		UPDATE hauler_profiles
		SET verification_status = $2, verified_by = $3, verified_at = $4, rejection_reason = NULL, updated_at = $4
		WHERE id = $1 AND verification_status = $5`
	return r.decide(ctx, q, profileID, StatusActive, verifiedBy, time.Now().UTC(), StatusPendingVerification)
}

// Reject moves PENDING_VERIFICATION to REJECTED with a reason.
func (r *Repository) Reject(ctx context.Context, profileID, verifiedBy int64, reason string) error {
	q := `
		UPDATE hauler_profiles
		SET verification_status = $2, verified_by = $3, verified_at = $4, rejection_reason = $6, updated_at = $4
		WHERE id = $1 AND verification_status = $5`
	return r.decide(ctx, q, profileID, StatusRejected, verifiedBy, time.Now().UTC(), StatusPendingVerification, reason)
}

func (r *Repository) decide(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("decide hauler: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&p.ID, &p.UserID, &p.FullName, &p.District, &p.VehicleType, &p.VehicleNumber,
		&p.PayloadCapacityKg, &p.DLNumber, &p.DLExpiry, &p.CurrentStep, &p.VerificationStatus,
		&p.RegistrationToken, &p.VerifiedBy, &p.VerifiedAt, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan hauler profile: %w", err)
	}
	return &p, nil
}
