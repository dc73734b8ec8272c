package farmer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a farmer profile lookup finds nothing.
var ErrNotFound = errors.New("farmer profile not found")

// Repository persists farmer profiles.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert creates or replaces the identity portion of the profile
// (re-submission of the step replaces its data).
func (r *Repository) Upsert(ctx context.Context, p *Profile) error {
	now := time.Now().UTC()
	q := `
		INSERT INTO farmer_profiles (user_id, full_name, district, state, village, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET full_name = EXCLUDED.full_name, district = EXCLUDED.district,
			state = EXCLUDED.state, village = EXCLUDED.village, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`
	if err := r.db.QueryRow(ctx, q, p.UserID, p.FullName, p.District, p.State, p.Village, now).
		Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("upsert farmer profile: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// SaveFarm writes the farm-profile step onto an existing profile row.
func (r *Repository) SaveFarm(ctx context.Context, userID int64, size FarmSize, farmingTypes, mainCrops []string) error {
	q := `
		UPDATE farmer_profiles
		SET farm_size = $2, farming_types = $3, main_crops = $4, updated_at = $5
		WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, q, userID, size, farmingTypes, mainCrops, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save farm profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByUserID retrieves the profile for a user.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Profile, error) {
	q := `
		SELECT id, user_id, full_name, district, state, village, farm_size,
			farming_types, main_crops, created_at, updated_at
		FROM farmer_profiles WHERE user_id = $1`
	var p Profile
	err := r.db.QueryRow(ctx, q, userID).Scan(
		&p.ID, &p.UserID, &p.FullName, &p.District, &p.State, &p.Village,
		&p.FarmSize, &p.FarmingTypes, &p.MainCrops, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan farmer profile: %w", err)
	}
	return &p, nil
}
