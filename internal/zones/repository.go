package zones

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a zone lookup finds no matching record.
var ErrNotFound = errors.New("zone not found")

const zoneColumns = `id, name, code, type, parent_id, district_manager_id`

// Repository provides zone-tree queries against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a zone.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Zone, error) {
	var z Zone
	err := r.db.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = $1`, id).
		Scan(&z.ID, &z.Name, &z.Code, &z.Type, &z.ParentID, &z.DistrictManagerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan zone: %w", err)
	}
	return &z, nil
}

// Children returns the direct children of a zone, name-ordered.
func (r *Repository) Children(ctx context.Context, parentID int64) ([]*Zone, error) {
	return r.list(ctx, `SELECT `+zoneColumns+` FROM zones WHERE parent_id = $1 ORDER BY name`, parentID)
}

// TopLevel returns all zones without a parent (the STATE roots).
func (r *Repository) TopLevel(ctx context.Context) ([]*Zone, error) {
	return r.list(ctx, `SELECT ` + zoneColumns + ` FROM zones WHERE parent_id IS NULL ORDER BY name`)
}

// Subtree returns a zone and all its descendants.
func (r *Repository) Subtree(ctx context.Context, rootID int64) ([]*Zone, error) {
	q := `
		WITH RECURSIVE sub AS (
			SELECT ` + zoneColumns + ` FROM zones WHERE id = $1
			UNION ALL
			SELECT z.id, z.name, z.code, z.type, z.parent_id, z.district_manager_id
			FROM zones z JOIN sub ON z.parent_id = sub.id
		)
		SELECT * FROM sub`
	return r.list(ctx, q, rootID)
}

// RootState walks up the tree and returns the STATE ancestor of a zone
// (the zone itself when it is a state).
func (r *Repository) RootState(ctx context.Context, zoneID int64) (*Zone, error) {
	q := `
		WITH RECURSIVE up AS (
			SELECT ` + zoneColumns + ` FROM zones WHERE id = $1
			UNION ALL
			SELECT z.id, z.name, z.code, z.type, z.parent_id, z.district_manager_id
			FROM zones z JOIN up ON up.parent_id = z.id
		)
		SELECT ` + zoneColumns + ` FROM up WHERE type = 'STATE' LIMIT 1`
	var z Zone
	err := r.db.QueryRow(ctx, q, zoneID).
		Scan(&z.ID, &z.Name, &z.Code, &z.Type, &z.ParentID, &z.DistrictManagerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan root state: %w", err)
	}
	return &z, nil
}

// ByDistrictManager returns the zones managed by a user, each annotated with
// the count of current (open-ended) agent assignments.
func (r *Repository) ByDistrictManager(ctx context.Context, userID int64) ([]*ManagedZone, error) {
	q := `
		SELECT z.id, z.name, z.code, z.type, z.parent_id, z.district_manager_id,
			COUNT(a.id) FILTER (WHERE a.effective_to IS NULL) AS assignments
		FROM zones z
		LEFT JOIN agent_zone_assignments a ON a.zone_id = z.id
		WHERE z.district_manager_id = $1
		GROUP BY z.id
		ORDER BY z.name`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query managed zones: %w", err)
	}
	defer rows.Close()

	var out []*ManagedZone
	for rows.Next() {
		var m ManagedZone
		if err := rows.Scan(&m.ID, &m.Name, &m.Code, &m.Type, &m.ParentID, &m.DistrictManagerID, &m.AssignmentCount); err != nil {
			return nil, fmt.Errorf("scan managed zone: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]*Zone, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	var out []*Zone
	for rows.Next() {
		var z Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.Code, &z.Type, &z.ParentID, &z.DistrictManagerID); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		out = append(out, &z)
	}
	return out, rows.Err()
}
