// Package zones models the geographic zone hierarchy
// (STATE → DISTRICT → TALUK → VILLAGE) used for agent assignment.
package zones

// Type is a zone's level in the hierarchy.
type Type string

const (
	TypeState    Type = "STATE"
	TypeDistrict Type = "DISTRICT"
	TypeTaluk    Type = "TALUK"
	TypeVillage  Type = "VILLAGE"
)

// Zone is one node of the zone tree.
type Zone struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Code              string `json:"code"`
	Type              Type   `json:"type"`
	ParentID          *int64 `json:"parent_id,omitempty"`
	DistrictManagerID *int64 `json:"district_manager_id,omitempty"`
}

// ManagedZone is a zone annotated with its current agent-assignment count,
// as shown on the district-manager dashboard.
type ManagedZone struct {
	Zone
	AssignmentCount int `json:"assignment_count"`
}

// Node is a zone with its eagerly expanded children.
type Node struct {
	Zone
	Children []*Node `json:"children,omitempty"`
}
