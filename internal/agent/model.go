// Package agent implements field-agent provisioning by district managers:
// temp-PIN first login, the forced PIN change, training state, and zone
// assignment with exactly one current assignment per agent.
package agent

import "time"

// Status is the agent profile lifecycle state.
type Status string

const (
	StatusTraining Status = "TRAINING"
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// EmploymentType is the closed set of agent engagement models.
type EmploymentType string

const (
	EmploymentFullTime EmploymentType = "FULL_TIME"
	EmploymentPartTime EmploymentType = "PART_TIME"
	EmploymentContract EmploymentType = "CONTRACT"
)

// ValidEmploymentType reports whether t is a known employment type.
func ValidEmploymentType(t EmploymentType) bool {
	switch t {
	case EmploymentFullTime, EmploymentPartTime, EmploymentContract:
		return true
	}
	return false
}

// TempPINTTL is how long a provisioned agent has to complete the first
// login before the temporary PIN expires.
const TempPINTTL = 72 * time.Hour

// Profile is the agent-specific profile row, 1:1 with its User.
// EmployeeID follows AGT-<state code>-<sequence> and is unique.
type Profile struct {
	ID                  int64          `json:"id"`
	UserID              int64          `json:"user_id"`
	FullName            string         `json:"full_name"`
	EmployeeID          string         `json:"employee_id"`
	EmploymentType      EmploymentType `json:"employment_type"`
	Status              Status         `json:"status"`
	StartDate           time.Time      `json:"start_date"`
	CreatedBy           int64          `json:"created_by"`
	TrainingCompletedAt *time.Time     `json:"training_completed_at,omitempty"`
	DeactivatedAt       *time.Time     `json:"deactivated_at,omitempty"`
	DeactivationReason  *string        `json:"deactivation_reason,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ZoneAssignment links an agent profile to a zone for a time span. The row
// with a null EffectiveTo is the current assignment; there is exactly one
// per agent at any instant.
type ZoneAssignment struct {
	ID            int64      `json:"id"`
	AgentID       int64      `json:"agent_id"`
	ZoneID        int64      `json:"zone_id"`
	AssignedBy    int64      `json:"assigned_by"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Summary is one row of the agent roster: the profile with its user phone
// and current zone.
type Summary struct {
	Profile  *Profile `json:"profile"`
	Phone    string   `json:"phone"`
	ZoneID   int64    `json:"zone_id"`
	ZoneName string   `json:"zone_name"`
}

// ListFilter narrows the agent roster query.
type ListFilter struct {
	Status Status
	ZoneID int64
	Page   int
	Limit  int
}
