// Package hauler implements the four-step hauler registration state machine
// and the admin verification queue. Step state before account creation lives
// in the ephemeral store under the registration token; after account
// creation the profile row carries the step counter.
package hauler

import (
	"time"

	"github.com/agrimandi/auth-service/internal/validate"
)

// VerificationStatus is the hauler profile lifecycle state.
type VerificationStatus string

const (
	StatusInProgress          VerificationStatus = "IN_PROGRESS"
	StatusPendingVerification VerificationStatus = "PENDING_VERIFICATION"
	StatusActive              VerificationStatus = "ACTIVE"
	StatusRejected            VerificationStatus = "REJECTED"
)

// TempVehiclePrefix marks placeholder vehicle numbers on stub profiles.
// Rows carrying it are excluded from the uniqueness check.
const TempVehiclePrefix = "TEMP-"

// Profile is the hauler-specific profile row, 1:1 with its User.
type Profile struct {
	ID                 int64                `json:"id"`
	UserID             int64                `json:"user_id"`
	FullName           string               `json:"full_name"`
	District           *string              `json:"district,omitempty"`
	VehicleType        validate.VehicleType `json:"vehicle_type"`
	VehicleNumber      string               `json:"vehicle_number"`
	PayloadCapacityKg  float64              `json:"payload_capacity_kg"`
	DLNumber           *string              `json:"dl_number,omitempty"`
	DLExpiry           *time.Time           `json:"dl_expiry,omitempty"`
	CurrentStep        int                  `json:"current_step"`
	VerificationStatus VerificationStatus   `json:"verification_status"`
	RegistrationToken  *string              `json:"-"`
	VerifiedBy         *int64               `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time           `json:"verified_at,omitempty"`
	RejectionReason    *string              `json:"rejection_reason,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// DocumentType is the closed set of uploaded document kinds.
type DocumentType string

const (
	DocVehicleFront DocumentType = "VEHICLE_FRONT"
	DocVehicleSide  DocumentType = "VEHICLE_SIDE"
	DocVehicleOther DocumentType = "VEHICLE_OTHER"
	DocDLFront      DocumentType = "DL_FRONT"
	DocDLBack       DocumentType = "DL_BACK"
)

// Document is one uploaded artifact attached to a hauler profile.
type Document struct {
	ID        int64        `json:"id"`
	ProfileID int64        `json:"profile_id"`
	Type      DocumentType `json:"type"`
	URL       string       `json:"url"`
	CreatedAt time.Time    `json:"created_at"`
}

// PendingHauler is one row of the admin verification queue: the profile,
// its user projection, and documents, with the DL masked for display.
type PendingHauler struct {
	Profile   *Profile    `json:"profile"`
	Phone     string      `json:"phone"`
	MaskedDL  string      `json:"masked_dl"`
	Documents []*Document `json:"documents"`
}

// pendingStep1 is the bundle parked in the ephemeral store between step 1
// and OTP verification.
type pendingStep1 struct {
	FullName string  `json:"full_name"`
	Phone    string  `json:"phone"`
	District *string `json:"district,omitempty"`
}

// Decision actions for the admin queue.
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)
