// Package farmer implements farmer onboarding and passwordless login:
// OTP-gated account creation, profile and farm-profile steps, payment
// details, and the PIN credential lifecycle.
package farmer

import "time"

// FarmSize is the closed set of farm size classes.
type FarmSize string

const (
	FarmSmall  FarmSize = "SMALL"
	FarmMedium FarmSize = "MEDIUM"
	FarmLarge  FarmSize = "LARGE"
)

// Profile is the farmer-specific profile row, 1:1 with a User.
type Profile struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	FullName     string     `json:"full_name"`
	District     string     `json:"district"`
	State        string     `json:"state"`
	Village      *string    `json:"village,omitempty"`
	FarmSize     *FarmSize  `json:"farm_size,omitempty"`
	FarmingTypes []string   `json:"farming_types,omitempty"`
	MainCrops    []string   `json:"main_crops,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
