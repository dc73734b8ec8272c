// Package buyer implements buyer organization onboarding and email/password
// authentication: two-phase registration through an OTP-gated KV bundle,
// login with a row-resident lockout counter, and the password reset flow.
package buyer

import "time"

// BusinessType is the closed set of buyer business classes.
type BusinessType string

const (
	BusinessRetailer   BusinessType = "RETAILER"
	BusinessWholesaler BusinessType = "WHOLESALER"
	BusinessProcessor  BusinessType = "PROCESSOR"
	BusinessExporter   BusinessType = "EXPORTER"
	BusinessRestaurant BusinessType = "RESTAURANT"
)

// ValidBusinessType reports membership in the closed set.
func ValidBusinessType(t BusinessType) bool {
	switch t {
	case BusinessRetailer, BusinessWholesaler, BusinessProcessor, BusinessExporter, BusinessRestaurant:
		return true
	}
	return false
}

// Profile is the buyer organization row, 1:1 with its owning User. Its id
// doubles as the organization id carried in team memberships and JWT claims.
type Profile struct {
	ID           int64        `json:"id"`
	UserID       int64        `json:"user_id"`
	BusinessName string       `json:"business_name"`
	BusinessType BusinessType `json:"business_type"`
	GSTNumber    *string      `json:"gst_number,omitempty"`
	ContactName  string       `json:"contact_name"`
	Address      *string      `json:"address,omitempty"`
	City         *string      `json:"city,omitempty"`
	State        *string      `json:"state,omitempty"`
	Pincode      *string      `json:"pincode,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// pendingRegistration is the JSON bundle parked in the ephemeral store
// between Register and VerifyOtp. The password is already hashed.
type pendingRegistration struct {
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	PasswordHash string       `json:"password_hash"`
	ContactName  string       `json:"contact_name"`
	BusinessName string       `json:"business_name"`
	BusinessType BusinessType `json:"business_type"`
	GSTNumber    *string      `json:"gst_number,omitempty"`
	Language     string       `json:"language"`
	CreatedAt    time.Time    `json:"created_at"`
}
