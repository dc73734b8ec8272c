// Package team implements buyer organization memberships: invitations with
// single-use tokens, role management with an audited change trail, and the
// last-admin invariant enforced inside the mutating transaction.
package team

import "time"

// MemberRole is the closed set of team roles within a buyer organization.
type MemberRole string

const (
	RoleAdmin              MemberRole = "ADMIN"
	RoleProcurementManager MemberRole = "PROCUREMENT_MANAGER"
	RoleFinanceUser        MemberRole = "FINANCE_USER"
	RoleReceivingStaff     MemberRole = "RECEIVING_STAFF"
)

// ValidRole reports membership in the closed role set.
func ValidRole(r MemberRole) bool {
	switch r {
	case RoleAdmin, RoleProcurementManager, RoleFinanceUser, RoleReceivingStaff:
		return true
	}
	return false
}

// MemberStatus is the membership lifecycle state.
type MemberStatus string

const (
	StatusActive   MemberStatus = "ACTIVE"
	StatusInactive MemberStatus = "INACTIVE"
	StatusPending  MemberStatus = "PENDING"
)

// Membership ties a user to a buyer organization. (BuyerOrgID, UserID) is
// unique. Email is denormalized from the user row for listing and duplicate
// checks.
type Membership struct {
	ID         int64        `json:"id"`
	BuyerOrgID int64        `json:"buyer_org_id"`
	UserID     int64        `json:"user_id"`
	FullName   string       `json:"full_name"`
	Email      string       `json:"email"`
	Role       MemberRole   `json:"role"`
	Status     MemberStatus `json:"status"`
	InvitedBy  *int64       `json:"invited_by,omitempty"`
	AcceptedAt *time.Time   `json:"accepted_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// InvitationTTL is how long a raw invitation token stays redeemable.
const InvitationTTL = 24 * time.Hour

// Invitation is a pending offer to join an organization. TokenHash is the
// bcrypt hash of the raw token (authoritative verifier); LookupHash is its
// SHA-256 kept in an indexed column for O(1) retrieval.
type Invitation struct {
	ID         int64      `json:"id"`
	BuyerOrgID int64      `json:"buyer_org_id"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Role       MemberRole `json:"role"`
	TokenHash  string     `json:"-"`
	LookupHash string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	InvitedBy  int64      `json:"invited_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RoleChange is one audit row written transactionally with every role
// update.
type RoleChange struct {
	ID           int64      `json:"id"`
	MembershipID int64      `json:"membership_id"`
	OldRole      MemberRole `json:"old_role"`
	NewRole      MemberRole `json:"new_role"`
	ChangedBy    int64      `json:"changed_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ListFilter narrows ListMembers. Zero values mean "no filter"; Search is a
// case-insensitive substring over name and email.
type ListFilter struct {
	Role   MemberRole
	Status MemberStatus
	Search string
	Page   int
	Limit  int
}
