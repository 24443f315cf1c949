package entity

import "strings"

// Role is the caller's role within the maintenance network
type Role string

const (
	RoleAdmin         Role = "ADMIN"
	RoleCenterManager Role = "CENTER_MANAGER"
	RoleTechnician    Role = "TECHNICIAN"
	RoleBranchManager Role = "BRANCH_MANAGER"
)

// ParseRole parses a role name, case-insensitively
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", validationError("unknown role %q", s)
	}
	return r, nil
}

// IsValid returns true for known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCenterManager, RoleTechnician, RoleBranchManager:
		return true
	default:
		return false
	}
}

// Actor identifies who performs an operation. It is passed explicitly to every mutation.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	BranchID string `json:"branch_id,omitempty"`
}

// Validate checks the actor carries an identity and a known role
func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return validationError("actor id is required")
	}
	if !a.Role.IsValid() {
		return validationError("unknown role %q", a.Role)
	}
	if a.Role != RoleAdmin && a.BranchID == "" {
		return validationError("actor %s: branch is required for role %s", a.ID, a.Role)
	}
	return nil
}

// CanSeeAllBranches is true for roles not scoped to a single branch
func (a Actor) CanSeeAllBranches() bool {
	return a.Role == RoleAdmin
}

// HasRole reports whether the actor holds one of the roles
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
