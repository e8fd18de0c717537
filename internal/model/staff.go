package model

// StaffRole is a position in the strict review-override hierarchy.
type StaffRole string

const (
	RoleReviewer       StaffRole = "reviewer"
	RoleSeniorReviewer StaffRole = "senior_reviewer"
	RoleAdmin          StaffRole = "admin"
	RoleSuperAdmin     StaffRole = "super_admin"
)

var roleRanks = map[StaffRole]int{
	RoleReviewer:       1,
	RoleSeniorReviewer: 2,
	RoleAdmin:          3,
	RoleSuperAdmin:     4,
}

// Rank returns the role's position in the strict total order. Unknown roles
// rank 0, below every real role.
func (r StaffRole) Rank() int {
	return roleRanks[r]
}

// Outranks reports whether r is strictly above other. Equal rank is never an
// outrank.
func (r StaffRole) Outranks(other StaffRole) bool {
	return r.Rank() > other.Rank()
}

// StaffUser is a staff account. Role is used only for claim-override
// arbitration; no other business logic depends on it.
type StaffUser struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Role StaffRole `json:"role"`
}

// Context returns the StaffContext for operations performed by this user.
func (u *StaffUser) Context() StaffContext {
	return StaffContext{StaffID: u.ID, Role: u.Role}
}

// StaffContext identifies the staff member performing a workflow operation.
// It is always passed explicitly; core logic never reads ambient session
// state.
type StaffContext struct {
	StaffID string    `json:"staff_id"`
	Role    StaffRole `json:"role"`
}
