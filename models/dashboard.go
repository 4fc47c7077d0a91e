package models

// DashboardRole represents a member's role within a dashboard
type DashboardRole string

const (
	RoleViewer DashboardRole = "viewer"
	RoleEditor DashboardRole = "editor"
	RoleOwner  DashboardRole = "owner"
)

var roleRank = map[DashboardRole]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleOwner:  3,
}

// AtLeast returns true if r ranks at or above min. Unknown roles rank
// below every known role.
func (r DashboardRole) AtLeast(min DashboardRole) bool {
	return roleRank[r] > 0 && roleRank[r] >= roleRank[min]
}

// CanManageIntegrations returns true if the role may attach, revise or
// detach integrations
func (r DashboardRole) CanManageIntegrations() bool {
	return r.AtLeast(RoleEditor)
}

// Terminal is a sandbox terminal owned by a dashboard
type Terminal struct {
	ID          string `json:"id" db:"id"`
	DashboardID string `json:"dashboard_id" db:"dashboard_id"`
}

// TableName returns the table name for the Terminal model
func (Terminal) TableName() string {
	return "terminals"
}

// DashboardMember is a user's membership in a dashboard
type DashboardMember struct {
	DashboardID string        `json:"dashboard_id" db:"dashboard_id"`
	UserID      string        `json:"user_id" db:"user_id"`
	Role        DashboardRole `json:"role" db:"role"`
}

// TableName returns the table name for the DashboardMember model
func (DashboardMember) TableName() string {
	return "dashboard_members"
}
