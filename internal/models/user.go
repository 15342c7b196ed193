package models

// UserRole represents the roles recognised by the RBAC middleware.
type UserRole string

const (
	RoleFamily UserRole = "FAMILY"
	RoleLeader UserRole = "LEADER"
)

// Valid reports whether the role is one of the supported roles.
func (r UserRole) Valid() bool {
	return r == RoleFamily || r == RoleLeader
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
