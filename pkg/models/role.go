package models

// Role names, ordered here for reference; precedence lives in the rbac package.
const (
	RoleOperationsDirector = "operations_director"
	RoleAdministrator      = "administrator"
	RoleManager            = "manager"
	RoleDispatcher         = "dispatcher"
	RoleFieldAgent         = "field_agent"
)

// Permission is a (resource, action) pair a role may be granted.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Key returns the canonical "resource:action" form used for grant lookups.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// RoleNode is one entry in the role hierarchy dump.
type RoleNode struct {
	Role         string       `json:"role"`
	InheritsFrom string       `json:"inherits_from,omitempty"`
	Permissions  []Permission `json:"permissions"`
}

// Principal is the authenticated caller attached to a request context.
// Roles is the raw role set; the effective role is resolved by the rbac
// service at decision time, never stored here.
type Principal struct {
	ID        string   `json:"id"`
	Roles     []string `json:"roles"`
	CompanyID string   `json:"company_id,omitempty"`
}

// HasRoles reports whether the principal holds at least one role.
func (p *Principal) HasRoles() bool {
	return p != nil && len(p.Roles) > 0
}
