package rbac

import (
	"context"
	"sort"

	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

// PrincipalRoles is the minimal interface the Service needs from storage.
type PrincipalRoles interface {
	GetPrincipal(ctx context.Context, id string) (*models.Principal, error)
}

// roleDef holds a role's direct grants and its inheritance parent.
type roleDef struct {
	name         string
	inheritsFrom string
	grants       map[string]struct{}
}

// Service answers permission queries against the role hierarchy. It is a
// pure query service: it never writes audit events itself, callers do.
type Service struct {
	store      PrincipalRoles
	precedence []string           // most privileged first
	roles      map[string]roleDef // keyed by role name
}

// NewService builds the Service with the built-in hierarchy and grants.
func NewService(store PrincipalRoles) *Service {
	s := &Service{
		store: store,
		precedence: []string{
			models.RoleOperationsDirector,
			models.RoleAdministrator,
			models.RoleManager,
			models.RoleDispatcher,
			models.RoleFieldAgent,
		},
		roles: map[string]roleDef{},
	}

	s.define(models.RoleFieldAgent, "",
		"work_orders:read", "work_orders:update", "messages:read", "messages:write")
	s.define(models.RoleDispatcher, models.RoleFieldAgent,
		"work_orders:create", "work_orders:assign", "users:read")
	s.define(models.RoleManager, models.RoleDispatcher,
		"reports:read", "roles:read")
	s.define(models.RoleAdministrator, models.RoleManager,
		"audit:read", "security:read", "security:write", "compliance:read",
		"infrastructure:read", "users:write", "work_orders:delete")
	s.define(models.RoleOperationsDirector, models.RoleAdministrator,
		"security:admin", "companies:write")

	return s
}

func (s *Service) define(role, inheritsFrom string, grants ...string) {
	set := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		set[g] = struct{}{}
	}
	s.roles[role] = roleDef{name: role, inheritsFrom: inheritsFrom, grants: set}
}

// EffectiveRole resolves the most privileged role a principal holds, per the
// fixed precedence order. Returns "" for unknown principals and principals
// with an empty role set.
func (s *Service) EffectiveRole(ctx context.Context, principalID string) string {
	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil || p == nil {
		return ""
	}
	return s.effectiveRoleOf(p)
}

func (s *Service) effectiveRoleOf(p *models.Principal) string {
	held := make(map[string]struct{}, len(p.Roles))
	for _, r := range p.Roles {
		held[r] = struct{}{}
	}
	for _, r := range s.precedence {
		if _, ok := held[r]; ok {
			return r
		}
	}
	return ""
}

// HasPermission reports whether the principal may perform action on resource.
// Default-deny: unknown principal, empty role set, or an exhausted hierarchy
// walk all return false, never an error.
func (s *Service) HasPermission(ctx context.Context, principalID, resource, action string) bool {
	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil || p == nil {
		return false
	}
	return s.PrincipalHasPermission(p, resource, action)
}

// PrincipalHasPermission checks an already-resolved principal. The effective
// role is checked first, then the inheritance chain is walked toward the
// hierarchy root.
func (s *Service) PrincipalHasPermission(p *models.Principal, resource, action string) bool {
	role := s.effectiveRoleOf(p)
	if role == "" {
		return false
	}
	key := resource + ":" + action
	for role != "" {
		def, ok := s.roles[role]
		if !ok {
			return false
		}
		if _, granted := def.grants[key]; granted {
			return true
		}
		role = def.inheritsFrom
	}
	return false
}

// Hierarchy dumps the full role hierarchy in precedence order with each
// role's direct grants.
func (s *Service) Hierarchy() []models.RoleNode {
	nodes := make([]models.RoleNode, 0, len(s.precedence))
	for _, name := range s.precedence {
		def := s.roles[name]
		perms := make([]models.Permission, 0, len(def.grants))
		for key := range def.grants {
			for i := 0; i < len(key); i++ {
				if key[i] == ':' {
					perms = append(perms, models.Permission{Resource: key[:i], Action: key[i+1:]})
					break
				}
			}
		}
		sort.Slice(perms, func(i, j int) bool {
			if perms[i].Resource != perms[j].Resource {
				return perms[i].Resource < perms[j].Resource
			}
			return perms[i].Action < perms[j].Action
		})
		nodes = append(nodes, models.RoleNode{
			Role:         name,
			InheritsFrom: def.inheritsFrom,
			Permissions:  perms,
		})
	}
	return nodes
}

// PermissionReport summarizes direct grant counts per role, for the
// infrastructure status endpoint.
func (s *Service) PermissionReport() map[string]int {
	report := make(map[string]int, len(s.roles))
	for name, def := range s.roles {
		report[name] = len(def.grants)
	}
	return report
}
