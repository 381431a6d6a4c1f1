package service

import (
	"sort"

	"github.com/iliyamo/admin-auth/internal/model"
)

// ResolveClaims derives the effective role and permission names from g. A
// role counts when both its link to the user and the role itself are active;
// a permission counts when it is reached through such a role by an active
// link and is itself active. Both lists are sorted and free of duplicates.
func ResolveClaims(g *model.AccessGraph) (roles, permissions []string) {
	roles, permissions = []string{}, []string{}
	if g == nil {
		return roles, permissions
	}

	roleSet := map[string]struct{}{}
	permSet := map[string]struct{}{}
	for _, ur := range g.UserRoles {
		if !ur.IsActive {
			continue
		}
		role, ok := g.Roles[ur.RoleID]
		if !ok || !role.IsActive {
			continue
		}
		roleSet[role.Name] = struct{}{}
		for _, rp := range g.RolePermissions[role.ID] {
			if !rp.IsActive {
				continue
			}
			perm, ok := g.Permissions[rp.PermissionID]
			if !ok || !perm.IsActive {
				continue
			}
			permSet[perm.Name] = struct{}{}
		}
	}

	for name := range roleSet {
		roles = append(roles, name)
	}
	for name := range permSet {
		permissions = append(permissions, name)
	}
	sort.Strings(roles)
	sort.Strings(permissions)
	return roles, permissions
}
