package auth

// Ops API permissions.
const (
	PermMembershipsRead   = "memberships:read"
	PermMembershipsRevoke = "memberships:revoke"
	PermTicketsRead       = "tickets:read"
)

var rolePermissions = map[string][]string{
	"admin":  {PermMembershipsRead, PermMembershipsRevoke, PermTicketsRead},
	"viewer": {PermMembershipsRead, PermTicketsRead},
}

// Allowed reports whether the principal's roles grant the permission.
func (p Principal) Allowed(perm string) bool {
	for _, role := range p.Roles {
		for _, granted := range rolePermissions[role] {
			if granted == perm {
				return true
			}
		}
	}
	return false
}
