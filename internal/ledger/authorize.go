package ledger

import "github.com/medrex/rxledger/pkg/types"

// Authorize reports whether a caller holding roles satisfies required
func Authorize(roles []types.Role, required types.Role) bool {
	for _, r := range roles {
		if r == required {
			return true
		}
	}
	return false
}

// exclusiveRoles may not be held together by one identity
var exclusiveRoles = []types.Role{types.RoleDoctor, types.RolePharmacist, types.RolePatient}

func isExclusive(role types.Role) bool {
	for _, r := range exclusiveRoles {
		if r == role {
			return true
		}
	}
	return false
}
