package rbac

import "github.com/keeper-escrow/backend/internal/models"

// Role constants
const (
	RoleDepositor = "depositor"
	RoleKeeper    = "keeper"
)

// Permission constants
const (
	PermMarkReady = "mark_ready"
	PermExecute   = "execute"
	PermCancel    = "cancel"
	PermView      = "view"
)

// RolePermissions defines what each role can do on an order.
var RolePermissions = map[string][]string{
	RoleDepositor: {
		PermCancel, PermView,
		// Depositor CANNOT: PermMarkReady, PermExecute
	},
	RoleKeeper: {
		PermMarkReady, PermExecute, PermCancel, PermView,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// RolesOf returns the roles an identity holds on an order. The depositor may also be the keeper.
func RolesOf(order *models.DepositOrder, identity string) []string {
	var roles []string
	if order.IsDepositor(identity) {
		roles = append(roles, RoleDepositor)
	}
	if order.IsKeeper(identity) {
		roles = append(roles, RoleKeeper)
	}
	return roles
}

// Can reports whether identity holds any role on the order granting permission.
func Can(order *models.DepositOrder, identity, permission string) bool {
	for _, role := range RolesOf(order, identity) {
		if HasPermission(role, permission) {
			return true
		}
	}
	return false
}
