package access

import (
	"github.com/projekt-software-engineering/ticket-backend/core/entity"
)

// HasRequiredRole checks whether the caller holds the minimum required role
// to perform an action against entityType.
//
// The rule only applies when entityType matches appliesTo; for any other
// entity type the check passes unconditionally, the rule is inapplicable,
// not denied. The role hierarchy is strictly nested: admin implies editor,
// editor implies requester. An unknown minimum role always denies.
func HasRequiredRole(entityType entity.Type, appliesTo entity.Type, minimum Role, identity *Identity) bool {
	if entityType != appliesTo {
		return true
	}
	switch minimum {
	case RoleRequester:
		return identity.HasRole(RoleRequester) || identity.HasRole(RoleEditor) || identity.HasRole(RoleAdmin)
	case RoleEditor:
		return identity.HasRole(RoleEditor) || identity.HasRole(RoleAdmin)
	case RoleAdmin:
		return identity.HasRole(RoleAdmin)
	}
	return false
}
