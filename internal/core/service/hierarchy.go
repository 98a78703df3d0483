package service

import (
	"github.com/stackpoint/account-service/internal/core/domain"
)

// Pure authorization guards. Each returns nil when the action may proceed
// and a domain error naming the denial otherwise. No I/O happens here;
// callers supply role memberships and holder counts.

// EnforceHierarchy requires the caller's highest rank to be strictly above
// the target's. Equal rank never suffices: an admin cannot act on another
// admin.
func EnforceHierarchy(callerRoles, targetRoles []string) error {
	if domain.HighestRank(callerRoles) <= domain.HighestRank(targetRoles) {
		return domain.ErrHierarchyInsufficient
	}
	return nil
}

// EnforceLastAdminProtection fails when removing a holder of an
// administrative role would leave it with no holders.
func EnforceLastAdminProtection(role string, currentHolderCount int64) error {
	if domain.IsAdministrative(role) && currentHolderCount <= 1 {
		return domain.ErrLastAdmin
	}
	return nil
}

// EnforceSelfActionProtection blocks destructive actions against the
// calling account itself, regardless of rank.
func EnforceSelfActionProtection(callerID, targetID string) error {
	if callerID != "" && callerID == targetID {
		return domain.ErrSelfAction
	}
	return nil
}

// EnforceRoleAssignmentRank allows assigning or removing only roles ranked
// strictly below the caller's own rank.
func EnforceRoleAssignmentRank(callerRank, targetRoleRank domain.Rank) error {
	if targetRoleRank >= callerRank {
		return domain.ErrRoleAssignAboveRank
	}
	return nil
}

// EnforcePermissionEscalation requires the caller to already hold every
// permission claim the role grants. SuperAdmins are exempt.
func EnforcePermissionEscalation(callerRank domain.Rank, callerPermissions, rolePermissions []string) error {
	if callerRank >= domain.RankSuperAdmin {
		return nil
	}
	held := make(map[string]struct{}, len(callerPermissions))
	for _, p := range callerPermissions {
		held[p] = struct{}{}
	}
	for _, p := range rolePermissions {
		if _, ok := held[p]; !ok {
			return domain.ErrPermissionEscalation
		}
	}
	return nil
}
