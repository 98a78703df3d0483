package ports

import (
	"context"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// RoleRepository resolves role definitions and their permission claims.
// Ranks are never stored; they derive from the fixed table in domain.
type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*domain.Role, error)
	PermissionsForRoles(ctx context.Context, names []string) ([]string, error)
}
