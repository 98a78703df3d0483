package ports

import (
	"context"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// AccountRepository defines the interface for account persistence. It doubles
// as the credential store adapter: password hashes are read and written only
// through it.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash, newStamp string) error
	UpdateSecurityStamp(ctx context.Context, id, newStamp string) error
	SetLockout(ctx context.Context, id string, until *int64) error
	SetEmailConfirmed(ctx context.Context, id string) error
	ConsumeRecoveryCode(ctx context.Context, id, codeHash string) error
	AddRole(ctx context.Context, id, role string) error

	// RemoveRole removes the role from the account. For administrative
	// roles the removal is conditional on at least minHolders accounts
	// still holding the role, applied as one atomic operation so two
	// concurrent removals cannot both succeed past the floor.
	RemoveRole(ctx context.Context, id, role string, minHolders int64) error

	CountRoleHolders(ctx context.Context, role string) (int64, error)

	// Delete removes the account. The same holder floor RemoveRole
	// enforces applies to every administrative role held: the reservation
	// and the removal are one atomic unit per role, so two concurrent
	// deletions cannot both take a role's last remaining holders.
	Delete(ctx context.Context, id string) error
}
