package ports

import "context"

// AdminCaller identifies the administrator performing a mutation, as
// extracted from the access token by the transport layer.
type AdminCaller struct {
	AccountID string
	Roles     []string
}

// AdminService applies rank-gated administrative mutations. Every operation
// runs the hierarchy, self-action, and (where relevant) last-admin and
// escalation guards before mutating, and revokes or rotates the target's
// sessions per policy afterwards.
type AdminService interface {
	AssignRole(ctx context.Context, caller AdminCaller, targetID, role string) error
	RemoveRole(ctx context.Context, caller AdminCaller, targetID, role string) error
	LockAccount(ctx context.Context, caller AdminCaller, targetID string) error
	UnlockAccount(ctx context.Context, caller AdminCaller, targetID string) error
	DeleteAccount(ctx context.Context, caller AdminCaller, targetID string) error
	SendPasswordReset(ctx context.Context, caller AdminCaller, targetID string) error
	VerifyEmail(ctx context.Context, caller AdminCaller, targetID string) error
}
