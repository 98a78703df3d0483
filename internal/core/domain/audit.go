package domain

import "time"

// Audit action tags emitted by the core. Write-only from this service's
// perspective; the recorder persists them without ever reading back.
const (
	AuditLoginSuccess      = "login.success"
	AuditLoginFailure      = "login.failure"
	AuditLoginTwoFactor    = "login.two_factor"
	AuditRefresh           = "token.refresh"
	AuditRefreshReuse      = "token.refresh_reuse"
	AuditLogout            = "session.logout"
	AuditPasswordChanged   = "password.changed"
	AuditPasswordSet       = "password.set"
	AuditExternalChallenge = "external.challenge"
	AuditExternalCallback  = "external.callback"
	AuditExternalUnlink    = "external.unlink"
	AuditRoleAssigned      = "admin.role_assigned"
	AuditRoleRemoved       = "admin.role_removed"
	AuditAccountLocked     = "admin.account_locked"
	AuditAccountUnlocked   = "admin.account_unlocked"
	AuditAccountDeleted    = "admin.account_deleted"
	AuditEmailVerified     = "admin.email_verified"
	AuditPasswordResetSent = "admin.password_reset_sent"
)

// AuditEvent records a security-relevant action for the external audit
// collaborator.
type AuditEvent struct {
	Action     string            `json:"action"`
	ActorID    string            `json:"actor_id,omitempty"`
	TargetType string            `json:"target_type,omitempty"`
	TargetID   string            `json:"target_id,omitempty"`
	Success    bool              `json:"success"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
