package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/ports"
)

// AdminService applies rank-gated administrative mutations over accounts
// and their roles. Every privilege-changing mutation revokes the target's
// sessions, with one deliberate exception: role changes rotate the security
// stamp but keep refresh tokens alive so the client can silently
// re-authenticate with updated claims.
type AdminService struct {
	accounts ports.AccountRepository
	roles    ports.RoleRepository
	tokens   ports.TokenService
	mailer   ports.Mailer
	audit    ports.AuditRecorder
	log      zerolog.Logger
}

func NewAdminService(accounts ports.AccountRepository, roles ports.RoleRepository, tokens ports.TokenService, mailer ports.Mailer, audit ports.AuditRecorder, log zerolog.Logger) *AdminService {
	return &AdminService{
		accounts: accounts,
		roles:    roles,
		tokens:   tokens,
		mailer:   mailer,
		audit:    audit,
		log:      log,
	}
}

// AssignRole grants a role to the target account. The role must rank
// strictly below the caller, and for custom roles the caller must already
// hold every permission the role grants.
func (s *AdminService) AssignRole(ctx context.Context, caller ports.AdminCaller, targetID, role string) error {
	target, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := EnforceHierarchy(caller.Roles, target.Roles); err != nil {
		return err
	}
	callerRank := domain.HighestRank(caller.Roles)
	if err := EnforceRoleAssignmentRank(callerRank, domain.RankOf(role)); err != nil {
		return err
	}

	roleDef, err := s.roles.FindByName(ctx, role)
	if err != nil {
		return domain.ErrRoleNotFound
	}
	if len(roleDef.Permissions) > 0 {
		callerPerms, err := s.roles.PermissionsForRoles(ctx, caller.Roles)
		if err != nil {
			return fmt.Errorf("resolve caller permissions: %w", err)
		}
		if err := EnforcePermissionEscalation(callerRank, callerPerms, roleDef.Permissions); err != nil {
			return err
		}
	}

	if target.HasRole(role) {
		return domain.ErrRoleAlreadyAssigned
	}
	if err := s.accounts.AddRole(ctx, targetID, role); err != nil {
		return err
	}

	// Stamp rotation only: outstanding access tokens die, refresh tokens
	// survive so the client re-auths silently with the new role set.
	if err := s.tokens.RotateSecurityStamp(ctx, targetID); err != nil {
		return err
	}
	s.record(domain.AuditRoleAssigned, caller.AccountID, targetID, true, map[string]string{"role": role})
	return nil
}

// RemoveRole takes a role away from the target account. Removal of an
// administrative role is conditional on other holders remaining; the count
// check and the removal are one atomic store operation, so concurrent
// removals of different holders cannot both drop the role past its floor.
func (s *AdminService) RemoveRole(ctx context.Context, caller ports.AdminCaller, targetID, role string) error {
	if err := EnforceSelfActionProtection(caller.AccountID, targetID); err != nil {
		return err
	}
	target, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := EnforceHierarchy(caller.Roles, target.Roles); err != nil {
		return err
	}
	if err := EnforceRoleAssignmentRank(domain.HighestRank(caller.Roles), domain.RankOf(role)); err != nil {
		return err
	}
	if !target.HasRole(role) {
		return domain.ErrRoleNotAssigned
	}

	minHolders := int64(0)
	if domain.IsAdministrative(role) {
		count, err := s.accounts.CountRoleHolders(ctx, role)
		if err != nil {
			return err
		}
		if err := EnforceLastAdminProtection(role, count); err != nil {
			return err
		}
		minHolders = 2
	}
	if err := s.accounts.RemoveRole(ctx, targetID, role, minHolders); err != nil {
		return err
	}

	if err := s.tokens.RotateSecurityStamp(ctx, targetID); err != nil {
		return err
	}
	s.record(domain.AuditRoleRemoved, caller.AccountID, targetID, true, map[string]string{"role": role})
	return nil
}

// LockAccount locks the target indefinitely and revokes all its sessions.
func (s *AdminService) LockAccount(ctx context.Context, caller ports.AdminCaller, targetID string) error {
	if err := EnforceSelfActionProtection(caller.AccountID, targetID); err != nil {
		return err
	}
	target, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := EnforceHierarchy(caller.Roles, target.Roles); err != nil {
		return err
	}

	until := time.Now().UTC().AddDate(100, 0, 0).Unix()
	if err := s.accounts.SetLockout(ctx, targetID, &until); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllSessions(ctx, targetID); err != nil {
		return err
	}
	s.record(domain.AuditAccountLocked, caller.AccountID, targetID, true, nil)
	return nil
}

// UnlockAccount clears the target's lockout.
func (s *AdminService) UnlockAccount(ctx context.Context, caller ports.AdminCaller, targetID string) error {
	target, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := EnforceHierarchy(caller.Roles, target.Roles); err != nil {
		return err
	}
	if err := s.accounts.SetLockout(ctx, targetID, nil); err != nil {
		return err
	}
	s.record(domain.AuditAccountUnlocked, caller.AccountID, targetID, true, nil)
	return nil
}

// DeleteAccount revokes every session first, then deletes the account.
// Holders of administrative roles are protected by the last-admin floor;
// the count check here gives the clean error, the repository enforces the
// floor atomically under concurrent deletions.
func (s *AdminService) DeleteAccount(ctx context.Context, caller ports.AdminCaller, targetID string) error {
	if err := EnforceSelfActionProtection(caller.AccountID, targetID); err != nil {
		return err
	}
	target, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := EnforceHierarchy(caller.Roles, target.Roles); err != nil {
		return err
	}
	for _, role := range target.Roles {
		if !domain.IsAdministrative(role) {
			continue
		}
		count, err := s.accounts.CountRoleHolders(ctx, role)
		if err != nil {
			return err
		}
		if err := EnforceLastAdminProtection(role, count); err != nil {
			return err
		}
	}

	if err := s.tokens.RevokeAllSessions(ctx, targetID); err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, targetID); err != nil {
		return err
	}
	s.record(domain.AuditAccountDeleted, caller.AccountID, targetID, true, nil)
	return nil
}

// SendPasswordReset emails a reset token to the target. Delivery failures
// are logged and swallowed: the audit trail still records the attempt and
// no account state changed.
func (s *AdminService) SendPasswordReset(ctx context.Context, caller ports.AdminCaller, targetID string) error {
	target, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := EnforceHierarchy(caller.Roles, target.Roles); err != nil {
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	resetToken := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.mailer.SendPasswordReset(ctx, target.Email, resetToken); err != nil {
		s.log.Error().Err(err).Str("account_id", targetID).Msg("password reset mail delivery failed")
	}
	s.record(domain.AuditPasswordResetSent, caller.AccountID, targetID, true, nil)
	return nil
}

// VerifyEmail marks the target's email confirmed and revokes its sessions
// so the next tokens carry the new confirmation claim.
func (s *AdminService) VerifyEmail(ctx context.Context, caller ports.AdminCaller, targetID string) error {
	target, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := EnforceHierarchy(caller.Roles, target.Roles); err != nil {
		return err
	}
	if err := s.accounts.SetEmailConfirmed(ctx, targetID); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllSessions(ctx, targetID); err != nil {
		return err
	}
	s.record(domain.AuditEmailVerified, caller.AccountID, targetID, true, nil)
	return nil
}

func (s *AdminService) record(action, actorID, targetID string, success bool, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(domain.AuditEvent{
		Action:     action,
		ActorID:    actorID,
		TargetType: "account",
		TargetID:   targetID,
		Success:    success,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	})
}
