package domain

import "errors"

// Credential and session errors. ErrInvalidCredentials is returned for both
// unknown identifiers and wrong passwords so that responses never leak
// whether an account exists.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrNoPasswordSet      = errors.New("no password set")
	ErrPasswordAlreadySet = errors.New("password already set")
)

// Two-factor errors.
var (
	ErrTwoFactorCodeInvalid = errors.New("invalid two-factor code")
	ErrChallengeInvalid     = errors.New("invalid or expired challenge token")
	ErrRecoveryCodeInvalid  = errors.New("invalid recovery code")
	ErrTwoFactorNotEnabled  = errors.New("two-factor authentication not enabled")
)

// Refresh-token errors. The store's atomic consume reports exactly one of
// these per failed redemption attempt.
var (
	ErrTokenNotFound    = errors.New("refresh token not found")
	ErrTokenExpired     = errors.New("refresh token expired")
	ErrTokenAlreadyUsed = errors.New("refresh token already used")
	ErrTokenInvalidated = errors.New("refresh token invalidated")
)

// External-provider errors.
var (
	ErrUnknownProvider          = errors.New("unknown provider")
	ErrRedirectNotAllowed       = errors.New("redirect uri not allowed")
	ErrInvalidState             = errors.New("invalid state token")
	ErrCodeExchangeFailed       = errors.New("provider code exchange failed")
	ErrAlreadyLinkedToOtherUser = errors.New("provider already linked to another account")
	ErrAlreadyLinked            = errors.New("provider already linked")
	ErrEmailNotVerified         = errors.New("email not verified")
	ErrCannotUnlinkLastMethod   = errors.New("cannot remove the last authentication method")
	ErrLinkNotFound             = errors.New("provider link not found")
)

// Authorization-hierarchy errors.
var (
	ErrHierarchyInsufficient = errors.New("caller rank not above target rank")
	ErrLastAdmin             = errors.New("cannot remove the last administrator")
	ErrSelfAction            = errors.New("action cannot target the calling account")
	ErrRoleAssignAboveRank   = errors.New("role rank not below caller rank")
	ErrPermissionEscalation  = errors.New("caller lacks permissions granted by role")
	ErrRoleNotFound          = errors.New("role not found")
	ErrRoleAlreadyAssigned   = errors.New("role already assigned")
	ErrRoleNotAssigned       = errors.New("role not assigned")
	ErrForbidden             = errors.New("access forbidden")
)
