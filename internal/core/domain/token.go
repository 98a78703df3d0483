package domain

import "time"

// RefreshToken is the persisted record of an opaque refresh credential.
// Only the SHA-256 hash of the plaintext is ever stored; the plaintext is
// returned exactly once to the caller that requested issuance.
//
// A token is redeemable at most once: redemption atomically flips IsUsed and
// issues a successor. Invalidation (logout-all, lock, delete) is terminal.
type RefreshToken struct {
	ID            string    `json:"id"`
	TokenHash     string    `json:"-"`
	AccountID     string    `json:"account_id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	IsUsed        bool      `json:"is_used"`
	IsInvalidated bool      `json:"is_invalidated"`
	IsPersistent  bool      `json:"is_persistent"`
}

// Redeemable reports whether the token could still be redeemed at now.
// The authoritative check-and-mark happens atomically in the store; this is
// only used to discriminate the failure reason after a conditional update
// found no live token.
func (t *RefreshToken) Redeemable(now time.Time) bool {
	return !t.IsUsed && !t.IsInvalidated && now.Before(t.ExpiresAt)
}

// TwoFactorChallenge binds a password-verified login to a pending second
// factor. It lives only in the challenge store for a short TTL and is
// consumed exactly once by code or recovery-code verification.
type TwoFactorChallenge struct {
	AccountID  string    `json:"account_id"`
	Persistent bool      `json:"persistent"`
	IssuedAt   time.Time `json:"issued_at"`
}

// TokenPair is the product of a successful authentication step.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginOutcome is the result of the first authentication step. When the
// account has two-factor enabled, Tokens is empty and ChallengeToken carries
// the opaque handle for the second step.
type LoginOutcome struct {
	RequiresTwoFactor bool      `json:"requires_two_factor"`
	ChallengeToken    string    `json:"challenge_token,omitempty"`
	Tokens            TokenPair `json:"tokens,omitempty"`
}
