package domain

import "time"

// Account models an authenticated identity in the system.
//
// SecurityStamp is an opaque version marker baked into every access token;
// rotating it invalidates all outstanding access tokens for the account
// without needing a revocation list.
type Account struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	Username       string            `json:"username,omitempty"`
	PasswordHash   string            `json:"-"`
	SecurityStamp  string            `json:"-"`
	EmailConfirmed bool              `json:"email_confirmed"`
	LockoutUntil   *time.Time        `json:"lockout_until,omitempty"`
	TwoFactor      TwoFactorSettings `json:"-"`
	Roles          []string          `json:"roles"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TwoFactorSettings holds the account's second-factor material. The TOTP
// secret and recovery-code hashes never leave the server.
type TwoFactorSettings struct {
	Enabled            bool
	TOTPSecret         []byte
	RecoveryCodeHashes []string
}

// HasPassword reports whether the account has a local credential. Accounts
// provisioned through an external provider start without one.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// IsLockedOut reports whether the account is under an active lockout at now.
func (a *Account) IsLockedOut(now time.Time) bool {
	return a.LockoutUntil != nil && a.LockoutUntil.After(now)
}

// HasRole reports whether the account holds the named role.
func (a *Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
