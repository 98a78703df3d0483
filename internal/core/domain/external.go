package domain

import "time"

// ExternalAuthState is the single-use CSRF nonce binding an OAuth
// authorization request to its callback. The nonce travels to the provider
// embedded in the state parameter; only its hash is stored, mirroring the
// refresh-token hashing discipline.
type ExternalAuthState struct {
	ID          string    `json:"id"`
	TokenHash   string    `json:"-"`
	Provider    string    `json:"provider"`
	RedirectURI string    `json:"redirect_uri"`
	AccountID   string    `json:"account_id,omitempty"` // set when an authenticated user initiates linking
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsUsed      bool      `json:"is_used"`
}

// ExternalLogin links a provider identity to an account.
type ExternalLogin struct {
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	AccountID      string    `json:"account_id"`
	Email          string    `json:"email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CallbackResult describes which branch an OAuth callback resolved to.
type CallbackResult string

const (
	CallbackLoggedIn       CallbackResult = "logged_in"
	CallbackLinked         CallbackResult = "linked"
	CallbackAlreadyLinked  CallbackResult = "already_linked"
	CallbackAccountCreated CallbackResult = "account_created"
)

// CallbackOutcome is the result of a consumed OAuth callback. Tokens is
// populated only on the login and account-creation branches; linking an
// already-authenticated account issues none.
type CallbackOutcome struct {
	Result CallbackResult `json:"result"`
	Tokens *TokenPair     `json:"tokens,omitempty"`
}

// ExternalProfile is the provider-verified identity returned by the
// user-info endpoint after a successful code exchange.
type ExternalProfile struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	DisplayName    string
}
