package handler

// --- Request / Response types ---

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	// Identifier accepts the email address or the username.
	Identifier string `json:"identifier"  validate:"required"`
	Password   string `json:"password"    validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

type twoFactorRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code"            validate:"required,len=6,numeric"`
}

type recoveryCodeRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	RecoveryCode   string `json:"recovery_code"   validate:"required"`
}

type refreshRequest struct {
	// RefreshToken may be omitted when the browser flow carries it in the
	// secure cookie instead.
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type setPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type loginResponse struct {
	RequiresTwoFactor bool           `json:"requires_two_factor"`
	ChallengeToken    string         `json:"challenge_token,omitempty"`
	Tokens            *tokenResponse `json:"tokens,omitempty"`
}

type accountResponse struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	Username       string   `json:"username"`
	EmailConfirmed bool     `json:"email_confirmed"`
	TwoFactor      bool     `json:"two_factor_enabled"`
	Roles          []string `json:"roles"`
}
