package session

import (
	"context"

	"consoleauth/internal/session/models"
)

// AuthAPI is the backend surface the manager depends on. apiclient.Client
// implements it.
type AuthAPI interface {
	Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Profile(ctx context.Context) (*models.Profile, error)
	UpdateProfile(ctx context.Context, patch models.ProfilePatch) (*models.User, error)
	ChangePassword(ctx context.Context, change models.PasswordChange) error
	Register(ctx context.Context, reg models.Registration) (*models.User, error)
	SendCode(ctx context.Context, req models.CodeRequest) error
	ResetPassword(ctx context.Context, reset models.PasswordReset) error
	EnableTwoFactor(ctx context.Context) (*models.TwoFactorSetup, error)
	DisableTwoFactor(ctx context.Context, code string) error
	VerifyTwoFactor(ctx context.Context, code string) error
}

// Invalidator drops cached authorization answers. permission.Cache
// implements it.
type Invalidator interface {
	Clear()
}

// LoginRedirector sends the user back to the login entry point after the
// session was lost.
type LoginRedirector interface {
	RedirectToLogin(ctx context.Context, reason string)
}
