package apiclient

import (
	"context"
	"net/http"

	"consoleauth/internal/session/models"
)

// Login exchanges credentials for a token pair and user snapshot.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error) {
	var out models.LoginResult
	if err := c.do(ctx, call{op: "login", method: http.MethodPost, path: "/auth/login", body: creds, out: &out, public: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the refresh token server-side.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	// logout with a dead access token must not try to recover the session
	return c.do(ctx, call{
		op:        "logout",
		method:    http.MethodPost,
		path:      "/auth/logout",
		body:      refreshRequest{RefreshToken: refreshToken},
		noRecover: true,
	})
}

// Refresh trades a refresh token for a new pair. It never triggers recovery.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	var out models.TokenPair
	err := c.do(ctx, call{
		op:     "refresh",
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   refreshRequest{RefreshToken: refreshToken},
		out:    &out,
		public: true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context) (*models.Profile, error) {
	var out models.Profile
	if err := c.do(ctx, call{op: "profile", method: http.MethodGet, path: "/auth/profile", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, patch models.ProfilePatch) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, call{op: "update_profile", method: http.MethodPut, path: "/auth/profile", body: patch, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangePassword(ctx context.Context, change models.PasswordChange) error {
	return c.do(ctx, call{op: "change_password", method: http.MethodPut, path: "/auth/password", body: change})
}

func (c *Client) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, call{op: "register", method: http.MethodPost, path: "/auth/register", body: reg, out: &out, public: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendCode(ctx context.Context, req models.CodeRequest) error {
	return c.do(ctx, call{op: "send_code", method: http.MethodPost, path: "/auth/send-code", body: req, public: true})
}

func (c *Client) ResetPassword(ctx context.Context, reset models.PasswordReset) error {
	return c.do(ctx, call{op: "reset_password", method: http.MethodPost, path: "/auth/reset-password", body: reset, public: true})
}

func (c *Client) EnableTwoFactor(ctx context.Context) (*models.TwoFactorSetup, error) {
	var out models.TwoFactorSetup
	if err := c.do(ctx, call{op: "enable_2fa", method: http.MethodPost, path: "/auth/enable-2fa", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DisableTwoFactor(ctx context.Context, code string) error {
	return c.do(ctx, call{op: "disable_2fa", method: http.MethodPost, path: "/auth/disable-2fa", body: codeBody{Code: code}})
}

func (c *Client) VerifyTwoFactor(ctx context.Context, code string) error {
	return c.do(ctx, call{op: "verify_2fa", method: http.MethodPost, path: "/auth/verify-2fa", body: codeBody{Code: code}})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type codeBody struct {
	Code string `json:"code"`
}
