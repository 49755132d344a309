package models

import "time"

// Distinguished role names. SuperAdminRole bypasses permission checks unless a
// check opts out; AdminRole is informational.
const (
	SuperAdminRole = "SUPER_ADMIN"
	AdminRole      = "ADMIN"
)

// User is the backend's identity record. The client holds a cached copy that
// is replaced on profile update and dropped on logout.
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name,omitempty"`
	LastName         string     `json:"last_name,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	IsEnabled        bool       `json:"is_enabled"`
	PhoneVerified    bool       `json:"phone_verified"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// Clone returns a deep copy so snapshots never alias manager state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

type Role struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsSystemRole bool   `json:"is_system_role"`
	IsEnabled    bool   `json:"is_enabled"`
}

// Credentials are exchanged for a token pair at login.
type Credentials struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"two_factor_code,omitempty"`
}

// TokenPair is what login and refresh hand back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// LoginResult is the login payload: a token pair plus a user snapshot.
type LoginResult struct {
	TokenPair
	User *User `json:"user"`
}

// Profile is the full authorization picture of the current user.
type Profile struct {
	User        *User    `json:"user"`
	Roles       []Role   `json:"roles"`
	Permissions []string `json:"permissions"`
}

// ProfilePatch carries the mutable profile fields. Nil fields are left alone.
type ProfilePatch struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type Registration struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	VerificationCode string `json:"verification_code,omitempty"`
}

// CodeRequest asks the backend to send a verification code.
type CodeRequest struct {
	Target  string `json:"target"`
	Purpose string `json:"purpose"`
}

type PasswordReset struct {
	Target      string `json:"target"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// TwoFactorSetup is returned when two-factor authentication is enabled.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes,omitempty"`
}
