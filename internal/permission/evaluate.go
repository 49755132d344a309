// Package permission decides whether the current session may do something.
//
// Evaluate is pure: same snapshot and options, same answer. The backend stays
// the authority; these checks only drive what the console shows and where it
// navigates.
package permission

import (
	"fmt"
	"slices"
	"strings"

	"consoleauth/internal/session/models"
)

// Denial reasons.
const (
	ReasonNotAuthenticated  = "not authenticated"
	ReasonSuperAdminBypass  = "super admin bypass"
	ReasonCustomCheckFailed = "custom check failed"
)

// CheckOptions describe what an action requires. Role and permission gates
// are ANDed: both must pass when both are set.
type CheckOptions struct {
	Permissions []string
	Roles       []string
	// RequireAll applies to Permissions only. Roles always match on any.
	RequireAll bool
	// SkipSuperAdmin lets SUPER_ADMIN skip every other check. Nil counts as
	// true; only an explicit false turns the bypass off.
	SkipSuperAdmin *bool
	// CustomCheck replaces the role and permission gates when set.
	CustomCheck func(models.Snapshot) bool
}

// Result is a decision with a human reason for denials.
type Result struct {
	Allowed bool
	Reason  string
}

// Bool returns a pointer to b, for SkipSuperAdmin.
func Bool(b bool) *bool {
	return &b
}

// Evaluate applies the rules in order:
//
//  1. no user: deny
//  2. SUPER_ADMIN, unless SkipSuperAdmin is explicitly false: allow
//  3. CustomCheck, when set, decides
//  4. Roles: the user must hold at least one
//  5. Permissions: all of them with RequireAll, otherwise any
//  6. allow
func Evaluate(s models.Snapshot, opts CheckOptions) Result {
	if s.User == nil {
		return Result{Allowed: false, Reason: ReasonNotAuthenticated}
	}
	if bypassEnabled(opts) && s.HasRole(models.SuperAdminRole) {
		return Result{Allowed: true, Reason: ReasonSuperAdminBypass}
	}
	if opts.CustomCheck != nil {
		if opts.CustomCheck(s) {
			return Result{Allowed: true}
		}
		return Result{Allowed: false, Reason: ReasonCustomCheckFailed}
	}
	if len(opts.Roles) > 0 && !HasAnyRole(s, opts.Roles...) {
		return Result{Allowed: false, Reason: fmt.Sprintf("requires one of roles: %s", strings.Join(opts.Roles, ", "))}
	}
	if len(opts.Permissions) > 0 {
		if opts.RequireAll && !HasAllPermissions(s, opts.Permissions...) {
			return Result{Allowed: false, Reason: fmt.Sprintf("requires all permissions: %s", strings.Join(opts.Permissions, ", "))}
		}
		if !opts.RequireAll && !HasAnyPermission(s, opts.Permissions...) {
			return Result{Allowed: false, Reason: fmt.Sprintf("requires any permission: %s", strings.Join(opts.Permissions, ", "))}
		}
	}
	return Result{Allowed: true}
}

func bypassEnabled(opts CheckOptions) bool {
	return opts.SkipSuperAdmin == nil || *opts.SkipSuperAdmin
}

// Can is Evaluate(...).Allowed.
func Can(s models.Snapshot, opts CheckOptions) bool {
	return Evaluate(s, opts).Allowed
}

func HasPermission(s models.Snapshot, code string) bool {
	return s.User != nil && s.HasPermission(code)
}

// HasAnyPermission is false for an empty list.
func HasAnyPermission(s models.Snapshot, codes ...string) bool {
	return slices.ContainsFunc(codes, func(c string) bool { return HasPermission(s, c) })
}

// HasAllPermissions is true for an empty list when a user is present.
func HasAllPermissions(s models.Snapshot, codes ...string) bool {
	if s.User == nil {
		return false
	}
	for _, c := range codes {
		if !s.HasPermission(c) {
			return false
		}
	}
	return true
}

// HasRole matches names exactly. Disabled roles still count.
func HasRole(s models.Snapshot, name string) bool {
	return s.User != nil && s.HasRole(name)
}

func HasAnyRole(s models.Snapshot, names ...string) bool {
	return slices.ContainsFunc(names, func(n string) bool { return HasRole(s, n) })
}

func IsSuperAdmin(s models.Snapshot) bool {
	return HasRole(s, models.SuperAdminRole)
}

// IsAdmin is true for ADMIN and SUPER_ADMIN.
func IsAdmin(s models.Snapshot) bool {
	return HasAnyRole(s, models.AdminRole, models.SuperAdminRole)
}
