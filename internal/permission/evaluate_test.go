package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"consoleauth/internal/session/models"
)

func snapshot(roles []string, perms ...string) models.Snapshot {
	s := models.Snapshot{
		Status:      models.StatusAuthenticated,
		User:        &models.User{ID: "u1", Username: "alice"},
		AccessToken: "tok",
		Permissions: perms,
	}
	for i, r := range roles {
		s.Roles = append(s.Roles, models.Role{ID: string(rune('a' + i)), Name: r, IsEnabled: true})
	}
	return s.Normalize()
}

func TestEvaluate(t *testing.T) {
	editor := snapshot([]string{"EDITOR"}, "user.read", "user.update")
	superAdmin := snapshot([]string{models.SuperAdminRole})

	tests := []struct {
		name    string
		snap    models.Snapshot
		opts    CheckOptions
		allowed bool
		reason  string
	}{
		{
			name:   "no user is denied",
			snap:   models.Empty(),
			opts:   CheckOptions{},
			reason: ReasonNotAuthenticated,
		},
		{
			name:    "no requirements allows any user",
			snap:    editor,
			allowed: true,
		},
		{
			name:    "super admin bypasses every requirement by default",
			snap:    superAdmin,
			opts:    CheckOptions{Permissions: []string{"x.delete"}, Roles: []string{"AUDITOR"}, RequireAll: true},
			allowed: true,
			reason:  ReasonSuperAdminBypass,
		},
		{
			name:    "explicit true keeps the bypass",
			snap:    superAdmin,
			opts:    CheckOptions{Permissions: []string{"x.delete"}, SkipSuperAdmin: Bool(true)},
			allowed: true,
			reason:  ReasonSuperAdminBypass,
		},
		{
			name:   "explicit false applies normal rules to super admins",
			snap:   superAdmin,
			opts:   CheckOptions{Permissions: []string{"x.delete"}, SkipSuperAdmin: Bool(false)},
			reason: "requires any permission: x.delete",
		},
		{
			name:    "bypass precedes custom check",
			snap:    superAdmin,
			opts:    CheckOptions{CustomCheck: func(models.Snapshot) bool { return false }},
			allowed: true,
			reason:  ReasonSuperAdminBypass,
		},
		{
			name: "custom check replaces role and permission gates",
			snap: editor,
			opts: CheckOptions{
				Roles:       []string{"AUDITOR"},
				CustomCheck: func(s models.Snapshot) bool { return s.User.Username == "alice" },
			},
			allowed: true,
		},
		{
			name:   "failing custom check denies",
			snap:   editor,
			opts:   CheckOptions{CustomCheck: func(models.Snapshot) bool { return false }},
			reason: ReasonCustomCheckFailed,
		},
		{
			name:    "roles match on any",
			snap:    editor,
			opts:    CheckOptions{Roles: []string{"AUDITOR", "EDITOR"}, RequireAll: true},
			allowed: true,
		},
		{
			name:   "missing role denies",
			snap:   editor,
			opts:   CheckOptions{Roles: []string{"AUDITOR", "OWNER"}},
			reason: "requires one of roles: AUDITOR, OWNER",
		},
		{
			name:    "any permission",
			snap:    editor,
			opts:    CheckOptions{Permissions: []string{"user.delete", "user.read"}},
			allowed: true,
		},
		{
			name:   "require all permissions",
			snap:   editor,
			opts:   CheckOptions{Permissions: []string{"user.delete", "user.read"}, RequireAll: true},
			reason: "requires all permissions: user.delete, user.read",
		},
		{
			name:    "require all satisfied",
			snap:    editor,
			opts:    CheckOptions{Permissions: []string{"user.update", "user.read"}, RequireAll: true},
			allowed: true,
		},
		{
			name:   "role and permission gates are ANDed",
			snap:   editor,
			opts:   CheckOptions{Roles: []string{"EDITOR"}, Permissions: []string{"user.delete"}},
			reason: "requires any permission: user.delete",
		},
		{
			name:   "permission without role still fails the role gate",
			snap:   editor,
			opts:   CheckOptions{Roles: []string{"AUDITOR"}, Permissions: []string{"user.read"}},
			reason: "requires one of roles: AUDITOR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.snap, tt.opts)
			assert.Equal(t, tt.allowed, res.Allowed)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.allowed, Can(tt.snap, tt.opts))
		})
	}
}

func TestEvaluate_DisabledRolesStillCount(t *testing.T) {
	s := snapshot(nil)
	s.Roles = []models.Role{{Name: "EDITOR", IsEnabled: false}}
	assert.True(t, Can(s, CheckOptions{Roles: []string{"EDITOR"}}))
}

func TestPredicates(t *testing.T) {
	editor := snapshot([]string{"EDITOR"}, "user.read", "user.update")
	admin := snapshot([]string{models.AdminRole})
	superAdmin := snapshot([]string{models.SuperAdminRole})
	anonymous := models.Empty()

	assert.True(t, HasPermission(editor, "user.read"))
	assert.False(t, HasPermission(editor, "user.delete"))
	assert.False(t, HasPermission(anonymous, "user.read"))

	assert.True(t, HasAnyPermission(editor, "user.delete", "user.update"))
	assert.False(t, HasAnyPermission(editor))
	assert.True(t, HasAllPermissions(editor, "user.read", "user.update"))
	assert.False(t, HasAllPermissions(editor, "user.read", "user.delete"))
	assert.True(t, HasAllPermissions(editor))
	assert.False(t, HasAllPermissions(anonymous))

	assert.True(t, HasRole(editor, "EDITOR"))
	assert.False(t, HasRole(editor, "editor"), "role names are case sensitive")
	assert.True(t, HasAnyRole(editor, "AUDITOR", "EDITOR"))

	assert.False(t, IsSuperAdmin(admin))
	assert.True(t, IsSuperAdmin(superAdmin))
	assert.True(t, IsAdmin(admin))
	assert.True(t, IsAdmin(superAdmin))
	assert.False(t, IsAdmin(editor))

	assert.False(t, HasPermission(superAdmin, "anything"), "predicates do not apply the bypass")
}
