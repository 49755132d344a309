package guard

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consoleauth/internal/permission"
	"consoleauth/internal/session/models"
)

func render(t *testing.T, r Renderer) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	return buf.String()
}

func TestPermission(t *testing.T) {
	editor := signedIn([]string{"EDITOR"}, "user.read")
	needDelete := permission.CheckOptions{Permissions: []string{"user.delete"}}

	t.Run("renders children when allowed", func(t *testing.T) {
		out := render(t, Permission(editor, PermissionConfig{CheckOptions: permission.CheckOptions{Permissions: []string{"user.read"}}},
			Text("a"), Text("b")))
		assert.Equal(t, "ab", out)
	})

	t.Run("renders fallback when denied", func(t *testing.T) {
		out := render(t, Permission(editor, PermissionConfig{CheckOptions: needDelete, Fallback: Text("no access")}, Text("delete")))
		assert.Equal(t, "no access", out)
	})

	t.Run("hides even with a fallback", func(t *testing.T) {
		out := render(t, Permission(editor, PermissionConfig{CheckOptions: needDelete, Fallback: Text("x"), HideIfNoPermission: true}, Text("delete")))
		assert.Empty(t, out)
	})

	t.Run("renders nothing for anonymous sessions", func(t *testing.T) {
		assert.Empty(t, render(t, Permission(models.Empty(), PermissionConfig{}, Text("x"))))
	})
}

func TestButton(t *testing.T) {
	editor := signedIn([]string{"EDITOR"}, "user.read")
	needDelete := permission.CheckOptions{Permissions: []string{"user.delete"}}

	assert.Equal(t, ElementState{Visible: true}, Button(editor, ButtonConfig{CheckOptions: permission.CheckOptions{Permissions: []string{"user.read"}}}))

	disabled := Button(editor, ButtonConfig{CheckOptions: needDelete})
	assert.True(t, disabled.Visible)
	assert.True(t, disabled.Disabled, "disabled by default")
	assert.Equal(t, "requires any permission: user.delete", disabled.Reason)

	hidden := Button(editor, ButtonConfig{CheckOptions: needDelete, HideIfNoPermission: true})
	assert.False(t, hidden.Visible)

	enabled := Button(editor, ButtonConfig{CheckOptions: needDelete, DisableIfNoPermission: permission.Bool(false)})
	assert.True(t, enabled.Visible)
	assert.False(t, enabled.Disabled)

	assert.Equal(t, "[Delete] (disabled: requires any permission: user.delete)", render(t, RenderButton("Delete", disabled)))
	assert.Equal(t, "[Save]", render(t, RenderButton("Save", ElementState{Visible: true})))
	assert.Empty(t, render(t, RenderButton("Delete", hidden)))
}

func TestTooltip(t *testing.T) {
	editor := signedIn([]string{"EDITOR"}, "user.read")
	assert.Equal(t, "Export", render(t, Tooltip(editor, permission.CheckOptions{Permissions: []string{"user.read"}}, Text("Export"))))
	assert.Equal(t, "Export (requires one of roles: AUDITOR)",
		render(t, Tooltip(editor, permission.CheckOptions{Roles: []string{"AUDITOR"}}, Text("Export"))))
}

func TestFilterMenu(t *testing.T) {
	editor := signedIn([]string{"EDITOR"}, "user.read")
	menu := []MenuItem{
		{Label: "Dashboard", Path: "/"},
		{Label: "Users", Path: "/users", Require: &permission.CheckOptions{Permissions: []string{"user.read"}}},
		{Label: "System", Children: []MenuItem{
			{Label: "Roles", Path: "/roles", Require: &permission.CheckOptions{Permissions: []string{"role.read"}}},
			{Label: "Audit", Path: "/audit", Require: &permission.CheckOptions{Roles: []string{"AUDITOR"}}},
		}},
		{Label: "Settings", Path: "/settings", Children: []MenuItem{
			{Label: "Danger", Path: "/settings/danger", Require: &permission.CheckOptions{Roles: []string{models.AdminRole}}},
		}},
	}

	got := FilterMenu(editor, menu)
	require.Len(t, got, 3)
	assert.Equal(t, "Dashboard", got[0].Label)
	assert.Equal(t, "Users", got[1].Label)
	assert.Equal(t, "Settings", got[2].Label, "parent with its own path survives")
	assert.Empty(t, got[2].Children)

	assert.Len(t, menu[2].Children, 2, "input is not modified")

	out := render(t, RenderMenu(FilterMenu(signedIn([]string{models.SuperAdminRole}), menu)))
	assert.Equal(t, "- Dashboard (/)\n- Users (/users)\n- System\n  - Roles (/roles)\n  - Audit (/audit)\n- Settings (/settings)\n  - Danger (/settings/danger)\n", out)
}

func TestGroup_StopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	var buf bytes.Buffer
	err := Group(Text("a"), RendererFunc(func(io.Writer) error { return boom }), Text("b")).Render(&buf)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "a", buf.String())
}
