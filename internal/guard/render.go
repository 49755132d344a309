package guard

import (
	"fmt"
	"io"
	"strings"

	"consoleauth/internal/permission"
	"consoleauth/internal/session/models"
)

// Renderer writes a piece of console output.
type Renderer interface {
	Render(w io.Writer) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(w io.Writer) error

func (f RendererFunc) Render(w io.Writer) error { return f(w) }

// Nothing renders nothing.
var Nothing Renderer = RendererFunc(func(io.Writer) error { return nil })

// Text renders s verbatim.
func Text(s string) Renderer {
	return RendererFunc(func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

// Group renders children in order, stopping at the first error.
func Group(children ...Renderer) Renderer {
	return RendererFunc(func(w io.Writer) error {
		for _, c := range children {
			if c == nil {
				continue
			}
			if err := c.Render(w); err != nil {
				return err
			}
		}
		return nil
	})
}

// PermissionConfig drives the conditional render guard.
type PermissionConfig struct {
	permission.CheckOptions
	// Fallback renders instead of the children on denial.
	Fallback Renderer
	// HideIfNoPermission renders nothing on denial, even with a Fallback.
	HideIfNoPermission bool
}

// Permission renders children when s passes the check, otherwise the
// fallback or nothing.
func Permission(s models.Snapshot, cfg PermissionConfig, children ...Renderer) Renderer {
	if permission.Can(s, cfg.CheckOptions) {
		return Group(children...)
	}
	if cfg.HideIfNoPermission || cfg.Fallback == nil {
		return Nothing
	}
	return cfg.Fallback
}

// ElementState is how an interactive element is presented.
type ElementState struct {
	Visible  bool
	Disabled bool
	Reason   string
}

// ButtonConfig drives the button guard. A nil DisableIfNoPermission counts as
// true.
type ButtonConfig struct {
	permission.CheckOptions
	HideIfNoPermission    bool
	DisableIfNoPermission *bool
}

// Button decides whether a button is shown, and whether it is clickable.
func Button(s models.Snapshot, cfg ButtonConfig) ElementState {
	res := permission.Evaluate(s, cfg.CheckOptions)
	if res.Allowed {
		return ElementState{Visible: true}
	}
	if cfg.HideIfNoPermission {
		return ElementState{Visible: false, Reason: res.Reason}
	}
	disable := cfg.DisableIfNoPermission == nil || *cfg.DisableIfNoPermission
	return ElementState{Visible: true, Disabled: disable, Reason: res.Reason}
}

// RenderButton draws a button in state as "[label]", or "[label] (disabled: reason)".
func RenderButton(label string, state ElementState) Renderer {
	if !state.Visible {
		return Nothing
	}
	if state.Disabled {
		return Text(fmt.Sprintf("[%s] (disabled: %s)", label, state.Reason))
	}
	return Text("[" + label + "]")
}

// Tooltip always renders children; on denial the reason is attached after
// them.
func Tooltip(s models.Snapshot, opts permission.CheckOptions, children ...Renderer) Renderer {
	res := permission.Evaluate(s, opts)
	if res.Allowed {
		return Group(children...)
	}
	return Group(Group(children...), Text(" ("+res.Reason+")"))
}

// MenuItem is a navigation entry with an optional requirement.
type MenuItem struct {
	Label    string
	Path     string
	Require  *permission.CheckOptions
	Children []MenuItem
}

// FilterMenu returns the entries s may see. A parent whose children were all
// filtered out and that has no path of its own is dropped.
func FilterMenu(s models.Snapshot, items []MenuItem) []MenuItem {
	out := make([]MenuItem, 0, len(items))
	for _, item := range items {
		if item.Require != nil && !permission.Can(s, *item.Require) {
			continue
		}
		if len(item.Children) > 0 {
			children := FilterMenu(s, item.Children)
			if len(children) == 0 && item.Path == "" {
				continue
			}
			item.Children = children
		}
		out = append(out, item)
	}
	return out
}

// RenderMenu draws items as an indented list.
func RenderMenu(items []MenuItem) Renderer {
	return RendererFunc(func(w io.Writer) error {
		return renderMenu(w, items, 0)
	})
}

func renderMenu(w io.Writer, items []MenuItem, depth int) error {
	for _, item := range items {
		line := strings.Repeat("  ", depth) + "- " + item.Label
		if item.Path != "" {
			line += " (" + item.Path + ")"
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
		if err := renderMenu(w, item.Children, depth+1); err != nil {
			return err
		}
	}
	return nil
}
