// Package guard turns permission answers into navigation and rendering
// decisions for the console's HTTP front end.
package guard

import (
	"context"
	"net/url"

	"consoleauth/internal/session/models"
)

const (
	DefaultLoginPath        = "/login"
	DefaultUnauthorizedPath = "/unauthorized"
)

// SessionSource is what guards read the session from. session.Manager
// implements it.
type SessionSource interface {
	Snapshot() models.Snapshot
	Ready() <-chan struct{}
	Subscribe(fn func(models.Snapshot)) (unsubscribe func())
}

// Outcome is the result of guarding a navigation.
type Outcome int

const (
	// Pending means the session is still hydrating; nothing should be shown
	// or redirected yet.
	Pending Outcome = iota
	Allow
	RedirectLogin
	RedirectUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	default:
		return "pending"
	}
}

// Decision is an outcome plus where to send the user.
type Decision struct {
	Outcome  Outcome
	Location string
	Reason   string
}

func pending() Decision { return Decision{Outcome: Pending} }

func allow() Decision { return Decision{Outcome: Allow} }

// toLogin keeps the attempted location so login can send the user back.
func toLogin(loginPath, from string) Decision {
	loc := loginPath
	if from != "" {
		loc = withQuery(loginPath, "from", from)
	}
	return Decision{Outcome: RedirectLogin, Location: loc, Reason: "not authenticated"}
}

func toUnauthorized(path, reason string) Decision {
	loc := path
	if reason != "" {
		loc = withQuery(path, "reason", reason)
	}
	return Decision{Outcome: RedirectUnauthorized, Location: loc, Reason: reason}
}

func withQuery(path, key, value string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// Decider is a guard that can be mounted as middleware.
type Decider interface {
	Decide(ctx context.Context, s models.Snapshot, from string) Decision
}
