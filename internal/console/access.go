package console

import (
	"context"
	"log/slog"
	"strings"

	"consoleauth/internal/guard"
	"consoleauth/internal/session/models"
)

// access is what the console logs about the signed-in user.
type access struct {
	status      string
	userID      string
	roles       string
	permissions string
}

func accessOf(s models.Snapshot) access {
	a := access{
		status:      s.Status.String(),
		roles:       strings.Join(s.RoleNames(), ","),
		permissions: strings.Join(s.Permissions, ","),
	}
	if s.User != nil {
		a.userID = s.User.ID
	}
	return a
}

// LogAccessChanges logs whenever the signed-in user or their roles or
// permissions change, until ctx is done. The returned channel is closed once
// it has stopped.
func LogAccessChanges(ctx context.Context, source guard.SessionSource, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	changes := guard.Watch(ctx, source, accessOf)
	go func() {
		defer close(done)
		var last access
		logged := false
		for a := range changes {
			if logged && a == last {
				continue
			}
			last, logged = a, true
			logger.InfoContext(ctx, "session access",
				"status", a.status,
				"user_id", a.userID,
				"roles", a.roles,
				"permissions", a.permissions,
			)
		}
	}()
	return done
}
