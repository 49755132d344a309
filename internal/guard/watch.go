package guard

import (
	"context"
	"sync"

	"consoleauth/internal/permission"
	"consoleauth/internal/session/models"
)

// Watch evaluates fn against the current session and again after every
// transition, delivering results on the returned channel until ctx is done.
// The channel holds the latest value only: a slow reader skips intermediate
// states but never blocks the session. A snapshot older than one already
// delivered is ignored. The channel is closed after unsubscribing.
func Watch[T any](ctx context.Context, source SessionSource, fn func(models.Snapshot) T) <-chan T {
	out := make(chan T, 1)
	var mu sync.Mutex
	closed := false
	var lastSeq uint64

	push := func(s models.Snapshot) {
		v := fn(s)
		mu.Lock()
		defer mu.Unlock()
		if closed || s.Seq < lastSeq {
			return
		}
		lastSeq = s.Seq
		select {
		case <-out:
		default:
		}
		out <- v
	}

	unsubscribe := source.Subscribe(push)
	push(source.Snapshot())

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out
}

// WatchPermission streams permission results for opts.
func WatchPermission(ctx context.Context, source SessionSource, opts permission.CheckOptions) <-chan permission.Result {
	return Watch(ctx, source, func(s models.Snapshot) permission.Result {
		return permission.Evaluate(s, opts)
	})
}
