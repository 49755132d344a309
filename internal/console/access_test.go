package console

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consoleauth/internal/session/models"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogAccessChanges(t *testing.T) {
	var out syncBuffer
	log := slog.New(slog.NewJSONHandler(&out, nil))
	source := newStaticSource(models.Empty())
	ctx, cancel := context.WithCancel(context.Background())

	done := LogAccessChanges(ctx, source, log)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"status":"unauthenticated"`) },
		time.Second, time.Millisecond)

	user := &models.User{ID: "u1", Username: "alice"}
	source.set(models.Snapshot{
		Status:      models.StatusAuthenticated,
		User:        user,
		AccessToken: "tok",
		Roles:       []models.Role{{Name: "EDITOR"}},
		Permissions: []string{PermUserRead},
	})
	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"user_id":"u1"`) },
		time.Second, time.Millisecond)
	assert.Contains(t, out.String(), `"roles":"EDITOR"`)
	assert.Contains(t, out.String(), `"permissions":"user.read"`)

	source.set(models.Snapshot{
		Status:      models.StatusAuthenticated,
		User:        user,
		AccessToken: "tok",
		Roles:       []models.Role{{Name: "EDITOR"}},
		Permissions: []string{PermUserRead},
		Loading:     true,
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("access logger did not stop")
	}
	assert.Equal(t, 2, strings.Count(out.String(), `"msg":"session access"`), "unchanged access is not logged again")
}
