package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consoleauth/pkg/platform/middleware/metadata"
	"consoleauth/pkg/requestcontext"
	tu "consoleauth/pkg/testutil"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("keeps the caller's id", func(t *testing.T) {
		rr := tu.DoRequest(h, tu.NewRequest(t, http.MethodGet, "/", tu.WithHeader(HeaderRequestID, "abc")))
		assert.Equal(t, "abc", seen)
		assert.Equal(t, "abc", rr.Header().Get(HeaderRequestID))
	})

	t.Run("mints one when missing", func(t *testing.T) {
		rr := tu.DoRequest(h, tu.NewRequest(t, http.MethodGet, "/"))
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get(HeaderRequestID))
	})
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := metadata.ClientMetadata(RequestID(AccessLog(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))))

	tu.DoRequest(h, tu.NewRequest(t, http.MethodGet, "/users",
		tu.WithHeader(HeaderRequestID, "req-1"),
		tu.WithRemoteAddr("10.0.0.1:5555"),
		tu.WithHeader("User-Agent", "consoleauth-test"),
	))

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/users"`)
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"client_ip":"10.0.0.1"`)
	assert.Contains(t, out, `"user_agent":"consoleauth-test"`)
}
