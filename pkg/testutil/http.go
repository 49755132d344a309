// Package testutil holds helpers shared by handler, guard and session tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RequestOption adjusts a request built by NewRequest.
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// WithRemoteAddr overrides the peer address seen by the handler.
func WithRemoteAddr(addr string) RequestOption {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func NewRequest(t *testing.T, method, path string, opts ...RequestOption) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	return req
}

func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalResponse decodes the JSON body into a fresh T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var v T
	decode(t, rr, &v)
	return &v
}

func AssertStatusOK(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
}

// AssertStatusAndError checks the status and the "error" field of the
// httputil error envelope.
func AssertStatusAndError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, "body: %s", rr.Body.String())
	var body map[string]string
	decode(t, rr, &body)
	assert.Equal(t, code, body["error"])
}

func AssertJSONContains(t *testing.T, rr *httptest.ResponseRecorder, key string, want any) {
	t.Helper()
	var body map[string]any
	decode(t, rr, &body)
	assert.Equal(t, want, body[key], "key %q", key)
}

// AssertRedirect requires a 302 to path and returns the Location query.
func AssertRedirect(t *testing.T, rr *httptest.ResponseRecorder, path string) url.Values {
	t.Helper()
	require.Equal(t, http.StatusFound, rr.Code, "body: %s", rr.Body.String())
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, path, loc.Path)
	return loc.Query()
}

// decode leaves rr.Body intact so a test can assert on it more than once.
func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), "decode body: %s", rr.Body.String())
}
