package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"consoleauth/internal/session/models"
	dErrors "consoleauth/pkg/domain-errors"
	"consoleauth/pkg/platform/sentinel"
	"consoleauth/pkg/requestcontext"
)

type ClientSuite struct {
	suite.Suite
	router *chi.Mux
	server *httptest.Server
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.router = chi.NewRouter()
	s.server = httptest.NewServer(s.router)
	var err error
	s.client, err = New(s.server.URL+"/api/v1", WithVersion("1.2.3"))
	s.Require().NoError(err)
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) reset() {
	s.server.Close()
	s.SetupTest()
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]any{"code": code, "message": message, "details": map[string]any{"field": "username"}},
	})
}

func (s *ClientSuite) TestNew() {
	s.Run("requires base URL", func() {
		_, err := New("  ")
		s.Error(err)
	})

	s.Run("trims trailing slash", func() {
		c, err := New("http://backend/api/v1/")
		s.Require().NoError(err)
		s.Equal("http://backend/api/v1", c.BaseURL())
	})
}

func (s *ClientSuite) TestLogin() {
	var seen http.Header
	var body models.Credentials
	s.router.Post("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, http.StatusOK, map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"user":          map[string]any{"id": "u1", "username": "alice"},
		})
	})
	s.client.Bind(func(context.Context) string { return "should-not-be-sent" }, nil)

	res, err := s.client.Login(context.Background(), models.Credentials{Username: "alice", Password: "pw"})
	s.Require().NoError(err)

	s.Equal("access-1", res.AccessToken)
	s.Equal("refresh-1", res.RefreshToken)
	s.Require().NotNil(res.User)
	s.Equal("alice", res.User.Username)
	s.Equal("alice", body.Username)
	s.NotEmpty(seen.Get("X-Request-ID"))
	s.Equal("consoleauth/1.2.3", seen.Get("User-Agent"))
	s.Empty(seen.Get("Authorization"), "login is a public endpoint")
}

func (s *ClientSuite) TestBearerAndRequestID() {
	var auth, requestID string
	s.router.Get("/api/v1/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		requestID = r.Header.Get("X-Request-ID")
		writeEnvelope(w, http.StatusOK, map[string]any{
			"user":        map[string]any{"id": "u1"},
			"roles":       []map[string]any{{"id": "r1", "name": "EDITOR"}},
			"permissions": []string{"user.read"},
		})
	})
	s.client.Bind(func(context.Context) string { return "tok" }, nil)

	ctx := requestcontext.WithRequestID(context.Background(), "req-42")
	profile, err := s.client.Profile(ctx)
	s.Require().NoError(err)

	s.Equal("Bearer tok", auth)
	s.Equal("req-42", requestID)
	s.Equal([]string{"user.read"}, profile.Permissions)
	s.Require().Len(profile.Roles, 1)
	s.Equal("EDITOR", profile.Roles[0].Name)
}

func (s *ClientSuite) TestErrorMapping() {
	cases := []struct {
		status int
		code   dErrors.Code
	}{
		{http.StatusUnauthorized, dErrors.CodeUnauthorized},
		{http.StatusForbidden, dErrors.CodeForbidden},
		{http.StatusNotFound, dErrors.CodeNotFound},
		{http.StatusConflict, dErrors.CodeConflict},
		{http.StatusBadRequest, dErrors.CodeBadRequest},
		{http.StatusUnprocessableEntity, dErrors.CodeBadRequest},
		{http.StatusInternalServerError, dErrors.CodeInternal},
		{http.StatusBadGateway, dErrors.CodeInternal},
	}
	for _, tc := range cases {
		s.Run(http.StatusText(tc.status), func() {
			router := chi.NewRouter()
			router.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
				writeFailure(w, tc.status, "E_TEST", "nope")
			})
			srv := httptest.NewServer(router)
			defer srv.Close()
			c, err := New(srv.URL)
			s.Require().NoError(err)

			_, err = c.Login(context.Background(), models.Credentials{})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)

			var apiErr *Error
			s.Require().True(errors.As(err, &apiErr))
			s.Equal(tc.status, apiErr.Status)
			s.Equal("E_TEST", apiErr.Code)
			s.Equal("nope", apiErr.Message)
			s.Equal("username", apiErr.Details["field"])
		})
	}
}

func (s *ClientSuite) TestUnsuccessfulEnvelopeWith200() {
	s.router.Post("/api/v1/auth/send-code", func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusOK, "RATE_LIMITED", "slow down")
	})

	err := s.client.SendCode(context.Background(), models.CodeRequest{Target: "a@example.com", Purpose: "register"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.Equal("slow down", dErrors.Message(err))
}

func (s *ClientSuite) TestNonJSONErrorBody() {
	s.router.Get("/api/v1/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusInternalServerError)
	})

	_, err := s.client.Profile(context.Background())
	s.Require().Error(err)
	var apiErr *Error
	s.Require().True(errors.As(err, &apiErr))
	s.Contains(apiErr.Message, "gateway exploded")
}

func (s *ClientSuite) TestNetworkFailureIsTransient() {
	s.server.Close()

	_, err := s.client.Profile(context.Background())
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrUnavailable))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ClientSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.client.Profile(ctx)
	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)
}

func (s *ClientSuite) TestAuthFailureRecovery() {
	s.Run("replays once with the recovered token", func() {
		s.reset()
		var hits atomic.Int32
		s.router.Get("/api/v1/auth/profile", func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				writeFailure(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "expired")
				return
			}
			writeEnvelope(w, http.StatusOK, map[string]any{"user": map[string]any{"id": "u1"}})
		})
		var recoveries atomic.Int32
		s.client.Bind(
			func(context.Context) string { return "stale" },
			func(context.Context) (string, error) {
				recoveries.Add(1)
				return "fresh", nil
			},
		)

		profile, err := s.client.Profile(context.Background())
		s.Require().NoError(err)
		s.Equal("u1", profile.User.ID)
		s.Equal(int32(1), recoveries.Load())
		s.Equal(int32(2), hits.Load())
	})

	s.Run("does not loop when the replay is rejected too", func() {
		s.reset()
		var hits atomic.Int32
		s.router.Get("/api/v1/auth/profile", func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			writeFailure(w, http.StatusUnauthorized, "TOKEN_INVALID", "invalid")
		})
		var recoveries atomic.Int32
		s.client.Bind(
			func(context.Context) string { return "stale" },
			func(context.Context) (string, error) {
				recoveries.Add(1)
				return "fresh", nil
			},
		)

		_, err := s.client.Profile(context.Background())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(int32(1), recoveries.Load())
		s.Equal(int32(2), hits.Load())
	})

	s.Run("returns the original error when recovery fails", func() {
		s.reset()
		var hits atomic.Int32
		s.router.Put("/api/v1/auth/password", func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			writeFailure(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "expired")
		})
		s.client.Bind(
			func(context.Context) string { return "stale" },
			func(context.Context) (string, error) { return "", errors.New("refresh failed") },
		)

		err := s.client.ChangePassword(context.Background(), models.PasswordChange{CurrentPassword: "a", NewPassword: "b"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(int32(1), hits.Load())
	})

	s.Run("refresh endpoint never triggers recovery", func() {
		s.reset()
		s.router.Post("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
			writeFailure(w, http.StatusUnauthorized, "REFRESH_EXPIRED", "expired")
		})
		var recoveries atomic.Int32
		s.client.Bind(nil, func(context.Context) (string, error) {
			recoveries.Add(1)
			return "fresh", nil
		})

		_, err := s.client.Refresh(context.Background(), "refresh-1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Zero(recoveries.Load())
	})

	s.Run("logout sends the bearer but never recovers", func() {
		s.reset()
		var auth string
		var body refreshRequest
		s.router.Post("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeFailure(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "expired")
		})
		var recoveries atomic.Int32
		s.client.Bind(
			func(context.Context) string { return "stale" },
			func(context.Context) (string, error) {
				recoveries.Add(1)
				return "fresh", nil
			},
		)

		err := s.client.Logout(context.Background(), "refresh-1")
		s.Error(err)
		s.Equal("Bearer stale", auth)
		s.Equal("refresh-1", body.RefreshToken)
		s.Zero(recoveries.Load())
	})
}

func (s *ClientSuite) TestTwoFactor() {
	var code codeBody
	s.router.Post("/api/v1/auth/enable-2fa", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{"secret": "JBSWY3DP", "otpauth_url": "otpauth://totp/x"})
	})
	s.router.Post("/api/v1/auth/verify-2fa", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&code)
		writeEnvelope(w, http.StatusOK, nil)
	})

	setup, err := s.client.EnableTwoFactor(context.Background())
	s.Require().NoError(err)
	s.Equal("JBSWY3DP", setup.Secret)

	s.Require().NoError(s.client.VerifyTwoFactor(context.Background(), "123456"))
	s.Equal("123456", code.Code)
}
