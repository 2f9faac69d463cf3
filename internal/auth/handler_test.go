package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type stubRepo struct {
	users map[string]*auth.User
}

func newStubRepo(t *testing.T) *stubRepo {
	t.Helper()
	hash, err := auth.HashPassword("correctpass")
	require.NoError(t, err)
	return &stubRepo{users: map[string]*auth.User{
		"ana":  {ID: 1, Username: "ana", PasswordHash: hash, Role: shared.RoleAdmin, IsActive: true},
		"luis":  {ID: 2, Username: "luis", PasswordHash: hash, Role: shared.RoleSeller, IsActive: true},
		"old":  {ID: 3, Username: "old", PasswordHash: hash, Role: shared.RoleSeller, IsActive: false},
	}}
}

func (s *stubRepo) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
}

func (s *stubRepo) UpsertUser(_ context.Context, user auth.User) (*auth.User, error) {
	if existing, ok := s.users[user.Username]; ok {
		user.ID = existing.ID
	} else {
		user.ID = int64(len(s.users) + 1)
	}
	s.users[user.Username] = &user
	return &user, nil
}

func newRouter(t *testing.T) (http.Handler, *auth.Tokens) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	tokens := auth.NewTokens("test-secret", time.Hour)
	mw := auth.Middleware{Tokens: tokens, Logger: logger}
	handler := auth.NewHandler(logger, auth.NewService(newStubRepo(t), tokens), mw)

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate)
		r.With(mw.Require(shared.PermPurchasesApprove)).Post("/purchases/1/approve", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r, tokens
}

func login(t *testing.T, router http.Handler, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestLoginIssuesToken(t *testing.T) {
	router, tokens := newRouter(t)

	rr := login(t, router, "ana", "correctpass")
	require.Equal(t, http.StatusOK, rr.Code)

	var session auth.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	require.Equal(t, shared.RoleAdmin, session.User.Role)
	require.NotContains(t, rr.Body.String(), "password_hash")

	actor, err := tokens.Parse(session.Token)
	require.NoError(t, err)
	require.Equal(t, int64(1), actor.ID)
	require.Equal(t, "ana", actor.Username)
}

func TestLoginInvalidCredentials(t *testing.T) {
	router, _ := newRouter(t)

	for _, tc := range []struct{ user, pass string }{
		{"ana", "wrongpass"},
		{"nobody", "correctpass"},
		{"old", "correctpass"},
	} {
		rr := login(t, router, tc.user, tc.pass)
		require.Equal(t, http.StatusUnauthorized, rr.Code, tc.user)
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestLoginValidatesBody(t *testing.T) {
	router, _ := newRouter(t)
	rr := login(t, router, "ana", "short")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMeRequiresToken(t *testing.T) {
	router, tokens := newRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	token, _, err := tokens.Issue(auth.User{ID: 2, Username: "luis", Role: shared.RoleSeller})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"username":"luis"`)
}

func TestRequireChecksRole(t *testing.T) {
	router, tokens := newRouter(t)

	call := func(role string) int {
		token, _, err := tokens.Issue(auth.User{ID: 9, Username: "x", Role: role})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/purchases/1/approve", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusForbidden, call(shared.RoleSeller))
	require.Equal(t, http.StatusNoContent, call(shared.RoleAdmin))
}

func TestTokensRejectForeignAndTampered(t *testing.T) {
	tokens := auth.NewTokens("test-secret", time.Minute)
	token, _, err := tokens.Issue(auth.User{ID: 1, Username: "ana", Role: shared.RoleAdmin})
	require.NoError(t, err)

	_, err = auth.NewTokens("other-secret", time.Minute).Parse(token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = tokens.Parse(token + "x")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestEnsureUserUpsertsAdmin(t *testing.T) {
	repo := newStubRepo(t)
	svc := auth.NewService(repo, auth.NewTokens("s", time.Hour))

	user, err := svc.EnsureUser(context.Background(), "ana", "ana@example.com", "newpassword", shared.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)

	_, err = svc.Authenticate(context.Background(), "ana", "newpassword")
	require.NoError(t, err)

	_, err = svc.EnsureUser(context.Background(), "eve", "", "newpassword", "root")
	require.ErrorIs(t, err, shared.ErrValidation)
}
