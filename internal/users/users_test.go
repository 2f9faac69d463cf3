package users_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]auth.User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[int64]auth.User{}}
}

func (m *memoryRepo) ListUsers(context.Context) ([]auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.User, 0, len(m.users))
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return &u, nil
}

func (m *memoryRepo) CreateUser(_ context.Context, user auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return nil, users.ErrDuplicateUsername
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return &user, nil
}

func (m *memoryRepo) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	u.IsActive = active
	m.users[id] = u
	return nil
}

func (m *memoryRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

type auditSpy struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

// actorGuard authenticates as actor and enforces the role table.
type actorGuard struct{ actor shared.Actor }

func (g actorGuard) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !shared.HasPermission(g.actor.Role, perm) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newRouter(svc *users.Service, actor shared.Actor) http.Handler {
	h := users.NewHandler(slog.New(slog.DiscardHandler), svc, actorGuard{actor: actor})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	})
	r.Route("/users", h.MountRoutes)
	return r
}

func TestCreateUserHashesPasswordAndAudits(t *testing.T) {
	repo := newMemoryRepo()
	spy := &auditSpy{}
	svc := users.NewService(repo, spy, nil)

	user, err := svc.CreateUser(context.Background(), 1, users.CreateUserRequest{
		Username: " caja2 ", Password: "secret-123", Role: shared.RoleSeller,
	})
	require.NoError(t, err)
	require.Equal(t, "caja2", user.Username)
	require.True(t, user.IsActive)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-123")))
	require.Len(t, spy.logs, 1)
	require.Equal(t, "user.create", spy.logs[0].Action)

	_, err = svc.CreateUser(context.Background(), 1, users.CreateUserRequest{
		Username: "caja2", Password: "secret-123", Role: shared.RoleSeller,
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateUser(context.Background(), 1, users.CreateUserRequest{
		Username: "boss", Password: "secret-123", Role: "owner",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetActiveRefusesSelf(t *testing.T) {
	repo := newMemoryRepo()
	svc := users.NewService(repo, nil, nil)
	admin, err := svc.CreateUser(context.Background(), 0, users.CreateUserRequest{Username: "root", Password: "secret-123", Role: shared.RoleAdmin})
	require.NoError(t, err)
	seller, err := svc.CreateUser(context.Background(), admin.ID, users.CreateUserRequest{Username: "caja1", Password: "secret-123", Role: shared.RoleSeller})
	require.NoError(t, err)

	require.ErrorIs(t, svc.SetActive(context.Background(), admin.ID, admin.ID, false), users.ErrSelfDeactivation)
	require.NoError(t, svc.SetActive(context.Background(), admin.ID, seller.ID, false))
	got, err := repo.FindByID(context.Background(), seller.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.ErrorIs(t, svc.SetActive(context.Background(), admin.ID, 99, true), shared.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	repo := newMemoryRepo()
	svc := users.NewService(repo, nil, nil)
	user, err := svc.CreateUser(context.Background(), 0, users.CreateUserRequest{Username: "caja1", Password: "secret-123", Role: shared.RoleSeller})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, users.ChangePasswordRequest{Current: "wrong-pass", New: "another-123"})
	require.ErrorIs(t, err, users.ErrWrongPassword)

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, users.ChangePasswordRequest{Current: "secret-123", New: "another-123"}))
	got, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("another-123")))
}

func TestHandlerAdminManagesUsers(t *testing.T) {
	repo := newMemoryRepo()
	svc := users.NewService(repo, nil, nil)
	root, err := svc.CreateUser(context.Background(), 0, users.CreateUserRequest{Username: "root", Password: "secret-123", Role: shared.RoleAdmin})
	require.NoError(t, err)
	router := newRouter(svc, shared.Actor{ID: root.ID, Username: root.Username, Role: shared.RoleAdmin})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/",
		strings.NewReader(`{"username":"caja1","email":"caja1@example.com","password":"secret-123","role":"seller"}`)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotContains(t, rr.Body.String(), "password_hash")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/", strings.NewReader(`{"username":"x","password":"short","role":"seller"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/2/deactivate", nil))
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/users/%d/deactivate", root.ID), nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"is_active":false`)
}

func TestHandlerSellerCanOnlyChangeOwnPassword(t *testing.T) {
	repo := newMemoryRepo()
	svc := users.NewService(repo, nil, nil)
	seller, err := svc.CreateUser(context.Background(), 0, users.CreateUserRequest{Username: "caja1", Password: "secret-123", Role: shared.RoleSeller})
	require.NoError(t, err)
	router := newRouter(svc, shared.Actor{ID: seller.ID, Username: seller.Username, Role: shared.RoleSeller})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/me/password",
		strings.NewReader(`{"current_password":"secret-123","new_password":"another-123"}`)))
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/me/password",
		strings.NewReader(`{"current_password":"secret-123","new_password":"another-456"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
