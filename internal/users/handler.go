package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     shared.PermissionGuard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard shared.PermissionGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers user routes. Changing one's own password only needs a
// valid token.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/me/password", h.changePassword)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermUsersEdit))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Post("/{id}/activate", h.setActive(true))
		r.Post("/{id}/deactivate", h.setActive(false))
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": users})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, shared.ErrUnauthorized)
		return
	}
	var req CreateUserRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), actor.ID, req)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("role", user.Role))
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, r, h.logger, shared.ErrUnauthorized)
			return
		}
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		if err := h.service.SetActive(r.Context(), actor.ID, id, active); err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, shared.ErrUnauthorized)
		return
	}
	var req ChangePasswordRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), actor.ID, req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
