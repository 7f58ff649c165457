package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"task_service/internal/http_server/middleware/authn"
	resp "task_service/internal/lib/api/response"
	sl "task_service/internal/lib/logger"
	"task_service/internal/models"
	"task_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultSkip  = 0
	defaultLimit = 50
)

type UserService interface {
	Users(ctx context.Context, skip, limit int) ([]models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd models.UserUpdate) (models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// UserResponse never exposes the password hash.
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	IsVerified bool   `json:"is_verified"`
	Role       string `json:"role"`
}

type Response struct {
	resp.Response
	User  *UserResponse  `json:"user,omitempty"`
	Users []UserResponse `json:"users,omitempty"`
}

type UpdateRequest struct {
	Email      *string `json:"email" validate:"omitempty,email"`
	Username   *string `json:"username" validate:"omitempty,min=1"`
	IsVerified *bool   `json:"is_verified"`
}

func NewList(log *slog.Logger, users UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewList"

		log := requestLogger(log, r, op)

		skip := queryInt(r, "skip", defaultSkip)
		limit := queryInt(r, "limit", defaultLimit)

		list, err := users.Users(r.Context(), skip, limit)
		if err != nil {
			log.Error("failed to list users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		out := make([]UserResponse, 0, len(list))
		for _, u := range list {
			out = append(out, *toResponse(u))
		}

		render.JSON(w, r, Response{Response: resp.OK(), Users: out})
	}
}

func NewGet(log *slog.Logger, users UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewGet"

		log := requestLogger(log, r, op)

		id, ok := userID(w, r)
		if !ok {
			return
		}

		u, err := users.UserByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to get user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{Response: resp.OK(), User: toResponse(u)})
	}
}

func NewUpdate(log *slog.Logger, users UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewUpdate"

		log := requestLogger(log, r, op)

		if !requireAdmin(w, r) {
			return
		}

		id, ok := userID(w, r)
		if !ok {
			return
		}

		var req UpdateRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		u, err := users.UpdateUser(r.Context(), id, models.UserUpdate{
			Email:      req.Email,
			Username:   req.Username,
			IsVerified: req.IsVerified,
		})
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrUserNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			case errors.Is(err, storage.ErrUserExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("User already exists"))
			default:
				log.Error("failed to update user", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("user updated", slog.String("uid", u.ID.String()))

		render.JSON(w, r, Response{Response: resp.OK(), User: toResponse(u)})
	}
}

func NewDelete(log *slog.Logger, users UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewDelete"

		log := requestLogger(log, r, op)

		if !requireAdmin(w, r) {
			return
		}

		id, ok := userID(w, r)
		if !ok {
			return
		}

		if err := users.DeleteUser(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to delete user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user deleted", slog.String("uid", id.String()))

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}

func requestLogger(log *slog.Logger, r *http.Request, op string) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// requireAdmin rejects user mutation for everyone but admins.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user, ok := authn.UserFromContext(r.Context())
	if !ok || user.Role != models.RoleAdmin {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error("Don't have rights for this action"))

		return false
	}

	return true
}

func userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("User not found"))

		return uuid.Nil, false
	}

	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}

	return v
}

func toResponse(u models.User) *UserResponse {
	return &UserResponse{
		ID:         u.ID.String(),
		Email:      u.Email,
		Username:   u.Username,
		IsVerified: u.IsVerified,
		Role:       string(u.Role),
	}
}
