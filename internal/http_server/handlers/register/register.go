package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"task_service/internal/auth"
	resp "task_service/internal/lib/api/response"
	sl "task_service/internal/lib/logger"
	"task_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type Response struct {
	resp.Response
	UserID string `json:"user_id,omitempty"`
}

type AuthService interface {
	Register(ctx context.Context, email, username, password string) (models.User, error)
	RequestEmailVerification(ctx context.Context, user models.User) (string, error)
}

func New(log *slog.Logger, authService AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		user, err := authService.Register(r.Context(), req.Email, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("User already exists"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		// The confirmation link is emailed right away, the client does
		// not have to request it separately.
		if _, err := authService.RequestEmailVerification(r.Context(), user); err != nil {
			log.Warn("failed to request email verification", sl.Err(err))
		}

		log.Info("user registered", slog.String("uid", user.ID.String()))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response: resp.OK(),
			UserID:   user.ID.String(),
		})
	}
}
