package confirm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"task_service/internal/auth"
	"task_service/internal/http_server/middleware/authn"
	resp "task_service/internal/lib/api/response"
	"task_service/internal/lib/jwt"
	sl "task_service/internal/lib/logger"
	"task_service/internal/models"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

type AuthService interface {
	ConfirmEmail(ctx context.Context, token string, current models.User) error
}

func New(log *slog.Logger, authService AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.confirm.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, ok := authn.UserFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		token := chi.URLParam(r, "token")
		if token == "" {
			log.Warn("missing verification token")

			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("Page not found"))

			return
		}

		err := authService.ConfirmEmail(r.Context(), token, user)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Page not found"))
			case errors.Is(err, jwt.ErrTokenExpired),
				errors.Is(err, jwt.ErrTokenInvalid),
				errors.Is(err, jwt.ErrTokenMalformed):
				log.Warn("invalid verification token", sl.Err(err))

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid or expired token"))
			default:
				log.Error("failed to confirm email", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("email confirmed", slog.String("uid", user.ID.String()))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "Success verified email",
		})
	}
}
