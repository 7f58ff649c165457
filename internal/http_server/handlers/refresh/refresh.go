package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"task_service/internal/auth"
	"task_service/internal/config"
	resp "task_service/internal/lib/api/response"
	"task_service/internal/lib/cookies"
	"task_service/internal/lib/jwt"
	sl "task_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	AccessToken string `json:"access_token"`
}

type AuthService interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

func New(log *slog.Logger, authService AuthService, tokens config.Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		cookie, err := r.Cookie(cookies.RefreshTokenName)
		if err != nil || cookie.Value == "" {
			log.Warn("missing refresh token cookie")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Missing refresh token"))

			return
		}

		accessToken, err := authService.Refresh(r.Context(), cookie.Value)
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenExpired),
				errors.Is(err, jwt.ErrTokenInvalid),
				errors.Is(err, jwt.ErrTokenMalformed),
				errors.Is(err, auth.ErrUserNotFound):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid refresh token"))
			default:
				log.Error("failed to refresh access token", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		cookies.Set(w, cookies.AccessTokenName, accessToken, tokens.AccessTokenTTL)

		log.Info("access token refreshed")

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			AccessToken: accessToken,
		})
	}
}
