package verifemail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"task_service/internal/auth"
	"task_service/internal/config"
	"task_service/internal/http_server/middleware/authn"
	resp "task_service/internal/lib/api/response"
	"task_service/internal/lib/cookies"
	sl "task_service/internal/lib/logger"
	"task_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

type AuthService interface {
	RequestEmailVerification(ctx context.Context, user models.User) (string, error)
}

func New(log *slog.Logger, authService AuthService, tokens config.Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifemail.New"

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

		verificationToken, err := authService.RequestEmailVerification(r.Context(), user)
		if err != nil {
			if errors.Is(err, auth.ErrAlreadyVerified) {
				render.JSON(w, r, Response{
					Response: resp.OK(),
					Message:  "Confirmation email already completed",
				})

				return
			}

			log.Error("failed to request email verification", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		cookies.Set(w, cookies.VerificationTokenName, verificationToken, tokens.VerificationTokenTTL)

		log.Info("verification link requested", slog.String("uid", user.ID.String()))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "send link to email",
		})
	}
}
