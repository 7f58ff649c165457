package twofa

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
	"github.com/go-playground/validator/v10"
)

// HeaderName carries the verification token issued by the login step.
const HeaderName = "Authenticate"

type Request struct {
	Code string `json:"code" validate:"required"`
}

type Response struct {
	resp.Response
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService interface {
	CompleteTwoFactor(ctx context.Context, verificationToken, code string) (string, string, error)
}

func New(log *slog.Logger, authService AuthService, tokens config.Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.twofa.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		verificationToken := r.Header.Get(HeaderName)
		if verificationToken == "" {
			log.Warn("missing verification token")

			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, resp.Error("Missing verification token"))

			return
		}

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

		accessToken, refreshToken, err := authService.CompleteTwoFactor(r.Context(), verificationToken, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCode):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Invalid code"))
			case errors.Is(err, jwt.ErrTokenExpired),
				errors.Is(err, jwt.ErrTokenInvalid),
				errors.Is(err, jwt.ErrTokenMalformed),
				errors.Is(err, auth.ErrUserNotFound):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Invalid verification token"))
			default:
				log.Error("failed to complete 2fa", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		cookies.Set(w, cookies.AccessTokenName, accessToken, tokens.AccessTokenTTL)
		cookies.Set(w, cookies.RefreshTokenName, refreshToken, tokens.RefreshTokenTTL)
		cookies.Clear(w, cookies.VerificationTokenName)

		log.Info("2fa completed")

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		})
	}
}
