package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"task_service/internal/auth"
	"task_service/internal/config"
	resp "task_service/internal/lib/api/response"
	"task_service/internal/lib/cookies"
	sl "task_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (auth.LoginResult, error)
}

func New(log *slog.Logger, authService AuthService, tokens config.Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		result, err := authService.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid credentials"))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if result.TwoFactorRequired {
			cookies.Set(w, cookies.VerificationTokenName, result.VerificationToken, tokens.VerificationTokenTTL)

			log.Info("2fa challenge started")

			render.JSON(w, r, Response{
				Response: resp.OK(),
				Message:  fmt.Sprintf("code sent to %s", result.Email),
			})

			return
		}

		cookies.Set(w, cookies.AccessTokenName, result.AccessToken, tokens.AccessTokenTTL)
		cookies.Set(w, cookies.RefreshTokenName, result.RefreshToken, tokens.RefreshTokenTTL)

		log.Info("user logged in successfully")

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
		})
	}
}
