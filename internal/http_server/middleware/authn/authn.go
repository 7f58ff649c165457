package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	resp "task_service/internal/lib/api/response"
	"task_service/internal/lib/cookies"
	sl "task_service/internal/lib/logger"
	"task_service/internal/models"

	"github.com/go-chi/render"
)

type UserResolver interface {
	UserFromAccessToken(ctx context.Context, token string) (models.User, error)
}

type ctxKey struct{}

// New guards a route group with the access token, read from the
// access_token cookie or the Authorization bearer header. The
// resolved user is stored in the request context.
func New(log *slog.Logger, resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn.New"

			token := tokenFromRequest(r)
			if token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Unauthorized"))

				return
			}

			user, err := resolver.UserFromAccessToken(r.Context(), token)
			if err != nil {
				log.Warn("failed to resolve user from access token",
					slog.String("op", op), sl.Err(err))

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Unauthorized"))

				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user stored by the middleware.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}

// ContextWithUser stores the user the way the middleware does.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(cookies.AccessTokenName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}

	return ""
}
