package logout

import (
	"log/slog"
	"net/http"

	resp "task_service/internal/lib/api/response"
	"task_service/internal/lib/cookies"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

// New clears the token cookies. Tokens are stateless, so there is
// nothing to revoke server-side, the issued tokens simply expire.
func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		cookies.Clear(w, cookies.AccessTokenName)
		cookies.Clear(w, cookies.RefreshTokenName)
		cookies.Clear(w, cookies.VerificationTokenName)

		log.Info("user logged out")

		render.JSON(w, r, Response{
			Response: resp.OK(),
		})
	}
}
