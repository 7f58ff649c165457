package cookies

import (
	"net/http"
	"time"
)

const (
	AccessTokenName       = "access_token"
	RefreshTokenName      = "refresh_token"
	VerificationTokenName = "verification_token"
)

// Set writes a token cookie with Max-Age equal to the token's TTL.
func Set(w http.ResponseWriter, name, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear instructs the client to drop the cookie.
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
