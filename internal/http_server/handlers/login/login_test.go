package login_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task_service/internal/auth"
	"task_service/internal/config"
	"task_service/internal/http_server/handlers/login"
	"task_service/internal/lib/cookies"

	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	result auth.LoginResult
	err    error
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (auth.LoginResult, error) {
	return f.result, f.err
}

func testTokens() config.Tokens {
	return config.Tokens{
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      720 * time.Hour,
		VerificationTokenTTL: 5 * time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doLogin(t *testing.T, svc login.AuthService, body string) *httptest.ResponseRecorder {
	t.Helper()

	handler := login.New(discardLogger(), svc, testTokens())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	return rec
}

func TestLogin_TokensAndCookies(t *testing.T) {
	svc := &fakeAuth{result: auth.LoginResult{
		AccessToken:  "access",
		RefreshToken: "refresh",
	}}

	rec := doLogin(t, svc, `{"username":"User","password":"12345678Qw."}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var body login.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "access", body.AccessToken)
	require.Equal(t, "refresh", body.RefreshToken)

	names := cookieNames(rec.Result().Cookies())
	require.Contains(t, names, cookies.AccessTokenName)
	require.Contains(t, names, cookies.RefreshTokenName)
	require.NotContains(t, names, cookies.VerificationTokenName)
}

func TestLogin_TwoFactorChallenge(t *testing.T) {
	svc := &fakeAuth{result: auth.LoginResult{
		TwoFactorRequired: true,
		VerificationToken: "verification",
		Email:             "user@example.com",
	}}

	rec := doLogin(t, svc, `{"username":"User","password":"12345678Qw."}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var body login.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.AccessToken)
	require.Equal(t, "code sent to user@example.com", body.Message)

	names := cookieNames(rec.Result().Cookies())
	require.Contains(t, names, cookies.VerificationTokenName)
	require.NotContains(t, names, cookies.AccessTokenName)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &fakeAuth{err: auth.ErrInvalidCredentials}

	rec := doLogin(t, svc, `{"username":"User","password":"wrong"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	svc := &fakeAuth{}

	rec := doLogin(t, svc, `{"username":"User"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func cookieNames(cs []*http.Cookie) []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}
