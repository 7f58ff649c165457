package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"task_service/internal/auth"
	"task_service/internal/lib/hasher"
	"task_service/internal/lib/jwt"
	"task_service/internal/models"
	"task_service/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "User"
	testPassword = "12345678Qw."
	testEmail    = "user@example.com"
)

func TestLogin_UnverifiedIssuesTokens(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, false)

	result, err := svc.Login(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	require.False(t, result.TwoFactorRequired)
	require.Empty(t, result.VerificationToken)

	requireTokenFor(t, env.codec, result.AccessToken, jwt.TokenTypeAccess, user.ID)
	requireTokenFor(t, env.codec, result.RefreshToken, jwt.TokenTypeRefresh, user.ID)
}

func TestLogin_VerifiedStartsChallenge(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, true)

	result, err := svc.Login(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	require.True(t, result.TwoFactorRequired)
	require.Empty(t, result.AccessToken)
	require.Empty(t, result.RefreshToken)

	requireTokenFor(t, env.codec, result.VerificationToken, jwt.TokenTypeVerification, user.ID)

	code, err := env.codes.Code(context.Background(), testEmail)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	// The code must expire with the configured TTL.
	require.Equal(t, 5*time.Minute, env.codes.ttl(testEmail))

	// Mail dispatch is fire-and-forget, the message lands after the
	// login call has already returned.
	require.Eventually(t, func() bool {
		return env.queue.count() == 1
	}, time.Second, 10*time.Millisecond)
	require.Contains(t, env.queue.last().Text, code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, env := newTestAuth(t)
	env.addUser(t, false)

	_, wrongPass := svc.Login(context.Background(), testUsername, "wrong password")
	require.ErrorIs(t, wrongPass, auth.ErrInvalidCredentials)

	_, unknownUser := svc.Login(context.Background(), "nobody", testPassword)
	require.ErrorIs(t, unknownUser, auth.ErrInvalidCredentials)

	// The two failures must be indistinguishable.
	require.Equal(t, wrongPass, unknownUser)
}

func TestTwoFactor_SuccessThenReplayFails(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, true)

	result, err := svc.Login(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	code, err := env.codes.Code(context.Background(), testEmail)
	require.NoError(t, err)

	accessToken, refreshToken, err := svc.CompleteTwoFactor(context.Background(), result.VerificationToken, code)
	require.NoError(t, err)

	requireTokenFor(t, env.codec, accessToken, jwt.TokenTypeAccess, user.ID)
	requireTokenFor(t, env.codec, refreshToken, jwt.TokenTypeRefresh, user.ID)

	_, err = env.codes.Code(context.Background(), testEmail)
	require.ErrorIs(t, err, storage.ErrCodeNotFound)

	// One-time use: replaying the same code fails.
	_, _, err = svc.CompleteTwoFactor(context.Background(), result.VerificationToken, code)
	require.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestTwoFactor_WrongCode(t *testing.T) {
	svc, env := newTestAuth(t)
	env.addUser(t, true)

	result, err := svc.Login(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err = svc.CompleteTwoFactor(context.Background(), result.VerificationToken, "000000")
		require.ErrorIs(t, err, auth.ErrInvalidCode)
	}

	// The stored code survives failed attempts.
	_, err = env.codes.Code(context.Background(), testEmail)
	require.NoError(t, err)
}

func TestTwoFactor_WrongTokenType(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, true)

	accessToken, err := env.codec.NewAccessToken(user)
	require.NoError(t, err)

	_, _, err = svc.CompleteTwoFactor(context.Background(), accessToken, "000000")
	require.ErrorIs(t, err, jwt.ErrTokenInvalid)
}

func TestRefresh_Success(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, false)

	refreshToken, err := env.codec.NewRefreshToken(user)
	require.NoError(t, err)

	accessToken, err := svc.Refresh(context.Background(), refreshToken)
	require.NoError(t, err)

	requireTokenFor(t, env.codec, accessToken, jwt.TokenTypeAccess, user.ID)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, false)

	expired, err := env.codec.Encode(map[string]any{
		"sub": user.ID.String(),
	}, jwt.TokenTypeRefresh, -time.Second)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), expired)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestRefresh_TamperedToken(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, false)

	refreshToken, err := env.codec.NewRefreshToken(user)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), refreshToken[:len(refreshToken)-4]+"AAAA")
	require.Error(t, err)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, false)

	accessToken, err := env.codec.NewAccessToken(user)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), accessToken)
	require.ErrorIs(t, err, jwt.ErrTokenInvalid)
}

func TestRefresh_UnknownUser(t *testing.T) {
	svc, env := newTestAuth(t)

	refreshToken, err := env.codec.NewRefreshToken(models.User{ID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), refreshToken)
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestRequestEmailVerification(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, false)

	token, err := svc.RequestEmailVerification(context.Background(), user)
	require.NoError(t, err)

	requireTokenFor(t, env.codec, token, jwt.TokenTypeVerification, user.ID)

	require.Eventually(t, func() bool {
		return env.queue.count() == 1
	}, time.Second, 10*time.Millisecond)
	require.Contains(t, env.queue.last().Text, "/auth/confirm-email/"+token)
}

func TestRequestEmailVerification_AlreadyVerified(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, true)

	_, err := svc.RequestEmailVerification(context.Background(), user)
	require.ErrorIs(t, err, auth.ErrAlreadyVerified)
}

func TestConfirmEmail_Success(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, false)

	token, err := env.codec.NewVerificationToken(user)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmEmail(context.Background(), token, user))

	stored, err := env.dir.UserByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, stored.IsVerified)
}

func TestConfirmEmail_SubjectMismatch(t *testing.T) {
	svc, env := newTestAuth(t)
	current := env.addUser(t, false)

	other := models.User{ID: uuid.New(), Email: "other@example.com", Username: "Other"}
	env.dir.add(other)

	token, err := env.codec.NewVerificationToken(other)
	require.NoError(t, err)

	err = svc.ConfirmEmail(context.Background(), token, current)
	require.ErrorIs(t, err, auth.ErrNotFound)

	// The mismatch must not flip anyone's flag.
	stored, err := env.dir.UserByID(context.Background(), current.ID)
	require.NoError(t, err)
	require.False(t, stored.IsVerified)

	storedOther, err := env.dir.UserByID(context.Background(), other.ID)
	require.NoError(t, err)
	require.False(t, storedOther.IsVerified)
}

func TestConfirmEmail_AlreadyVerifiedIsNoop(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, true)

	token, err := env.codec.NewVerificationToken(user)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmEmail(context.Background(), token, user))
	require.Zero(t, env.dir.verifyCalls)
}

func TestConfirmEmail_WrongTokenType(t *testing.T) {
	svc, env := newTestAuth(t)
	user := env.addUser(t, false)

	accessToken, err := env.codec.NewAccessToken(user)
	require.NoError(t, err)

	err = svc.ConfirmEmail(context.Background(), accessToken, user)
	require.ErrorIs(t, err, jwt.ErrTokenInvalid)
}

func TestRegister(t *testing.T) {
	svc, env := newTestAuth(t)

	user, err := svc.Register(context.Background(), testEmail, testUsername, testPassword)
	require.NoError(t, err)

	require.False(t, user.IsVerified)
	require.Equal(t, models.RoleUser, user.Role)
	require.NotEqual(t, testPassword, user.PassHash)

	stored, err := env.dir.UserByUsername(context.Background(), testUsername)
	require.NoError(t, err)
	require.Equal(t, user.ID, stored.ID)
}

func TestRegister_Duplicate(t *testing.T) {
	svc, env := newTestAuth(t)
	env.addUser(t, false)

	_, err := svc.Register(context.Background(), testEmail, testUsername, testPassword)
	require.ErrorIs(t, err, auth.ErrUserExists)
}

// TestFullTwoFactorScenario walks the whole flow: registration,
// email confirmation, 2FA login.
func TestFullTwoFactorScenario(t *testing.T) {
	svc, env := newTestAuth(t)

	user, err := svc.Register(context.Background(), testEmail, testUsername, testPassword)
	require.NoError(t, err)

	token, err := svc.RequestEmailVerification(context.Background(), user)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEmail(context.Background(), token, user))

	result, err := svc.Login(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	require.True(t, result.TwoFactorRequired)

	code, err := env.codes.Code(context.Background(), testEmail)
	require.NoError(t, err)

	accessToken, _, err := svc.CompleteTwoFactor(context.Background(), result.VerificationToken, code)
	require.NoError(t, err)

	requireTokenFor(t, env.codec, accessToken, jwt.TokenTypeAccess, user.ID)

	_, err = env.codes.Code(context.Background(), testEmail)
	require.ErrorIs(t, err, storage.ErrCodeNotFound)
}

type testEnv struct {
	dir   *fakeDirectory
	codes *fakeCodeStore
	queue *fakeQueue
	codec *jwt.Codec
}

func newTestAuth(t *testing.T) (*auth.Auth, *testEnv) {
	t.Helper()

	env := &testEnv{
		dir:   newFakeDirectory(),
		codes: &fakeCodeStore{codes: map[string]string{}, ttls: map[string]time.Duration{}},
		queue: &fakeQueue{},
		codec: newTestCodec(t),
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := auth.New(
		log,
		env.dir,
		env.dir,
		env.codes,
		env.queue,
		env.codec,
		6,
		5*time.Minute,
		"http://localhost:8080",
	)

	return svc, env
}

func (e *testEnv) addUser(t *testing.T, verified bool) models.User {
	t.Helper()

	passHash, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	user := models.User{
		ID:         uuid.New(),
		Email:      testEmail,
		Username:   testUsername,
		PassHash:   passHash,
		IsVerified: verified,
		Role:       models.RoleUser,
	}
	e.dir.add(user)

	return user
}

func newTestCodec(t *testing.T) *jwt.Codec {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	})

	codec, err := jwt.NewCodec(privatePEM, publicPEM, 15*time.Minute, 720*time.Hour, 5*time.Minute)
	require.NoError(t, err)

	return codec
}

func requireTokenFor(t *testing.T, codec *jwt.Codec, token string, wantType jwt.TokenType, wantUser uuid.UUID) {
	t.Helper()

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, wantType, jwt.TypeOf(claims))

	subject, err := jwt.Subject(claims)
	require.NoError(t, err)
	require.Equal(t, wantUser, subject)
}

type fakeDirectory struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]models.User
	verifyCalls int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{byID: map[uuid.UUID]models.User{}}
}

func (f *fakeDirectory) add(u models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
}

func (f *fakeDirectory) SaveUser(_ context.Context, email, username, passHash string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.byID {
		if u.Email == email || u.Username == username {
			return models.User{}, storage.ErrUserExists
		}
	}

	user := models.User{
		ID:       uuid.New(),
		Email:    email,
		Username: username,
		PassHash: passHash,
		Role:     models.RoleUser,
	}
	f.byID[user.ID] = user

	return user, nil
}

func (f *fakeDirectory) UserByUsername(_ context.Context, username string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeDirectory) UserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (f *fakeDirectory) SetEmailVerified(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.IsVerified = true
	f.byID[id] = u
	f.verifyCalls++

	return nil
}

type fakeCodeStore struct {
	mu    sync.Mutex
	codes map[string]string
	ttls  map[string]time.Duration
}

func (f *fakeCodeStore) SetCode(_ context.Context, email, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[email] = code
	f.ttls[email] = ttl
	return nil
}

func (f *fakeCodeStore) ttl(email string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[email]
}

func (f *fakeCodeStore) Code(_ context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	code, ok := f.codes[email]
	if !ok {
		return "", storage.ErrCodeNotFound
	}

	return code, nil
}

func (f *fakeCodeStore) DeleteCode(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.codes, email)
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (f *fakeQueue) SendMessage(_ context.Context, msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fakeQueue) last() models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[len(f.msgs)-1]
}
