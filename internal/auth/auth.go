package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"task_service/internal/lib/hasher"
	"task_service/internal/lib/jwt"
	sl "task_service/internal/lib/logger"
	"task_service/internal/lib/verification"
	"task_service/internal/models"
	"task_service/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid code")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrNotFound           = errors.New("not found")
)

type UserSaver interface {
	SaveUser(ctx context.Context, email, username, passHash string) (models.User, error)
}

type UserProvider interface {
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	SetEmailVerified(ctx context.Context, userID uuid.UUID) error
}

type CodeStore interface {
	SetCode(ctx context.Context, email, code string, ttl time.Duration) error
	Code(ctx context.Context, email string) (string, error)
	DeleteCode(ctx context.Context, email string) error
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	codes       CodeStore
	publisher   Publisher
	codec       *jwt.Codec
	codeLength  int
	codeTTL     time.Duration
	baseURL     string
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	codes CodeStore,
	publisher Publisher,
	codec *jwt.Codec,
	codeLength int,
	codeTTL time.Duration,
	baseURL string,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		codes:       codes,
		publisher:   publisher,
		codec:       codec,
		codeLength:  codeLength,
		codeTTL:     codeTTL,
		baseURL:     baseURL,
	}
}

// LoginResult is the outcome of the credential step. Either the
// access/refresh pair is set, or TwoFactorRequired is true and only
// the verification token is set.
type LoginResult struct {
	TwoFactorRequired bool
	AccessToken       string
	RefreshToken      string
	VerificationToken string
	Email             string
}

// Login checks the credentials and either authenticates the user
// outright or starts the 2FA challenge for users with a confirmed
// email. An unknown username and a wrong password produce the same
// ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, username, password string) (LoginResult, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return LoginResult{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if !hasher.Verify(password, user.PassHash) {
		log.Info("invalid credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.IsVerified {
		accessToken, refreshToken, err := a.issueTokens(user)
		if err != nil {
			log.Error("failed to issue tokens", sl.Err(err))
			return LoginResult{}, fmt.Errorf("%s: %w", op, err)
		}

		log.Info("user logged in successfully", slog.String("uid", user.ID.String()))

		return LoginResult{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		}, nil
	}

	code, err := verification.NewCode(a.codeLength)
	if err != nil {
		log.Error("failed to generate code", sl.Err(err))
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.codes.SetCode(ctx, user.Email, code, a.codeTTL); err != nil {
		log.Error("failed to store code", sl.Err(err))
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}

	verificationToken, err := a.codec.NewVerificationToken(user)
	if err != nil {
		log.Error("failed to generate verification token", sl.Err(err))
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}

	a.dispatch(ctx, models.Message{
		Email:   user.Email,
		Subject: "Email confirmation",
		Text:    fmt.Sprintf("Your confirmation code: %s\nThe code expires in %s.", code, a.codeTTL),
	})

	log.Info("2fa code sent", slog.String("uid", user.ID.String()))

	return LoginResult{
		TwoFactorRequired: true,
		VerificationToken: verificationToken,
		Email:             user.Email,
	}, nil
}

// CompleteTwoFactor finishes the challenge started by Login. The code
// is compared as an exact string and deleted on the first match.
func (a *Auth) CompleteTwoFactor(ctx context.Context, verificationToken, code string) (string, string, error) {
	const op = "auth.CompleteTwoFactor"

	log := a.log.With(slog.String("op", op))

	user, err := a.userFromToken(ctx, verificationToken, jwt.TokenTypeVerification)
	if err != nil {
		log.Warn("failed to resolve user from verification token", sl.Err(err))
		return "", "", err
	}

	stored, err := a.codes.Code(ctx, user.Email)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			log.Warn("no code stored for user", slog.String("uid", user.ID.String()))
			return "", "", ErrInvalidCode
		}

		log.Error("failed to get code", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	if stored != code {
		log.Warn("code mismatch", slog.String("uid", user.ID.String()))
		return "", "", ErrInvalidCode
	}

	accessToken, refreshToken, err := a.issueTokens(user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	if err := a.codes.DeleteCode(ctx, user.Email); err != nil {
		log.Warn("failed to delete code", sl.Err(err))
	}

	log.Info("2fa completed", slog.String("uid", user.ID.String()))

	return accessToken, refreshToken, nil
}

// Refresh mints a new access token for a valid refresh token. The
// refresh token itself is not rotated.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (string, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	user, err := a.userFromToken(ctx, refreshToken, jwt.TokenTypeRefresh)
	if err != nil {
		log.Warn("invalid refresh token", sl.Err(err))
		return "", err
	}

	accessToken, err := a.codec.NewAccessToken(user)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("access token refreshed", slog.String("uid", user.ID.String()))

	return accessToken, nil
}

// RequestEmailVerification issues a verification token for the user
// and emails a confirmation link embedding it. Returns
// ErrAlreadyVerified if there is nothing to confirm.
func (a *Auth) RequestEmailVerification(ctx context.Context, user models.User) (string, error) {
	const op = "auth.RequestEmailVerification"

	log := a.log.With(slog.String("op", op))

	if user.IsVerified {
		return "", ErrAlreadyVerified
	}

	verificationToken, err := a.codec.NewVerificationToken(user)
	if err != nil {
		log.Error("failed to generate verification token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	link := fmt.Sprintf("%s/auth/confirm-email/%s", a.baseURL, verificationToken)

	a.dispatch(ctx, models.Message{
		Email:   user.Email,
		Subject: "Email confirmation",
		Text:    fmt.Sprintf("Follow the link to confirm your email: %s", link),
	})

	log.Info("verification link sent", slog.String("uid", user.ID.String()))

	return verificationToken, nil
}

// ConfirmEmail consumes a verification link token. The token subject
// must match the authenticated caller; a mismatch is reported as
// ErrNotFound so token validity for other accounts is not revealed.
// Confirming an already verified user is a no-op.
func (a *Auth) ConfirmEmail(ctx context.Context, token string, current models.User) error {
	const op = "auth.ConfirmEmail"

	log := a.log.With(slog.String("op", op))

	claims, err := a.codec.Decode(token)
	if err != nil {
		log.Warn("invalid verification token", sl.Err(err))
		return err
	}

	if jwt.TypeOf(claims) != jwt.TokenTypeVerification {
		log.Warn("unexpected token type")
		return jwt.ErrTokenInvalid
	}

	subject, err := jwt.Subject(claims)
	if err != nil {
		return err
	}

	if subject != current.ID {
		log.Warn("token subject mismatch", slog.String("uid", current.ID.String()))
		return ErrNotFound
	}

	if current.IsVerified {
		return nil
	}

	if err := a.usrProvider.SetEmailVerified(ctx, current.ID); err != nil {
		log.Error("failed to set email verified", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.String("uid", current.ID.String()))

	return nil
}

// Register creates a user with a hashed password. New users start
// unverified with the plain user role.
func (a *Auth) Register(ctx context.Context, email, username, password string) (models.User, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := hasher.Hash(password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.usrSaver.SaveUser(ctx, email, username, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return models.User{}, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("uid", user.ID.String()))

	return user, nil
}

// UserFromAccessToken resolves the user carried by an access token.
// Used by the authentication middleware.
func (a *Auth) UserFromAccessToken(ctx context.Context, token string) (models.User, error) {
	return a.userFromToken(ctx, token, jwt.TokenTypeAccess)
}

func (a *Auth) userFromToken(ctx context.Context, token string, expected jwt.TokenType) (models.User, error) {
	claims, err := a.codec.Decode(token)
	if err != nil {
		return models.User{}, err
	}

	if jwt.TypeOf(claims) != expected {
		return models.User{}, jwt.ErrTokenInvalid
	}

	subject, err := jwt.Subject(claims)
	if err != nil {
		return models.User{}, err
	}

	user, err := a.usrProvider.UserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}

		return models.User{}, err
	}

	return user, nil
}

func (a *Auth) issueTokens(user models.User) (string, string, error) {
	accessToken, err := a.codec.NewAccessToken(user)
	if err != nil {
		return "", "", err
	}

	refreshToken, err := a.codec.NewRefreshToken(user)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// dispatch hands the message to the mail queue without blocking the
// request. Delivery failures are logged, not surfaced.
func (a *Auth) dispatch(ctx context.Context, msg models.Message) {
	ctx = context.WithoutCancel(ctx)

	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := a.publisher.SendMessage(sendCtx, msg); err != nil {
			a.log.Error("failed to send email", sl.Err(err))
		}
	}()
}
