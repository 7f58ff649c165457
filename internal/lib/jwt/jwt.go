package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"task_service/internal/models"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is a closed set. Every issued token carries exactly one
// type claim, and the consumer must check it against the expected one.
type TokenType string

const (
	TokenTypeAccess       TokenType = "access"
	TokenTypeRefresh      TokenType = "refresh"
	TokenTypeVerification TokenType = "verification"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenMalformed = errors.New("malformed token")
)

// Codec signs and verifies tokens with a single RS256 keypair loaded
// at process start. Key rotation is not supported.
type Codec struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey

	accessTTL       time.Duration
	refreshTTL      time.Duration
	verificationTTL time.Duration
}

func NewCodec(
	privatePEM, publicPEM []byte,
	accessTTL, refreshTTL, verificationTTL time.Duration,
) (*Codec, error) {
	const op = "lib.jwt.NewCodec"

	privateKey, err := gojwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse private key: %w", op, err)
	}

	publicKey, err := gojwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse public key: %w", op, err)
	}

	return &Codec{
		privateKey:      privateKey,
		publicKey:       publicKey,
		accessTTL:       accessTTL,
		refreshTTL:      refreshTTL,
		verificationTTL: verificationTTL,
	}, nil
}

// Encode merges the type, issued-at, expiry and a fresh jti into the
// caller-supplied claims and signs the result.
func (c *Codec) Encode(claims map[string]any, typ TokenType, ttl time.Duration) (string, error) {
	const op = "lib.jwt.Encode"

	now := time.Now()

	merged := gojwt.MapClaims{}
	for k, v := range claims {
		merged[k] = v
	}
	merged["type"] = string(typ)
	merged["iat"] = now.Unix()
	merged["exp"] = now.Add(ttl).Unix()
	merged["jti"] = uuid.NewString()

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodRS256, merged).SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// Decode verifies the signature and expiry and returns the claims.
// The type claim is not checked here, callers do that.
func (c *Codec) Decode(tokenStr string) (gojwt.MapClaims, error) {
	claims := gojwt.MapClaims{}

	token, err := gojwt.ParseWithClaims(tokenStr, claims, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.publicKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, gojwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, gojwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenInvalid
		}
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (c *Codec) NewAccessToken(user models.User) (string, error) {
	return c.Encode(map[string]any{
		"sub":   user.ID.String(),
		"email": user.Email,
		"name":  user.Username,
	}, TokenTypeAccess, c.accessTTL)
}

func (c *Codec) NewRefreshToken(user models.User) (string, error) {
	return c.Encode(map[string]any{
		"sub": user.ID.String(),
	}, TokenTypeRefresh, c.refreshTTL)
}

func (c *Codec) NewVerificationToken(user models.User) (string, error) {
	return c.Encode(map[string]any{
		"sub": user.ID.String(),
	}, TokenTypeVerification, c.verificationTTL)
}

// TypeOf returns the type claim, or an empty TokenType if it is missing.
func TypeOf(claims gojwt.MapClaims) TokenType {
	typ, _ := claims["type"].(string)
	return TokenType(typ)
}

// Subject returns the user id from the sub claim.
func Subject(claims gojwt.MapClaims) (uuid.UUID, error) {
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, ErrTokenInvalid
	}

	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}

	return id, nil
}
