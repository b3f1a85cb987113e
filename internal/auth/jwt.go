// Package auth verifies the bearer credential carried by incoming
// websocket connections and resolves it to an owner identity.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingToken is returned for an empty credential, without
	// invoking signature verification.
	ErrMissingToken = errors.New("auth: missing token")

	// ErrInvalidToken covers malformed, expired and badly signed tokens.
	// Callers see a single rejection; the distinction is log-only.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the token payload issued by the identity collaborator.
type Claims struct {
	UserID int64 `json:"id"`
	jwt.RegisteredClaims
}

// Validator performs stateless verification of bearer tokens.
type Validator struct {
	secret []byte
	logger zerolog.Logger
}

func NewValidator(secret string, logger zerolog.Logger) *Validator {
	return &Validator{
		secret: []byte(secret),
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Validate resolves a credential to an owner identity. It never panics and
// never returns anything other than an identity or a definite rejection.
func (v *Validator) Validate(tokenString string) (int64, error) {
	if tokenString == "" {
		v.logger.Warn().Msg("missing authentication token")
		return 0, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.secret, nil
		},
	)
	if err != nil {
		// Malformed vs. expired matters only for the log line.
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			v.logger.Warn().Err(err).Msg("malformed token")
		case errors.Is(err, jwt.ErrTokenExpired):
			v.logger.Warn().Err(err).Msg("expired token")
		default:
			v.logger.Warn().Err(err).Msg("token verification failed")
		}
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		v.logger.Warn().Msg("token carries no usable identity")
		return 0, ErrInvalidToken
	}

	return claims.UserID, nil
}

// Generate mints a token for the given owner. Used by tests and tooling;
// production tokens come from the identity service.
func (v *Validator) Generate(userID int64, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   fmt.Sprintf("%d", userID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// TokenFromRequest extracts the credential from the opening request. The
// websocket handshake carries it as a query parameter named "token".
func TokenFromRequest(r *http.Request) string {
	return r.URL.Query().Get("token")
}
