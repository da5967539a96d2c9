// Package identity resolves the opaque session credential carried by a
// request into a stable user id.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PabloGalante/farum-gateway/internal/apperrors"
	"github.com/PabloGalante/farum-gateway/internal/domain"
)

type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

// Resolver verifies HS256 session tokens. The subject claim is the user id.
type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) (*Resolver, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("identity: secret is required")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("identity: issuer and audience are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{cfg: cfg}, nil
}

// Resolve returns the user id for credential or an UNAUTHORIZED error.
func (r *Resolver) Resolve(_ context.Context, credential string) (domain.UserID, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "Authentication required")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return r.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(r.cfg.Issuer),
		jwt.WithAudience(r.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.cfg.Now),
	)
	if err != nil {
		return "", mapJWTError(err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "Session has no subject")
	}
	return domain.UserID(claims.Subject), nil
}

// Issue signs a session token for userID valid for ttl.
func (r *Resolver) Issue(userID domain.UserID, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("identity: user id is required")
	}
	now := r.cfg.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(userID),
		Issuer:    r.cfg.Issuer,
		Audience:  jwt.ClaimStrings{r.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        domain.NewID(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.cfg.Secret)
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeUnauthorized, "Session expired", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.Wrap(apperrors.CodeUnauthorized, "Malformed session credential", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeUnauthorized, "Invalid session signature", err)
	default:
		return apperrors.Wrap(apperrors.CodeUnauthorized, "Invalid session", err)
	}
}
