package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"connectivity/internal/config"
	"connectivity/internal/constants"
	apperrors "connectivity/pkg/errors"
)

// Claims are the client-credentials claims the gateway accepts.
type Claims struct {
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope,omitempty"`
	GrantType string `json:"grant_type,omitempty"`
	jwt.RegisteredClaims
}

type TokenService struct {
	signingKey []byte
	method     jwt.SigningMethod
	ttl        time.Duration
	now        func() time.Time
}

func NewTokenService(cfg config.AuthConfig) (*TokenService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	algorithm := cfg.JWTAlgorithm
	if algorithm == "" {
		algorithm = constants.DefaultJWTAlgorithm
	}
	method := jwt.GetSigningMethod(algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm: %s", algorithm)
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = constants.DefaultTokenTTL
	}

	return &TokenService{
		signingKey: []byte(cfg.JWTSecret),
		method:     method,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// Validate parses and verifies a bearer token. exp and client_id are
// mandatory; grant_type, when present, must be client_credentials.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenInvalid.WithDetail("message", "token has expired")
		}
		return nil, apperrors.ErrTokenInvalid.WithCause(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apperrors.ErrTokenInvalid
	}
	if strings.TrimSpace(claims.ClientID) == "" {
		return nil, apperrors.ErrTokenInvalid.WithDetail("message", "client_id claim is required")
	}
	if claims.GrantType != "" && claims.GrantType != constants.GrantTypeClientCreds {
		return nil, apperrors.ErrTokenInvalid.WithDetail("message", "unsupported grant_type")
	}

	return claims, nil
}

// Issue mints a client-credentials token for local use.
func (s *TokenService) Issue(clientID, scope string) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		ClientID:  clientID,
		Scope:     scope,
		GrantType: constants.GrantTypeClientCreds,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signingKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// RemainingValidity is how long the token behind claims stays usable.
func (s *TokenService) RemainingValidity(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Time.Sub(s.now())
}

// CredentialID identifies a token for revocation: its jti, or a digest of
// the raw token when the issuer sets none.
func CredentialID(claims *Claims, rawToken string) string {
	if claims != nil && claims.ID != "" {
		return claims.ID
	}
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
