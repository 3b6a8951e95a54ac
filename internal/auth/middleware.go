package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"connectivity/internal/constants"
	"connectivity/internal/logger"
	apperrors "connectivity/pkg/errors"
)

type RevocationChecker interface {
	IsRevoked(ctx context.Context, credentialID string) (bool, error)
}

// Middleware admits requests carrying a valid, unrevoked bearer token. When
// the revocation list cannot be consulted the request is refused with 503.
func Middleware(tokens *TokenService, revocations RevocationChecker, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader(constants.AuthorizationHeader))
		if !ok {
			abort(c, apperrors.ErrUnauthorized.WithDetail("message", "missing bearer token"))
			return
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			abort(c, err)
			return
		}

		credentialID := CredentialID(claims, raw)
		revoked, err := revocations.IsRevoked(c.Request.Context(), credentialID)
		if err != nil {
			log.ErrorwCtx(c.Request.Context(), "Revocation check failed, refusing request",
				"error", err,
				"client_id", claims.ClientID,
			)
			abort(c, apperrors.ErrServiceUnavailable.WithCause(err))
			return
		}
		if revoked {
			abort(c, apperrors.ErrTokenRevoked)
			return
		}

		c.Set(constants.ContextKeyClaims, claims)
		c.Set(constants.ContextKeyCredentialID, credentialID)
		c.Next()
	}
}

func ClaimsFromContext(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(constants.ContextKeyClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func CredentialIDFromContext(c *gin.Context) string {
	return c.GetString(constants.ContextKeyCredentialID)
}

func bearerToken(header string) (string, bool) {
	if len(header) <= len(constants.BearerPrefix) || !strings.EqualFold(header[:len(constants.BearerPrefix)], constants.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(constants.BearerPrefix):])
	return token, token != ""
}

func abort(c *gin.Context, err error) {
	status := apperrors.ToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, apperrors.ToErrorResponse(err))
}
