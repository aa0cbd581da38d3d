package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/customer-identity/internal/core/domain"
)

// ErrorResponse matches handlers.ErrorResponse.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// Authenticator resolves an access token into claims.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.JWTClaims, error)
}

// RequireAuth validates the bearer access token and stores its claims on the context.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization header: expected 'Bearer <token>'"))
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrExpiredToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "access token expired"))
			case errors.Is(err, domain.ErrInvalidToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid access token"))
			default:
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(ClaimsKey, claims)
		reqCtx := GetRequestContext(c)
		reqCtx.CustomerID = claims.Subject
		reqCtx.AccountID = claims.AccountID

		c.Next()
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
