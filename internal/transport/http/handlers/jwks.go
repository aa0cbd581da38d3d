package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/customer-identity/internal/infra/security"
)

const jwksCacheControl = "public, max-age=3600"

// KeySet renders the JSON Web Key Set.
type KeySet interface {
	JWKS() ([]byte, error)
}

var _ KeySet = (*security.JWTManager)(nil)

// JWKSHandler provides the JSON Web Key Set used for offline JWT validation.
type JWKSHandler struct {
	manager KeySet
}

func NewJWKSHandler(manager KeySet) *JWKSHandler {
	return &JWKSHandler{manager: manager}
}

// Keys serves the RSA public keys resource servers use to verify access tokens offline.
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.manager == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "jwks not available"))
		return
	}

	payload, err := h.manager.JWKS()
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to render jwks"))
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.Data(http.StatusOK, "application/json", payload)
}
