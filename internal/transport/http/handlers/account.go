package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/infra/logger"
	"github.com/arklim/customer-identity/internal/transport/http/middleware"
)

// AccountHandler exposes self-service operations on the caller's own account.
type AccountHandler struct {
	auth   AuthService
	logger *zap.Logger
}

func NewAccountHandler(auth AuthService, log *zap.Logger) *AccountHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountHandler{auth: auth, logger: log}
}

// RegisterRoutes binds the /account routes. Every route requires an access token.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.Use(middleware.RequireAuth(h.auth))
	r.POST("/password", h.changePassword)
	r.POST("/deactivate", h.deactivate)
	r.DELETE("", h.delete)
	r.POST("/revoke-all", h.revokeAll)
}

func (h *AccountHandler) changePassword(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), claims.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to change password")
		return
	}
	h.audit(c, "password changed", claims)
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) deactivate(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		return
	}
	if err := h.auth.Deactivate(c.Request.Context(), claims.AccountID); err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to deactivate account")
		return
	}
	h.audit(c, "account deactivated", claims)
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) delete(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		return
	}
	if err := h.auth.DeleteAccount(c.Request.Context(), claims.AccountID); err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to delete account")
		return
	}
	h.audit(c, "account deleted", claims)
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) revokeAll(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeAllTokens(c.Request.Context(), claims.Subject); err != nil {
		RespondWithMappedError(c, err, revocationErrorCases, http.StatusInternalServerError, "failed to revoke tokens")
		return
	}
	h.audit(c, "all tokens revoked", claims)
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) claims(c *gin.Context) (*domain.JWTClaims, bool) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
	}
	return claims, ok
}

func (h *AccountHandler) audit(c *gin.Context, msg string, claims *domain.JWTClaims) {
	logger.WithContext(c.Request.Context(), h.logger).Info(msg,
		zap.Int64("account_id", claims.AccountID.Int64()),
		zap.Int64("customer_id", claims.Subject.Int64()),
	)
}
