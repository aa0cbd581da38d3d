package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/infra/logger"
	"github.com/arklim/customer-identity/internal/transport/http/middleware"
	"github.com/arklim/customer-identity/internal/usecase"
)

const (
	bearerTokenType       = "Bearer"
	resendActivationReply = "if the account is pending activation, a new code has been sent"
)

// AuthService is the application surface the HTTP handlers drive.
type AuthService interface {
	middleware.Authenticator
	Register(ctx context.Context, email, password string) (*usecase.RegistrationResult, error)
	ResendActivation(ctx context.Context, email string) (domain.ActivationCode, error)
	Activate(ctx context.Context, accountID domain.AccountID, code string) (*domain.Account, error)
	Login(ctx context.Context, email, password string) (*usecase.LoginOutcome, error)
	Refresh(ctx context.Context, refreshToken string) (domain.JWTToken, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	GetAccount(ctx context.Context, accountID domain.AccountID) (*domain.Account, error)
	ChangePassword(ctx context.Context, accountID domain.AccountID, currentPassword, newPassword string) error
	Deactivate(ctx context.Context, accountID domain.AccountID) error
	DeleteAccount(ctx context.Context, accountID domain.AccountID) error
	RevokeAllTokens(ctx context.Context, customerID domain.CustomerID) error
}

var _ AuthService = (*usecase.AuthService)(nil)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
	isDev  bool
	now    func() time.Time
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithDevMode returns activation codes in responses. Development only.
func WithDevMode(isDev bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.isDev = isDev
	}
}

// WithLogger sets the handler logger.
func WithLogger(log *zap.Logger) AuthHandlerOption {
	return func(h *AuthHandler) {
		if log != nil {
			h.logger = log
		}
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth AuthService, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth:   auth,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

// AuthRouteGuards are middlewares run ahead of individual public routes, typically rate limits.
type AuthRouteGuards struct {
	Register   []gin.HandlerFunc
	Activation []gin.HandlerFunc
	Login      []gin.HandlerFunc
	Refresh    []gin.HandlerFunc
}

// RegisterRoutes binds the /auth routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, guards AuthRouteGuards) {
	r.POST("/register", chain(guards.Register, h.register)...)
	r.POST("/activate", chain(guards.Activation, h.activate)...)
	r.POST("/activate/resend", chain(guards.Activation, h.resendActivation)...)
	r.POST("/login", chain(guards.Login, h.login)...)
	r.POST("/refresh", chain(guards.Refresh, h.refresh)...)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
	r.GET("/me", middleware.RequireAuth(h.auth), h.me)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to register account")
		return
	}

	logger.WithContext(c.Request.Context(), h.logger).Info("account registered",
		zap.Int64("account_id", result.Account.ID().Int64()),
		zap.String("email", logger.MaskEmail(result.Account.Email().String())),
	)

	resp := RegisterResponse{
		Account:             newAccountSummary(result.Account),
		Message:             "activation required",
		ActivationExpiresAt: result.ActivationCode.ExpiresAt(),
	}
	if h.isDev {
		code := result.ActivationCode.Value()
		resp.DevActivationCode = &code
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) activate(c *gin.Context) {
	var req ActivateRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.auth.Activate(c.Request.Context(), domain.AccountID(req.AccountID), req.Code)
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to activate account")
		return
	}
	c.JSON(http.StatusOK, newAccountSummary(account))
}

func (h *AuthHandler) resendActivation(c *gin.Context) {
	var req ResendActivationRequest
	if !bindJSON(c, &req) {
		return
	}

	resp := ResendActivationResponse{Message: resendActivationReply}
	code, err := h.auth.ResendActivation(c.Request.Context(), req.Email)
	switch {
	case err == nil:
		if h.isDev {
			expiresAt, value := code.ExpiresAt(), code.Value()
			resp.ExpiresAt, resp.DevActivationCode = &expiresAt, &value
		}
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidArgument):
		// Unknown and already activated accounts get the same reply as pending ones.
		logger.WithContext(c.Request.Context(), h.logger).Debug("activation code not resent",
			zap.String("email", logger.MaskEmail(req.Email)),
			zap.Error(err),
		)
	default:
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to issue activation code")
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	outcome, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	result := outcome.Result
	if !result.Success {
		h.respondLoginFailure(c, result)
		return
	}

	access, refresh := outcome.Tokens.Access(), outcome.Tokens.Refresh()
	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:      access.Value(),
		RefreshToken:     refresh.Value(),
		TokenType:        bearerTokenType,
		ExpiresIn:        h.expiresIn(access),
		RefreshExpiresIn: h.expiresIn(refresh),
		AccountID:        result.AccountID.Int64(),
		CustomerID:       result.CustomerID.Int64(),
	})
}

// respondLoginError handles failures that are not login outcomes. Unknown emails and
// malformed ones answer like a wrong password so callers cannot discover which accounts exist.
func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument) {
		c.JSON(http.StatusUnauthorized, LoginFailureResponse{
			Error:   "invalid credentials",
			Reason:  string(domain.LoginFailureWrongPassword),
			TraceID: middleware.GetTraceID(c),
		})
		return
	}
	RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "authentication failed")
}

func (h *AuthHandler) respondLoginFailure(c *gin.Context, result domain.LoginResult) {
	resp := LoginFailureResponse{
		Reason:  string(result.Reason),
		TraceID: middleware.GetTraceID(c),
	}

	status := http.StatusUnauthorized
	switch result.Reason {
	case domain.LoginFailureLocked:
		status = http.StatusLocked
		resp.Error = "account temporarily locked"
		resp.LockedUntil = result.LockedUntil
		if result.LockedUntil != nil {
			c.Header("Retry-After", retryAfterSeconds(result.LockedUntil.Sub(h.now())))
		}
	case domain.LoginFailureInvalidStatus:
		status = http.StatusForbidden
		resp.Error = "account cannot log in"
		resp.Status = string(result.Status)
	default:
		resp.Error = "invalid credentials"
	}
	c.JSON(status, resp)
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	access, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: domain.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
		}, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{
		AccessToken: access.Value(),
		TokenType:   bearerTokenType,
		ExpiresIn:   h.expiresIn(access),
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	accessToken, _ := middleware.BearerToken(c)

	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "body is not valid json"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), accessToken, req.RefreshToken); err != nil {
		RespondWithMappedError(c, err, revocationErrorCases, http.StatusInternalServerError, "failed to revoke tokens")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	account, err := h.auth.GetAccount(c.Request.Context(), claims.AccountID)
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to load account")
		return
	}
	c.JSON(http.StatusOK, newAccountSummary(account))
}

func (h *AuthHandler) expiresIn(token domain.JWTToken) int {
	remaining := token.ExpiresAt().Sub(h.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

func retryAfterSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.FormatInt(int64((d+time.Second-1)/time.Second), 10)
}

func chain(guards []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	return append(append(make([]gin.HandlerFunc, 0, len(guards)+1), guards...), handler)
}
