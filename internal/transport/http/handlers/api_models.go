package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// ValidationErrorResponse lists the request fields that failed validation.
type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
	TraceID string            `json:"trace_id,omitempty"`
}

// AccountSummary is the public view of an account. Credentials never leave the service.
type AccountSummary struct {
	ID          int64      `json:"id"`
	CustomerID  int64      `json:"customer_id"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func newAccountSummary(account *domain.Account) AccountSummary {
	return AccountSummary{
		ID:          account.ID().Int64(),
		CustomerID:  account.CustomerID().Int64(),
		Email:       account.Email().String(),
		Status:      string(account.Status()),
		CreatedAt:   account.CreatedAt(),
		LastLoginAt: account.LastLoginAt(),
	}
}

// RegisterRequest is the payload of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

// RegisterResponse is returned for a new PENDING account.
type RegisterResponse struct {
	Account             AccountSummary `json:"account"`
	Message             string         `json:"message"`
	ActivationExpiresAt time.Time      `json:"activation_expires_at"`
	DevActivationCode   *string        `json:"dev_activation_code,omitempty"`
}

// ActivateRequest is the payload of POST /auth/activate.
type ActivateRequest struct {
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
	Code      string `json:"code" validate:"required,min=32"`
}

// ResendActivationRequest is the payload of POST /auth/activate/resend.
type ResendActivationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendActivationResponse is identical whether or not a code was sent.
type ResendActivationResponse struct {
	Message           string     `json:"message"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	DevActivationCode *string    `json:"dev_activation_code,omitempty"`
}

// LoginRequest is the payload of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token pair.
type LoginResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	AccountID        int64  `json:"account_id"`
	CustomerID       int64  `json:"customer_id"`
}

// LoginFailureResponse describes a rejected login.
type LoginFailureResponse struct {
	Error       string     `json:"error"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	TraceID     string     `json:"trace_id,omitempty"`
}

// RefreshRequest is the payload of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshResponse carries a new access token. The refresh token is not rotated.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// LogoutRequest optionally names the refresh token to revoke with the access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the payload of POST /account/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,nefield=CurrentPassword"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of each dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
