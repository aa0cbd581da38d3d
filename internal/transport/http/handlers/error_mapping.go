package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/repository"
	"github.com/arklim/customer-identity/internal/transport/http/middleware"
	"github.com/arklim/customer-identity/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
// With Expose set the error text itself is returned instead of Message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
	Expose  bool
}

// accountErrorCases covers the errors every account operation can yield. Order matters:
// more specific sentinels wrap the generic ones.
var accountErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidActivationCode, Status: http.StatusBadRequest, Message: "invalid or expired activation code"},
	{Err: domain.ErrInvalidArgument, Status: http.StatusBadRequest, Expose: true},
	{Err: domain.ErrDuplicateResource, Status: http.StatusConflict, Message: "email already registered"},
	{Err: domain.ErrNotFound, Status: http.StatusNotFound, Message: "account not found"},
	{Err: domain.ErrInvalidState, Status: http.StatusConflict, Expose: true},
	{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "account was modified concurrently, retry"},
	{Err: domain.ErrExpiredToken, Status: http.StatusUnauthorized, Message: "token expired"},
	{Err: domain.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid token"},
	{Err: usecase.ErrRevocationUnavailable, Status: http.StatusServiceUnavailable, Message: "token revocation unavailable"},
}

// revocationErrorCases covers logout and revoke-all.
var revocationErrorCases = []ErrorCase{
	{Err: usecase.ErrRevocationUnavailable, Status: http.StatusServiceUnavailable, Message: "token revocation unavailable"},
	{Err: usecase.ErrUnauthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
	{Err: domain.ErrExpiredToken, Status: http.StatusUnauthorized, Message: "token expired"},
	{Err: domain.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid token"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil || !errors.Is(err, cs.Err) {
			continue
		}
		msg := cs.Message
		if cs.Expose {
			msg = err.Error()
		}
		c.JSON(cs.Status, NewErrorResponse(c, msg))
		return
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindJSON decodes the body into req and validates its `validate` tags.
// On failure the response is written and false is returned.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "body is not valid json"))
		return false
	}

	err := validate.Struct(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request"))
		return false
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Error:   "request validation failed",
		Fields:  fields,
		TraceID: middleware.GetTraceID(c),
	})
	return false
}
