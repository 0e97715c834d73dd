package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/billflow/billflow/internal/auth"
	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	"github.com/billflow/billflow/internal/scheduler"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	userdomain "github.com/billflow/billflow/internal/user/domain"
)

var (
	ErrBadRequest   = errors.New("malformed request body")
	ErrOwnRole      = errors.New("cannot change your own role")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate_limited")
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last error a handler recorded. Handlers
// never write error JSON themselves; they call AbortWithError and return.
func ErrorHandlingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(lastErr.Err),
			)
		}
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: err.Error()}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "admin access required"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrOwnRole) ||
		errors.Is(err, auth.ErrMissingFields) ||
		errors.Is(err, userdomain.ErrInvalidRole) ||
		errors.Is(err, usagedomain.ErrInvalidDays) ||
		errors.Is(err, usagedomain.ErrInvalidMonth) ||
		errors.Is(err, usagedomain.ErrInvalidYear) ||
		errors.Is(err, usagedomain.ErrInvalidStorage) ||
		errors.Is(err, objectdomain.ErrEmptyFile) ||
		errors.Is(err, objectdomain.ErrNoFilename) ||
		errors.Is(err, objectdomain.ErrUnsafeFilename) ||
		errors.Is(err, objectdomain.ErrBlockedExtension) ||
		errors.Is(err, objectdomain.ErrUnknownExtension) ||
		errors.Is(err, objectdomain.ErrFileTooLarge) ||
		errors.Is(err, objectdomain.ErrQuotaExceeded)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, userdomain.ErrUserNotFound) ||
		errors.Is(err, objectdomain.ErrObjectNotFound) ||
		errors.Is(err, billingdomain.ErrInvoiceNotFound) ||
		errors.Is(err, scheduler.ErrUnknownJob)
}

func isConflictError(err error) bool {
	return errors.Is(err, userdomain.ErrUsernameTaken) ||
		errors.Is(err, userdomain.ErrEmailTaken) ||
		errors.Is(err, objectdomain.ErrObjectExists)
}
