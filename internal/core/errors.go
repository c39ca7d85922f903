// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("service unavailable")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// AppError is an error that already knows how it should be rendered to a
// client.
type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func NewAppError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

func UnauthorizedError(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func ForbiddenError(message string) *AppError {
	return NewAppError(http.StatusForbidden, "FORBIDDEN", message)
}

func NotFoundError(resource string) *AppError {
	return NewAppError(http.StatusNotFound, "NOT_FOUND", resource+" not found")
}

func BadRequestError(message string) *AppError {
	return NewAppError(http.StatusBadRequest, "BAD_REQUEST", message)
}

func UnavailableError(message string) *AppError {
	return NewAppError(
		http.StatusServiceUnavailable,
		"SERVICE_UNAVAILABLE",
		message,
	)
}

func PaymentRequiredError(message string) *AppError {
	return NewAppError(http.StatusPaymentRequired, "PAYMENT_REQUIRED", message)
}

func TokenExpiredError() *AppError {
	return NewAppError(http.StatusUnauthorized, "TOKEN_EXPIRED", "token has expired")
}

func TokenInvalidError() *AppError {
	return NewAppError(http.StatusUnauthorized, "TOKEN_INVALID", "token is invalid")
}
