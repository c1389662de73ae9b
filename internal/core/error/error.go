package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Kind classifies an AppError so callers can pick a retry policy without
// inspecting messages.
type Kind string

const (
	KindEmptyExtraction        Kind = "empty_extraction"
	KindUnsupportedCombination Kind = "unsupported_combination"
	KindAuthentication         Kind = "authentication"
	KindTransport              Kind = "transport"
	KindTimeout                Kind = "timeout"
	KindSchemaViolation        Kind = "schema_violation"
	KindInvalidRequest         Kind = "invalid_request"
	KindStorage                Kind = "storage"
	KindInternal               Kind = "internal"
)

// Sentinels match any AppError of the same Kind through errors.Is.
var (
	ErrEmptyExtraction        = &AppError{Kind: KindEmptyExtraction, Status: http.StatusUnprocessableEntity, Message: "no menu items found in input"}
	ErrUnsupportedCombination = &AppError{Kind: KindUnsupportedCombination, Status: http.StatusBadRequest, Message: "unsupported provider/mode combination"}
	ErrAuthentication         = &AppError{Kind: KindAuthentication, Status: http.StatusUnauthorized, Message: "authentication failed"}
	ErrTransport              = &AppError{Kind: KindTransport, Status: http.StatusBadGateway, Message: "analysis backend request failed"}
	ErrTimeout                = &AppError{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: "analysis backend timed out"}
	ErrSchemaViolation        = &AppError{Kind: KindSchemaViolation, Status: http.StatusUnprocessableEntity, Message: "model output does not match the analysis schema"}
	ErrInvalidRequest         = &AppError{Kind: KindInvalidRequest, Status: http.StatusBadRequest, Message: "invalid analysis request"}
	ErrStorage                = &AppError{Kind: KindStorage, Status: http.StatusBadGateway, Message: RedisErrorMessage}
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Kind    Kind
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError of the same kind, or matches the
// underlying error.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) && t.Kind != "" && t.Kind == e.Kind {
		return true
	}
	return errors.Is(e.Err, target)
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Wrap builds an AppError of the sentinel's kind around err. An empty message
// keeps the sentinel's.
func Wrap(sentinel *AppError, err error, message string) *AppError {
	if message == "" {
		message = sentinel.Message
	}
	return &AppError{
		Kind:    sentinel.Kind,
		Err:     err,
		Status:  sentinel.Status,
		Message: message,
	}
}

// Newf builds an AppError of the sentinel's kind with a formatted message.
func Newf(sentinel *AppError, format string, args ...any) *AppError {
	return Wrap(sentinel, nil, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first AppError in err's chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status of the first AppError in err's chain.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether resubmitting the same request may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout, KindSchemaViolation:
		return true
	default:
		return false
	}
}
