package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for envelope mapping.
type Kind int

const (
	KindOther Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindDatabase
	KindCrypto
	KindFormat
	KindSerialization
	KindIo
	KindMemoryUnavailable
	KindAi
)

// AI provider error codes carried inside KindAi errors.
const (
	AiMissingAPIKey   = "MISSING_API_KEY"
	AiForbidden       = "FORBIDDEN"
	AiHTTPTimeout     = "HTTP_TIMEOUT"
	AiRateLimited     = "RATE_LIMITED"
	AiInvalidResponse = "INVALID_RESPONSE"
	AiInvalidRequest  = "INVALID_REQUEST"
	AiUnknown         = "UNKNOWN"
)

type Error struct {
	Kind          Kind
	Message       string
	Details       map[string]any
	AiCode        string
	CorrelationID string
	wrapped       error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is lets errors.Is match on Kind between two *Error values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks on kind alone.
var (
	ErrNotFound = &Error{Kind: KindNotFound}
	ErrConflict = &Error{Kind: KindConflict}
)

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func ValidationDetails(msg string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Database(op string, err error) *Error {
	return &Error{Kind: KindDatabase, Message: op, wrapped: err}
}

func Crypto(msg string) *Error {
	return &Error{Kind: KindCrypto, Message: msg}
}

func Format(msg string) *Error {
	return &Error{Kind: KindFormat, Message: msg}
}

func Serialization(op string, err error) *Error {
	return &Error{Kind: KindSerialization, Message: op, wrapped: err}
}

func Ai(code, msg string) *Error {
	return &Error{Kind: KindAi, Message: msg, AiCode: code}
}

func AiWithCorrelation(code, msg, correlationID string) *Error {
	return &Error{Kind: KindAi, Message: msg, AiCode: code, CorrelationID: correlationID}
}

// KindOf extracts the Kind from any error chain; plain errors are Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, sql.ErrNoRows) {
		return KindNotFound
	}
	return KindOther
}

// Code maps an error to the external envelope code.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation:
			return "VALIDATION_ERROR"
		case KindNotFound:
			return "NOT_FOUND"
		case KindConflict:
			return "CONFLICT"
		case KindMemoryUnavailable:
			return "MEMORY_UNAVAILABLE"
		case KindAi:
			if e.AiCode != "" {
				return e.AiCode
			}
			return AiUnknown
		}
	}
	return "UNKNOWN"
}

// FromDB classifies a driver-level error. modernc.org/sqlite surfaces
// constraint and busy conditions only through the message text.
func FromDB(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Kind: KindNotFound, Message: op + ": no matching row", wrapped: err}
	}
	msg := err.Error()
	if strings.Contains(msg, "constraint failed") || strings.Contains(msg, "SQLITE_CONSTRAINT") {
		return &Error{Kind: KindConflict, Message: op + ": constraint violated", wrapped: err}
	}
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return &Error{Kind: KindConflict, Message: op + ": store busy", wrapped: err}
	}
	return &Error{Kind: KindDatabase, Message: op, wrapped: err}
}
