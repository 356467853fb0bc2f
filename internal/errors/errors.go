package errors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeStructuralMismatch ErrorType = "STRUCTURAL_MISMATCH"
	ErrorTypeTypeConflict       ErrorType = "TYPE_CONFLICT"
	ErrorTypeInvalidVersion     ErrorType = "INVALID_VERSION"
	ErrorTypeCircularDependency ErrorType = "CIRCULAR_DEPENDENCY"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeStoreCommit        ErrorType = "STORE_COMMIT"
	ErrorTypeValidation         ErrorType = "VALIDATION"
	ErrorTypeInternal           ErrorType = "INTERNAL"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// StructuralMismatch reports a strict merge failure at a dotted tree path,
// e.g. "aspects.2".
func StructuralMismatch(path string, baseLen, overlayLen int) *Error {
	return &Error{
		Type:    ErrorTypeStructuralMismatch,
		Message: fmt.Sprintf("merge failed: list length mismatch at %q", path),
		Code:    http.StatusUnprocessableEntity,
		Details: map[string]any{"path": path, "base": baseLen, "overlay": overlayLen},
	}
}

func TypeConflict(path string) *Error {
	return &Error{
		Type:    ErrorTypeTypeConflict,
		Message: fmt.Sprintf("merge failed: incompatible node types at %q", path),
		Code:    http.StatusUnprocessableEntity,
		Details: map[string]any{"path": path},
	}
}

// InvalidVersion is a caller usage error, surfaced as not-found downstream.
func InvalidVersion(given, max int) *Error {
	return &Error{
		Type:    ErrorTypeInvalidVersion,
		Message: "invalid version number",
		Code:    http.StatusNotFound,
		Details: map[string]any{"given": given, "min": 1, "max": max},
	}
}

// CircularDependency carries the unresolved remainder of the dependency map.
func CircularDependency(remaining map[string][]string) *Error {
	return &Error{
		Type:    ErrorTypeCircularDependency,
		Message: "circular dependencies",
		Code:    http.StatusInternalServerError,
		Details: remaining,
	}
}

func NotFound(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
		Details: details,
	}
}

func StoreCommit(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeStoreCommit,
		Message: fmt.Sprintf("%s: %v", message, err),
		Code:    http.StatusInternalServerError,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := err.(*Error)
	return ok && appErr.Type == t
}
