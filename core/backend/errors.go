package backend

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error codes
const (
	CodeNoRows             = "PGRST116" // single object requested, none returned
	CodeUnknownTable       = "42P01"
	CodeUnknownColumn      = "42703"
	CodeInvalidCredentials = "invalid_credentials"
	CodeUserExists         = "user_already_exists"
	CodeWeakPassword       = "weak_password"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeValidationFailed   = "validation_failed"
	CodeBadJWT             = "bad_jwt"
	CodeNoAuthorization    = "no_authorization"
	CodePayloadTooLarge    = "payload_too_large"
	CodeDuplicate          = "Duplicate"
	CodeObjectNotFound     = "not_found"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNoSession = errors.New("no active session")
)

// Error is a failure reported by the backend. Every failure carries a human readable Message.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func NewError(status int, code, msg string) *Error {
	return &Error{Status: status, Code: code, Message: msg}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// Is matches ErrNotFound for missing rows and objects.
func (e *Error) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	return e.Code == CodeNoRows || e.Code == CodeObjectNotFound || e.Status == http.StatusNotFound
}

// StatusOf returns the HTTP status of err, or 500 when err does not come from the backend.
func StatusOf(err error) int {
	var bErr *Error
	if errors.As(err, &bErr) && bErr.Status != 0 {
		return bErr.Status
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
