package client

import (
	"fmt"
	"net/http"
	"time"
)

const (
	CodeBlockedUser    = "USUARIO_BLOQUEADO"
	CodeBadCredentials = "CREDENCIALES_INVALIDAS"
	CodeMaintenance    = "EN_MANTENIMIENTO"
)

const (
	reauthMessage  = "Your session is no longer valid: the token may have expired or your account may have been blocked. Please log in again."
	blockedMessage = "Your account has been blocked. Please contact the administrator."
	genericMessage = "The request could not be completed. Please try again later."
)

// APIError is returned for every non 2xx answer of the server.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RequestID  string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// RequiresReauth reports whether the caller should log in again.
func (e *APIError) RequiresReauth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

func (e *APIError) IsBlocked() bool {
	return e.Code == CodeBlockedUser
}

// UserMessage gives the text to show to a person. Wrong credentials
// at login keep the server message.
func (e *APIError) UserMessage() string {
	switch {
	case e.IsBlocked():
		return blockedMessage
	case e.RequiresReauth() && e.Code != CodeBadCredentials:
		return reauthMessage
	case e.Message != "":
		return e.Message
	default:
		return genericMessage
	}
}
