package main

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes sent to the API clients under the `error` field.
const (
	CodeInvalidArgument = "ARGUMENTO_INVALIDO"
	CodeInvalidState    = "ESTADO_INVALIDO"
	CodeIntegrity       = "VIOLACION_INTEGRIDAD"
	CodeNotFound        = "NO_ENCONTRADO"
	CodeUnauthenticated = "NO_AUTENTICADO"
	CodeBadCredentials  = "CREDENCIALES_INVALIDAS"
	CodeBlockedUser     = "USUARIO_BLOQUEADO"
	CodeForbidden       = "SIN_PERMISOS"
	CodeBookHasLoans    = "LIBRO_CON_PRESTAMOS_ACTIVOS"
	CodeTooManyRequests = "DEMASIADAS_SOLICITUDES"
	CodeMaintenance     = "EN_MANTENIMIENTO"
	CodeInternal        = "ERROR_INTERNO"
)

// ErrRecordNotFound is returned by storages when no record matches the id.
var ErrRecordNotFound = errors.New("record not found")

var (
	ErrBookNotFound      = NewNotFoundError("book not found")
	ErrCategoryNotFound  = NewNotFoundError("category not found")
	ErrUserNotFound      = NewNotFoundError("user not found")
	ErrLoanNotFound      = NewNotFoundError("loan not found")
	ErrBadCredentials    = &LibraryError{http.StatusUnauthorized, CodeBadCredentials, "invalid username or password"}
	ErrUnauthenticated   = &LibraryError{http.StatusUnauthorized, CodeUnauthenticated, "missing, invalid or expired token"}
	ErrUserBlocked       = &LibraryError{http.StatusForbidden, CodeBlockedUser, "user account is blocked. please contact the library"}
	ErrForbidden         = &LibraryError{http.StatusForbidden, CodeForbidden, "you do not have permission to access this resource"}
	ErrTooManyLogins     = &LibraryError{http.StatusTooManyRequests, CodeTooManyRequests, "too many login attempts. please retry later"}
	ErrNoCopiesAvailable = NewInvalidStateError("no copies available")
	ErrNoPendingFine     = NewInvalidStateError("loan has no pending fine")
	ErrAdminExists       = NewInvalidStateError("an admin account already exists")
)

// LibraryError is a failure which carries the http status
// and the code to be sent back to the API clients.
type LibraryError struct {
	Status  int
	Code    string
	Message string
}

func (e *LibraryError) Error() string {
	return e.Message
}

func NewInvalidArgumentError(message string) *LibraryError {
	return &LibraryError{http.StatusBadRequest, CodeInvalidArgument, message}
}

func NewInvalidStateError(message string) *LibraryError {
	return &LibraryError{http.StatusBadRequest, CodeInvalidState, message}
}

func NewIntegrityError(message string) *LibraryError {
	return &LibraryError{http.StatusConflict, CodeIntegrity, message}
}

func NewNotFoundError(message string) *LibraryError {
	return &LibraryError{http.StatusNotFound, CodeNotFound, message}
}

// NewBookHasLoansError reports a book removal blocked by its active loans.
func NewBookHasLoansError(active int) *LibraryError {
	return &LibraryError{
		Status:  http.StatusBadRequest,
		Code:    CodeBookHasLoans,
		Message: fmt.Sprintf("book cannot be deleted: it has %d active loan(s)", active),
	}
}

// AsLibraryError finds the first LibraryError in err chain. Any other
// error is reported as an internal failure without leaking its details.
func AsLibraryError(err error) *LibraryError {
	var le *LibraryError
	if errors.As(err, &le) {
		return le
	}
	var mf missingFieldError
	if errors.As(err, &mf) {
		return NewInvalidArgumentError(mf.Error())
	}
	return &LibraryError{http.StatusInternalServerError, CodeInternal, "failed to process the request"}
}

// notFoundAs translates the storage not found error into a domain one.
func notFoundAs(err error, target *LibraryError) error {
	if errors.Is(err, ErrRecordNotFound) {
		return target
	}
	return err
}
