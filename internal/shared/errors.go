package shared

import "errors"

var (
	// ErrValidation indicates malformed input such as an empty permission string.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or in-use violation.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrAuthentication indicates missing or unacceptable credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrAuthorization indicates a valid identity lacking a permission.
	ErrAuthorization = errors.New("forbidden")

	// ErrInvalidCredentials indicates login failure. It never reveals whether
	// the account exists.
	ErrInvalidCredentials = &Error{Kind: ErrAuthentication, Code: "invalid_credentials", Message: "invalid email or password"}
)

// Conflict messages surfaced to callers.
const (
	MsgAlreadyAssigned = "already assigned"
	MsgRoleInUse       = "role in use"
	MsgRoleInactive    = "role inactive"
	MsgEmailTaken      = "email already registered"
	MsgRoleNameTaken   = "role name already exists"
	MsgRoleBusy        = "role is being modified, retry"
)

// Error is a classified domain error. Kind is one of the sentinel errors
// above; Code is a stable machine-readable identifier for API clients.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap exposes the kind for errors.Is chains.
func (e *Error) Unwrap() error {
	return e.Kind
}

// Validation builds a ValidationError.
func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Code: "validation_error", Message: msg}
}

// Conflict builds a ConflictError.
func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Code: "conflict", Message: msg}
}

// NotFound builds a NotFoundError.
func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Code: "not_found", Message: msg}
}

// Unauthenticated builds an AuthenticationError with the given code.
func Unauthenticated(code, msg string) error {
	return &Error{Kind: ErrAuthentication, Code: code, Message: msg}
}

// Forbidden builds an AuthorizationError.
func Forbidden(msg string) error {
	return &Error{Kind: ErrAuthorization, Code: "forbidden", Message: msg}
}

// AsError extracts the classified error, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// MessageOf returns the human message of a classified error, or an empty string.
func MessageOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Message
	}
	return ""
}

// UserSafeMessage returns a message that can be shown to API clients.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok && e.Message != "" {
		return e.Message
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrValidation):
		return "invalid request"
	}
	return "internal error"
}
