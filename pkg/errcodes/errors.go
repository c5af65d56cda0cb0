package errcodes

import (
	"fmt"
	"net/http"
)

// Error is the domain error taxonomy. Repositories and services translate
// lower-level failures into an *Error at their boundary; the HTTP error
// handler maps it onto the wire as {"error": "<message>"}.
type Error struct {
	HTTPCode int
	Message  string
	Code     string

	cause error
}

func (err *Error) Error() string {
	if err.cause != nil {
		return err.Message + ": " + err.cause.Error()
	}
	return err.Message
}

// Unwrap exposes the underlying cause for logging; the cause never reaches
// the wire.
func (err *Error) Unwrap() error {
	return err.cause
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	te.cause = err.cause
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Code == err.Code
}

// BadRequest returns a 400 error with the given message.
func BadRequest(msg string) error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  msg,
		Code:     "bad_request",
	}
}

// Unauthorized returns a 401 error. Used for missing, invalid, or expired
// credentials; the message never says which.
func Unauthorized() error {
	return &Error{
		HTTPCode: http.StatusUnauthorized,
		Message:  "Invalid credentials.",
		Code:     "unauthorized",
	}
}

// Forbidden returns a 403 error with a message indicating the action is
// forbidden.
func Forbidden(action string) error {
	return &Error{
		HTTPCode: http.StatusForbidden,
		Message:  action + " is not allowed.",
		Code:     "forbidden",
	}
}

// NotFound returns a 404 error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		HTTPCode: http.StatusNotFound,
		Message:  resource + " not found.",
		Code:     "not_found",
	}
}

// Conflict returns a 409 error for unique-constraint violations.
func Conflict(msg string) error {
	return &Error{
		HTTPCode: http.StatusConflict,
		Message:  msg,
		Code:     "conflict",
	}
}

// FailedUpdate returns the 409 error for an optimistic-concurrency miss: the
// row changed since the client read it.
func FailedUpdate(resource string) error {
	return &Error{
		HTTPCode: http.StatusConflict,
		Message:  resource + " version does not match.",
		Code:     "failed_update",
	}
}

// TooManyRequests returns a 429 error for rate-limited endpoints.
func TooManyRequests() error {
	return &Error{
		HTTPCode: http.StatusTooManyRequests,
		Message:  "Too many requests.",
		Code:     "too_many_requests",
	}
}

// PathConflict returns the 409 error for a file destination that stayed
// occupied through every collision-suffix candidate.
func PathConflict(path string) error {
	return &Error{
		HTTPCode: http.StatusConflict,
		Message:  fmt.Sprintf("Path %q already exists.", path),
		Code:     "path_conflict",
	}
}

func UnsupportedMediaType() error {
	return &Error{
		HTTPCode: http.StatusUnsupportedMediaType,
		Message:  "Unsupported Media Type",
		Code:     "unsupported_media_type",
	}
}

func UnknownParameter(param string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  fmt.Sprintf("Unknown Parameter %q", param),
		Code:     "unknown_parameter",
	}
}

// InvalidOrderByField rejects a sort field outside the entity's allow-list.
func InvalidOrderByField(field string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  fmt.Sprintf("Invalid order by field %q", field),
		Code:     "invalid_order_by_field",
	}
}

func ValidationTypeError(msg string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  msg,
		Code:     "validation_type_error",
	}
}

func ValidationError(msg string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  msg,
		Code:     "validation_error",
	}
}

func MalformedPayload() error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  "Malformed Payload",
		Code:     "malformed_payload",
	}
}

func EmptyRequestBody() error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  "Request body can't be empty.",
		Code:     "empty_request_body",
	}
}

// Application masks an unexpected internal failure. The cause is kept for
// logs only.
func Application(err error) error {
	return &Error{
		HTTPCode: http.StatusInternalServerError,
		Message:  "Application error",
		Code:     "application_error",
		cause:    err,
	}
}

// Database masks a database failure. The cause is kept for logs only.
func Database(err error) error {
	return &Error{
		HTTPCode: http.StatusInternalServerError,
		Message:  "Database error",
		Code:     "database_error",
		cause:    err,
	}
}
