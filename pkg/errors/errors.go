package errors

import (
	"errors"
	"net/http"
)

// Error is a domain error with a machine-readable code that survives
// the trip to the client untouched.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrRoomFull          = New("ROOM_FULL", "room is at capacity")
	ErrBannedFromRoom    = New("BANNED_FROM_ROOM", "re-entry to this room is blocked")
	ErrInvalidTransition = New("INVALID_TRANSITION", "membership is not in a state that allows this operation")
	ErrStoreUnavailable  = New("STORE_UNAVAILABLE", "storage is temporarily unavailable")

	ErrNotFound            = New("NOT_FOUND", "not found")
	ErrRoomNotFound        = New("ROOM_NOT_FOUND", "room not found")
	ErrMatchNotFound       = New("MATCH_NOT_FOUND", "match not found")
	ErrMembershipNotFound  = New("MEMBERSHIP_NOT_FOUND", "membership not found")
	ErrUnauthorized        = New("UNAUTHORIZED", "unauthorized")
	ErrForbidden           = New("FORBIDDEN", "forbidden")
	ErrNotHost             = New("NOT_HOST", "only the host may perform this action")
	ErrBadRequest          = New("BAD_REQUEST", "bad request")
	ErrInvalidCredentials  = New("INVALID_CREDENTIALS", "invalid credentials")
	ErrUserAlreadyExists   = New("USER_EXISTS", "user already exists")
	ErrInvalidToken        = New("INVALID_TOKEN", "invalid token")
	ErrTokenExpired        = New("TOKEN_EXPIRED", "token expired")
	ErrInternalServer      = New("INTERNAL", "internal server error")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	var de *Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}

	switch de {
	case ErrRoomFull:
		return http.StatusConflict
	case ErrBannedFromRoom, ErrForbidden, ErrNotHost:
		return http.StatusForbidden
	case ErrInvalidTransition:
		return http.StatusUnprocessableEntity
	case ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrNotFound, ErrRoomNotFound, ErrMatchNotFound, ErrMembershipNotFound:
		return http.StatusNotFound
	case ErrUnauthorized, ErrInvalidCredentials, ErrInvalidToken, ErrTokenExpired:
		return http.StatusUnauthorized
	case ErrBadRequest, ErrUserAlreadyExists:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromError returns the machine code for an error, or "INTERNAL"
// for anything that is not a domain error.
func CodeFromError(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}
