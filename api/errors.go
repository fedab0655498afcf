package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMessageNotFoundInCache = errors.New("message not found in cache")
	ErrMessageNotFound        = errors.New("message not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrUsernameTaken          = errors.New("username already taken")
)

// An Error is returned by handlers to end a request with a specific status.
// Message is sent to the client, Err is only logged.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(status int, msg string, err error) *Error {
	return &Error{Status: status, Message: msg, Err: err}
}

// handlerFunc is an http.HandlerFunc that reports failures by returning them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts fn to an http.HandlerFunc and renders any returned error.
func (a *API) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		var e *Error
		if !errors.As(err, &e) {
			e = newError(http.StatusInternalServerError, "Internal server error", err)
		}
		a.respondError(w, e.Status, err, e.Message)
	}
}
