// Package apperr classifies failures into the kinds the UI layer renders:
// fatal errors replace the whole view, popup errors auto-dismiss, and
// validation errors never leave the component that produced them.
package apperr

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind determines how an error is surfaced to the user.
type Kind string

const (
	KindFatal      Kind = "fatal"
	KindPopup      Kind = "popup"
	KindValidation Kind = "validation"
)

// Error is a user-facing error. Message is always plain language; raw
// transport detail stays in logs.
type Error struct {
	Kind     Kind
	Message  string
	Status   int
	Duration time.Duration
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Fatal builds a view-replacing error.
func Fatal(message string, cause error) *Error {
	return &Error{Kind: KindFatal, Message: message, cause: cause}
}

// Popup builds a transient, auto-dismissing error.
func Popup(message string, duration time.Duration) *Error {
	return &Error{Kind: KindPopup, Message: message, Duration: duration}
}

// Validation builds a local input-validation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// FromStatus maps a non-success HTTP status to a user-facing error, keeping
// the distinctions the UI needs to render the correct terminal state.
func FromStatus(status int, detail string) *Error {
	e := &Error{Status: status}
	switch status {
	case http.StatusBadRequest:
		switch {
		case strings.Contains(detail, "own game"):
			e.Kind, e.Message, e.Duration = KindPopup, "You cannot join your own game", 3*time.Second
		case strings.Contains(detail, "already full"):
			e.Kind, e.Message = KindFatal, "This game is already full"
		default:
			e.Kind, e.Duration = KindPopup, 3*time.Second
			e.Message = detail
			if e.Message == "" {
				e.Message = "Invalid request"
			}
		}
	case http.StatusUnauthorized:
		e.Kind, e.Message = KindFatal, "Session expired. Please refresh the page"
	case http.StatusForbidden:
		e.Kind, e.Message = KindFatal, "You are not authorized to perform this action"
	case http.StatusNotFound:
		e.Kind, e.Message = KindFatal, "Game not found"
	case http.StatusRequestTimeout:
		e.Kind, e.Message, e.Duration = KindPopup, "Request timed out. Please try again", 5*time.Second
	case http.StatusTooManyRequests:
		e.Kind, e.Message, e.Duration = KindPopup, "Too many requests. Please wait a moment", 5*time.Second
	case http.StatusInternalServerError:
		e.Kind, e.Message = KindFatal, "Server error. Please try again later"
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		e.Kind, e.Message = KindFatal, "Server is temporarily unavailable. Please try again later"
	default:
		e.Kind, e.Duration = KindPopup, 5*time.Second
		e.Message = detail
		if e.Message == "" {
			e.Message = "An unexpected error occurred"
		}
	}
	return e
}

// Connection builds the fatal error shown when the backend is unreachable.
func Connection(cause error) *Error {
	return &Error{
		Kind:    KindFatal,
		Message: "Connection error. Please check your internet connection",
		cause:   cause,
	}
}

// IsNotFound reports whether err is the distinguished not-found error.
func IsNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Status == http.StatusNotFound
}
