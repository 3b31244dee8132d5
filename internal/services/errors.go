package services

import (
	"errors"

	"github.com/voxscribe/apiserver/internal/store"
	"github.com/voxscribe/apiserver/internal/transcribe"
)

// Error pairs the short message shown to users with the underlying cause.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(message string, err error) error {
	return &Error{Message: message, Err: err}
}

var (
	ErrUnauthenticated    = &Error{Message: "Not authenticated"}
	ErrInvalidCredentials = &Error{Message: "Invalid login credentials"}
	ErrIncorrectPassword  = &Error{Message: "Current password is incorrect"}
	ErrInvalidEmail       = &Error{Message: "Invalid email address"}
	ErrWeakPassword       = &Error{Message: "Password must be at least 6 characters"}
	ErrEmailTaken         = &Error{Message: "Email address is already registered"}
	ErrFileTooLarge       = &Error{Message: "File size exceeds 25MB limit"}
	ErrEmptyFile          = &Error{Message: "Audio file is empty"}
	ErrInvalidRole        = &Error{Message: "Invalid role"}
)

// Fixed messages for the transcription failure classes.
const (
	MsgUnavailable  = "Service temporarily unavailable. Please try again later."
	MsgInvalidAudio = "Invalid audio file. Please try a different file."
	MsgTranscribe   = "Error transcribing audio"
)

// UserMessage returns the text to show for err. Transcription failure classes
// map to fixed messages, service errors to their own message, and anything
// else to a generic one.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, transcribe.ErrUnavailable):
		return MsgUnavailable
	case errors.Is(err, transcribe.ErrInvalidAudio):
		return MsgInvalidAudio
	case errors.Is(err, transcribe.ErrFailed):
		return MsgTranscribe
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	if errors.Is(err, store.ErrNotFound) {
		return "Not found"
	}
	return "Unexpected error"
}
