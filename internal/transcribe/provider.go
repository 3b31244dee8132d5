// Package transcribe wraps the speech-to-text API.
package transcribe

import (
	"context"
	"errors"

	"github.com/voxscribe/apiserver/types"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, file types.AudioFile) (string, error)
	Name() string  // "openai"
	Model() string // model identifier for logs
}

// Failure classes returned by providers. Every provider error wraps exactly one.
var (
	// ErrUnavailable means the API quota or capacity is exhausted.
	ErrUnavailable = errors.New("transcription service unavailable")

	// ErrInvalidAudio means the API rejected the payload as malformed or unsupported.
	ErrInvalidAudio = errors.New("invalid audio")

	// ErrFailed covers every other failure.
	ErrFailed = errors.New("transcription failed")
)
