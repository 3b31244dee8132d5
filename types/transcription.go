package types

import "time"

// Transcription is the stored text produced from one uploaded audio file.
type Transcription struct {
	// ID is the unique identifier of the transcription (a UUID string).
	ID string `json:"id" db:"id"`

	// UserID identifies the profile that owns the transcription.
	UserID string `json:"user_id" db:"user_id"`

	// AudioPath is the object storage key of the uploaded audio.
	// It is set once at creation and never changed.
	AudioPath string `json:"audio_path" db:"audio_path"`

	// TextContent is the text returned by the speech-to-text API.
	TextContent string `json:"text_content" db:"text_content"`

	// CreatedAt is the timestamp when the transcription was stored.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AnnotatedTranscription is a transcription together with its owner's email,
// as shown in the admin console.
type AnnotatedTranscription struct {
	Transcription
	OwnerEmail string `json:"owner_email" db:"email"`
}

// AudioFile is an uploaded audio payload held in memory for the duration of
// the upload/transcribe workflow.
type AudioFile struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}
