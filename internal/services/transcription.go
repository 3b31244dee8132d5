package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/voxscribe/apiserver/internal/metrics"
	"github.com/voxscribe/apiserver/internal/mq"
	"github.com/voxscribe/apiserver/internal/storage"
	"github.com/voxscribe/apiserver/internal/transcribe"
	"github.com/voxscribe/apiserver/types"
)

// MaxAudioSize is the largest upload the speech-to-text API accepts (25 MiB).
const MaxAudioSize int64 = 25 << 20

// TranscriptionRepository defines persistence operations for transcriptions.
type TranscriptionRepository interface {
	Get(ctx context.Context, id string) (types.Transcription, error)
	Create(ctx context.Context, t types.Transcription) (types.Transcription, error)
	ListByUser(ctx context.Context, userID string) ([]types.Transcription, error)
	ListAll(ctx context.Context) ([]types.AnnotatedTranscription, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// AudioStore stores uploaded audio objects.
type AudioStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// TranscriptionService runs the upload, transcribe and save workflow.
type TranscriptionService struct {
	repo     TranscriptionRepository
	audio    AudioStore
	provider transcribe.Provider
	events   mq.Publisher
	log      zerolog.Logger
	now      func() time.Time
}

func NewTranscriptionService(
	repo TranscriptionRepository,
	audio AudioStore,
	provider transcribe.Provider,
	events mq.Publisher,
	log zerolog.Logger,
) *TranscriptionService {
	return &TranscriptionService{
		repo:     repo,
		audio:    audio,
		provider: provider,
		events:   events,
		log:      log.With().Str("component", "transcription").Logger(),
		now:      time.Now,
	}
}

// Process runs the full workflow for one file and returns the new row and the
// user's refreshed list. Steps run strictly in order and stop at the first
// failure. Nothing is retried or rolled back.
func (s *TranscriptionService) Process(ctx context.Context, userID string, file types.AudioFile) (types.Transcription, []types.Transcription, error) {
	if err := checkSize(file); err != nil {
		metrics.Step("validate", "rejected")
		return types.Transcription{}, nil, err
	}

	audioPath, err := s.UploadAudio(ctx, file, userID)
	if err != nil {
		return types.Transcription{}, nil, err
	}

	text, err := s.TranscribeAudio(ctx, file)
	if err != nil {
		s.orphaned(ctx, userID, audioPath, err)
		return types.Transcription{}, nil, err
	}

	created, err := s.SaveTranscription(ctx, userID, audioPath, text)
	if err != nil {
		s.orphaned(ctx, userID, audioPath, err)
		return types.Transcription{}, nil, err
	}
	s.emit(ctx, mq.Event{
		Type:            mq.EventTranscriptionCreated,
		UserID:          userID,
		TranscriptionID: created.ID,
		AudioPath:       audioPath,
	})

	items, err := s.GetUserTranscriptions(ctx, userID)
	if err != nil {
		return created, nil, err
	}
	return created, items, nil
}

// UploadAudio stores the file under {userID}/{millis}-{name} and returns the key.
func (s *TranscriptionService) UploadAudio(ctx context.Context, file types.AudioFile, userID string) (string, error) {
	if err := checkSize(file); err != nil {
		return "", err
	}

	key := storage.AudioKey(userID, s.now(), file.Name)
	size := int64(len(file.Data))
	if err := s.audio.Put(ctx, key, bytes.NewReader(file.Data), size, file.ContentType); err != nil {
		metrics.Step("upload", "error")
		s.log.Error().Err(err).Str("user_id", userID).Str("key", key).Msg("upload failed")
		return "", fail("Error uploading file", err)
	}
	metrics.Step("upload", "ok")
	metrics.UploadBytes.Observe(float64(size))
	return key, nil
}

// TranscribeAudio sends the file to the speech-to-text provider. Errors always
// wrap exactly one of the transcribe failure classes.
func (s *TranscriptionService) TranscribeAudio(ctx context.Context, file types.AudioFile) (string, error) {
	start := time.Now()
	text, err := s.provider.Transcribe(ctx, file)
	metrics.TranscribeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		err = classified(err)
		metrics.Step("transcribe", outcome(err))
		s.log.Error().Err(err).
			Str("provider", s.provider.Name()).
			Str("model", s.provider.Model()).
			Str("file", file.Name).
			Msg("transcription failed")
		return "", err
	}
	metrics.Step("transcribe", "ok")
	return text, nil
}

// SaveTranscription inserts a row linking the stored audio to its text.
func (s *TranscriptionService) SaveTranscription(ctx context.Context, userID, audioPath, text string) (types.Transcription, error) {
	created, err := s.repo.Create(ctx, types.Transcription{
		ID:          uuid.NewString(),
		UserID:      userID,
		AudioPath:   audioPath,
		TextContent: text,
	})
	if err != nil {
		metrics.Step("save", "error")
		s.log.Error().Err(err).Str("user_id", userID).Str("audio_path", audioPath).Msg("save transcription failed")
		return types.Transcription{}, fail("Error saving transcription", err)
	}
	metrics.Step("save", "ok")
	return created, nil
}

// GetUserTranscriptions lists the user's transcriptions, newest first.
func (s *TranscriptionService) GetUserTranscriptions(ctx context.Context, userID string) ([]types.Transcription, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fail("Error loading transcriptions", err)
	}
	return items, nil
}

func (s *TranscriptionService) Get(ctx context.Context, id string) (types.Transcription, error) {
	return s.repo.Get(ctx, id)
}

// OpenAudio opens the stored audio of t. Access to t is resolved by the
// caller first. The caller closes the reader.
func (s *TranscriptionService) OpenAudio(ctx context.Context, t types.Transcription) (io.ReadCloser, error) {
	rc, err := s.audio.Get(ctx, t.AudioPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fail("Audio file not found", err)
		}
		s.log.Error().Err(err).Str("transcription_id", t.ID).Str("audio_path", t.AudioPath).Msg("open audio failed")
		return nil, fail("Error loading audio", err)
	}
	return rc, nil
}

// DeleteTranscription removes the row only. The audio object stays in storage.
func (s *TranscriptionService) DeleteTranscription(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fail("Error deleting transcription", err)
	}
	return nil
}

func (s *TranscriptionService) orphaned(ctx context.Context, userID, audioPath string, cause error) {
	s.log.Warn().Str("user_id", userID).Str("audio_path", audioPath).Msg("uploaded audio has no transcription")
	s.emit(ctx, mq.Event{
		Type:      mq.EventAudioOrphaned,
		UserID:    userID,
		AudioPath: audioPath,
		Reason:    UserMessage(cause),
	})
}

func (s *TranscriptionService) emit(ctx context.Context, ev mq.Event) {
	emit(ctx, s.events, s.log, ev)
}

func emit(ctx context.Context, events mq.Publisher, log zerolog.Logger, ev mq.Event) {
	if events == nil {
		return
	}
	if err := events.Emit(ctx, ev); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(ev.Type, "error").Inc()
		log.Error().Err(err).Str("event", ev.Type).Msg("publish event failed")
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(ev.Type, "ok").Inc()
}

func checkSize(file types.AudioFile) error {
	size := int64(len(file.Data))
	if file.Size > size {
		size = file.Size
	}
	if size > MaxAudioSize {
		return ErrFileTooLarge
	}
	if size == 0 {
		return ErrEmptyFile
	}
	return nil
}

func classified(err error) error {
	if errors.Is(err, transcribe.ErrUnavailable) ||
		errors.Is(err, transcribe.ErrInvalidAudio) ||
		errors.Is(err, transcribe.ErrFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", transcribe.ErrFailed, err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, transcribe.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, transcribe.ErrInvalidAudio):
		return "invalid_audio"
	default:
		return "error"
	}
}
