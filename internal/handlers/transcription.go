package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/voxscribe/apiserver/internal/gate"
	"github.com/voxscribe/apiserver/internal/services"
	"github.com/voxscribe/apiserver/types"
)

const (
	maxMultipartMemory = 32 << 20
	// Room for multipart boundaries and headers around the audio part.
	multipartOverhead = 1 << 20
	formFieldFile     = "file"
)

// TranscriptionService is the workflow surface used by the transcription handlers.
type TranscriptionService interface {
	Process(ctx context.Context, userID string, file types.AudioFile) (types.Transcription, []types.Transcription, error)
	GetUserTranscriptions(ctx context.Context, userID string) ([]types.Transcription, error)
	Get(ctx context.Context, id string) (types.Transcription, error)
	DeleteTranscription(ctx context.Context, id string) error
	OpenAudio(ctx context.Context, t types.Transcription) (io.ReadCloser, error)
}

var _ TranscriptionService = (*services.TranscriptionService)(nil)

// TranscriptionHandler serves the caller's transcriptions.
type TranscriptionHandler struct {
	svc    TranscriptionService
	admins AdminChecker
}

func NewTranscriptionHandler(svc TranscriptionService, admins AdminChecker) *TranscriptionHandler {
	return &TranscriptionHandler{svc: svc, admins: admins}
}

// TranscriptionRouter registers transcription routes. Every route requires authentication.
func TranscriptionRouter(r chi.Router, svc TranscriptionService, auth Authenticator, admins AdminChecker) {
	handler := NewTranscriptionHandler(svc, admins)

	r.Use(RequireAuth(auth))
	r.Get("/", handler.List)
	r.Post("/", handler.Upload)
	r.Delete("/{id}", handler.Delete)
	r.Get("/{id}/audio", handler.Audio)
}

func (h *TranscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	items, err := h.svc.GetUserTranscriptions(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Upload runs the upload, transcribe and save workflow on the "file" part.
func (h *TranscriptionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	if r.ContentLength > services.MaxAudioSize+multipartOverhead {
		writeServiceError(w, r, services.ErrFileTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAudioSize+multipartOverhead)
	file, err := parseAudioForm(r)
	if err != nil {
		if errors.Is(err, services.ErrFileTooLarge) {
			writeServiceError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, items, err := h.svc.Process(r.Context(), session.UserID, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{Transcription: created, Items: items})
}

// Delete removes a transcription owned by the caller. Admins may delete any.
func (h *TranscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !h.allowed(w, r, session, t) {
		return
	}

	if err := h.svc.DeleteTranscription(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Audio streams the stored audio of a transcription to its owner or an admin.
func (h *TranscriptionHandler) Audio(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !h.allowed(w, r, session, t) {
		return
	}

	rc, err := h.svc.OpenAudio(r.Context(), t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(t.AudioPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(t.AudioPath)}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("transcription_id", t.ID).Msg("audio stream interrupted")
	}
}

// allowed passes owners through and asks the admin gate for everyone else.
// It writes the 403 itself.
func (h *TranscriptionHandler) allowed(w http.ResponseWriter, r *http.Request, session types.Session, t types.Transcription) bool {
	if t.UserID == session.UserID {
		return true
	}
	decision := gate.Admin(r.Context(), func(ctx context.Context) bool {
		return h.admins.IsAdmin(ctx, session.UserID)
	})
	if !decision.Allowed {
		writeError(w, http.StatusForbidden, decision.Message)
		return false
	}
	return true
}

type UploadResponse struct {
	Transcription types.Transcription   `json:"transcription"`
	Items         []types.Transcription `json:"items"`
}

func parseAudioForm(r *http.Request) (types.AudioFile, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return types.AudioFile{}, services.ErrFileTooLarge
		}
		return types.AudioFile{}, errors.New("invalid multipart form")
	}

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		return types.AudioFile{}, errors.New("audio file is required")
	}
	defer file.Close()

	if header.Size > services.MaxAudioSize {
		return types.AudioFile{}, services.ErrFileTooLarge
	}

	data, err := readFileLimited(file, services.MaxAudioSize)
	if err != nil {
		return types.AudioFile{}, err
	}

	return types.AudioFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, services.ErrFileTooLarge
	}
	return data, nil
}
