package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/voxscribe/apiserver/internal/services"
	"github.com/voxscribe/apiserver/internal/storage"
	"github.com/voxscribe/apiserver/internal/store"
	"github.com/voxscribe/apiserver/types"
)

func strp(s string) *string { return &s }

type fakeAuth struct {
	sessions  map[string]types.Session
	users     map[string]types.User
	profiles  map[string]types.Profile
	passwords map[string]string
	authErr   error
	signedOut []string
	deleted   []string
}

var _ AuthService = (*fakeAuth)(nil)

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		sessions:  map[string]types.Session{},
		users:     map[string]types.User{},
		profiles:  map[string]types.Profile{},
		passwords: map[string]string{},
	}
}

// addUser registers an account and returns its bearer token.
func (f *fakeAuth) addUser(id, email string, role types.Role) string {
	token := "token-" + id
	f.users[id] = types.User{ID: id, Email: email}
	f.profiles[id] = types.Profile{ID: id, Email: email, Role: role}
	f.passwords[id] = "secret1"
	f.sessions[token] = types.Session{Token: token, UserID: id, Email: email, ID: "jti-" + id}
	return token
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (types.Session, error) {
	if f.authErr != nil {
		return types.Session{}, f.authErr
	}
	session, ok := f.sessions[token]
	if !ok {
		return types.Session{}, services.ErrUnauthenticated
	}
	return session, nil
}

func (f *fakeAuth) IsAdmin(_ context.Context, userID string) bool {
	return f.profiles[userID].Role == types.RoleAdmin
}

func (f *fakeAuth) CurrentUser(_ context.Context, userID string) (types.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return types.User{}, services.ErrUnauthenticated
	}
	return user, nil
}

func (f *fakeAuth) SignIn(_ context.Context, email, password string) (types.Session, error) {
	for id, user := range f.users {
		if strings.EqualFold(user.Email, email) && f.passwords[id] == password {
			return types.Session{Token: "token-" + id, UserID: id, Email: user.Email}, nil
		}
	}
	return types.Session{}, services.ErrInvalidCredentials
}

func (f *fakeAuth) SignUp(_ context.Context, email, password string) (types.Session, types.Profile, error) {
	if !strings.Contains(email, "@") {
		return types.Session{}, types.Profile{}, services.ErrInvalidEmail
	}
	if len(password) < services.MinPasswordLength {
		return types.Session{}, types.Profile{}, services.ErrWeakPassword
	}
	id := "u" + string(rune('0'+len(f.users)+1))
	token := f.addUser(id, email, types.RoleUser)
	return f.sessions[token], f.profiles[id], nil
}

func (f *fakeAuth) SignOut(_ context.Context, session types.Session) error {
	f.signedOut = append(f.signedOut, session.ID)
	delete(f.sessions, session.Token)
	return nil
}

func (f *fakeAuth) GetProfile(_ context.Context, id string) (types.Profile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	return profile, nil
}

func (f *fakeAuth) UpdateProfile(_ context.Context, session types.Session, update types.ProfileUpdate) (types.Profile, *types.Session, error) {
	profile := f.profiles[session.UserID]
	if update.FirstName != nil {
		profile.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		profile.LastName = *update.LastName
	}
	if update.Email == nil || *update.Email == "" || *update.Email == session.Email {
		f.profiles[session.UserID] = profile
		return profile, nil, nil
	}
	profile.Email = *update.Email
	f.profiles[session.UserID] = profile
	refreshed := types.Session{Token: "refreshed-" + session.UserID, UserID: session.UserID, Email: *update.Email}
	return profile, &refreshed, nil
}

func (f *fakeAuth) UpdatePassword(_ context.Context, session types.Session, current, next string) error {
	if f.passwords[session.UserID] != current {
		return services.ErrIncorrectPassword
	}
	f.passwords[session.UserID] = next
	return nil
}

func (f *fakeAuth) DeleteAccount(ctx context.Context, session types.Session) error {
	f.deleted = append(f.deleted, session.UserID)
	delete(f.users, session.UserID)
	return f.SignOut(ctx, session)
}

type fakeTranscriptions struct {
	items      map[string]types.Transcription
	audio      map[string][]byte
	processed  []types.AudioFile
	processErr error
	deleted    []string
}

var _ TranscriptionService = (*fakeTranscriptions)(nil)

func newFakeTranscriptions() *fakeTranscriptions {
	return &fakeTranscriptions{items: map[string]types.Transcription{}, audio: map[string][]byte{}}
}

func (f *fakeTranscriptions) Process(_ context.Context, userID string, file types.AudioFile) (types.Transcription, []types.Transcription, error) {
	f.processed = append(f.processed, file)
	if f.processErr != nil {
		return types.Transcription{}, nil, f.processErr
	}
	t := types.Transcription{
		ID:          "t-new",
		UserID:      userID,
		AudioPath:   userID + "/1700000000000-" + file.Name,
		TextContent: "hello world",
		CreatedAt:   time.Now().UTC(),
	}
	f.items[t.ID] = t
	return t, []types.Transcription{t}, nil
}

func (f *fakeTranscriptions) GetUserTranscriptions(_ context.Context, userID string) ([]types.Transcription, error) {
	out := make([]types.Transcription, 0)
	for _, t := range f.items {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTranscriptions) Get(_ context.Context, id string) (types.Transcription, error) {
	t, ok := f.items[id]
	if !ok {
		return types.Transcription{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeTranscriptions) DeleteTranscription(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return &services.Error{Message: "Error deleting transcription", Err: store.ErrNotFound}
	}
	delete(f.items, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTranscriptions) OpenAudio(_ context.Context, t types.Transcription) (io.ReadCloser, error) {
	data, ok := f.audio[t.AudioPath]
	if !ok {
		return nil, &services.Error{Message: "Audio file not found", Err: storage.ErrObjectNotFound}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// rowRepo serves a single transcription row to a real TranscriptionService.
type rowRepo struct {
	services.TranscriptionRepository
	row types.Transcription
}

func (r *rowRepo) Get(_ context.Context, id string) (types.Transcription, error) {
	if id != r.row.ID {
		return types.Transcription{}, store.ErrNotFound
	}
	return r.row, nil
}

// brokenAudio fails every read and counts the attempts.
type brokenAudio struct {
	gets int
}

func (b *brokenAudio) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("bucket unreachable")
}

func (b *brokenAudio) Get(context.Context, string) (io.ReadCloser, error) {
	b.gets++
	return nil, errors.New("bucket unreachable")
}

type fakeAdmin struct {
	auth      *fakeAuth
	deleteErr error
	deleted   []string
}

var _ AdminService = (*fakeAdmin)(nil)

func (f *fakeAdmin) GetAllUsers(context.Context) ([]types.Profile, error) {
	out := make([]types.Profile, 0, len(f.auth.profiles))
	for _, p := range f.auth.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeAdmin) GetAllTranscriptions(context.Context) ([]types.AnnotatedTranscription, error) {
	return []types.AnnotatedTranscription{{
		Transcription: types.Transcription{ID: "t1", UserID: "u1"},
		OwnerEmail:    "a@x.com",
	}}, nil
}

func (f *fakeAdmin) UpdateUserRole(_ context.Context, userID string, role types.Role) (types.Profile, error) {
	if !role.Valid() {
		return types.Profile{}, services.ErrInvalidRole
	}
	profile, ok := f.auth.profiles[userID]
	if !ok {
		return types.Profile{}, &services.Error{Message: "Error updating user role", Err: store.ErrNotFound}
	}
	profile.Role = role
	f.auth.profiles[userID] = profile
	return profile, nil
}

func (f *fakeAdmin) ToggleUserRole(ctx context.Context, userID string) (types.Profile, error) {
	return f.UpdateUserRole(ctx, userID, f.auth.profiles[userID].Role.Toggle())
}

func (f *fakeAdmin) DeleteUser(_ context.Context, userID string) error {
	if f.deleteErr != nil {
		return &services.Error{Message: "Error deleting user", Err: f.deleteErr}
	}
	f.deleted = append(f.deleted, userID)
	delete(f.auth.profiles, userID)
	return nil
}

var errDatabaseDown = errors.New("database down")
