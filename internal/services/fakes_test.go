package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/voxscribe/apiserver/internal/mq"
	"github.com/voxscribe/apiserver/internal/storage"
	"github.com/voxscribe/apiserver/internal/store"
	"github.com/voxscribe/apiserver/internal/transcribe"
	"github.com/voxscribe/apiserver/types"
)

func strp(s string) *string { return &s }

// callLog records the order in which fakes are invoked.
type callLog struct {
	calls []string
}

func (l *callLog) add(call string) {
	if l != nil {
		l.calls = append(l.calls, call)
	}
}

type fakeAccounts struct {
	users     map[string]types.User
	createErr error
	deleteErr error
	log       *callLog
}

var _ AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts(log *callLog) *fakeAccounts {
	return &fakeAccounts{users: map[string]types.User{}, log: log}
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeAccounts) Create(ctx context.Context, user types.User) (types.User, error) {
	f.log.add("accounts.Create")
	if f.createErr != nil {
		return types.User{}, f.createErr
	}
	if _, err := f.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrConflict
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id, passwordHash string) error {
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	f.users[id] = user
	return nil
}

func (f *fakeAccounts) ChangeEmail(_ context.Context, id, email string) error {
	f.log.add("accounts.ChangeEmail")
	for otherID, other := range f.users {
		if otherID != id && strings.EqualFold(other.Email, email) {
			return store.ErrConflict
		}
	}
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Email = email
	f.users[id] = user
	return nil
}

func (f *fakeAccounts) DeleteUser(_ context.Context, id string) error {
	f.log.add("accounts.DeleteUser")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

type fakeProfiles struct {
	profiles   map[string]types.Profile
	createErr  error
	listErr    error
	getRoleErr error
	deleteErr  error
	log        *callLog
}

var _ ProfileRepository = (*fakeProfiles)(nil)

func newFakeProfiles(log *callLog) *fakeProfiles {
	return &fakeProfiles{profiles: map[string]types.Profile{}, log: log}
}

func (f *fakeProfiles) Get(_ context.Context, id string) (types.Profile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	return profile, nil
}

func (f *fakeProfiles) GetRole(ctx context.Context, id string) (types.Role, error) {
	if f.getRoleErr != nil {
		return "", f.getRoleErr
	}
	profile, err := f.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return profile.Role, nil
}

func (f *fakeProfiles) List(context.Context) ([]types.Profile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.Profile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeProfiles) Create(_ context.Context, profile types.Profile) (types.Profile, error) {
	f.log.add("profiles.Create")
	if f.createErr != nil {
		return types.Profile{}, f.createErr
	}
	if profile.Role == "" {
		profile.Role = types.RoleUser
	}
	profile.CreatedAt = time.Now().UTC()
	profile.UpdatedAt = profile.CreatedAt
	f.profiles[profile.ID] = profile
	return profile, nil
}

func (f *fakeProfiles) Update(_ context.Context, id string, update types.ProfileUpdate) (types.Profile, error) {
	f.log.add("profiles.Update")
	profile, ok := f.profiles[id]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	if update.FirstName != nil {
		profile.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		profile.LastName = *update.LastName
	}
	if update.Email != nil {
		profile.Email = *update.Email
	}
	f.profiles[id] = profile
	return profile, nil
}

func (f *fakeProfiles) UpdateRole(_ context.Context, id string, role types.Role) (types.Profile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	profile.Role = role
	f.profiles[id] = profile
	return profile, nil
}

func (f *fakeProfiles) Delete(_ context.Context, id string) error {
	f.log.add("profiles.Delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.profiles[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.profiles, id)
	return nil
}

type fakeSessions struct {
	revoked   map[string]time.Time
	revokeErr error
}

var _ SessionRepository = (*fakeSessions)(nil)

func newFakeSessions() *fakeSessions {
	return &fakeSessions{revoked: map[string]time.Time{}}
}

func (f *fakeSessions) Revoke(_ context.Context, jti, _ string, expiresAt time.Time) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked[jti] = expiresAt
	return nil
}

func (f *fakeSessions) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := f.revoked[jti]
	return ok, nil
}

type fakeTranscriptions struct {
	items           []types.Transcription
	emails          map[string]string
	createErr       error
	listErr         error
	deleteByUserErr error
	log             *callLog
}

var _ TranscriptionRepository = (*fakeTranscriptions)(nil)

func (f *fakeTranscriptions) Get(_ context.Context, id string) (types.Transcription, error) {
	for _, t := range f.items {
		if t.ID == id {
			return t, nil
		}
	}
	return types.Transcription{}, store.ErrNotFound
}

func (f *fakeTranscriptions) Create(_ context.Context, t types.Transcription) (types.Transcription, error) {
	f.log.add("transcriptions.Create")
	if f.createErr != nil {
		return types.Transcription{}, f.createErr
	}
	t.CreatedAt = time.Now().UTC()
	f.items = append(f.items, t)
	return t, nil
}

func (f *fakeTranscriptions) ListByUser(_ context.Context, userID string) ([]types.Transcription, error) {
	f.log.add("transcriptions.ListByUser")
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.Transcription, 0)
	for i := len(f.items) - 1; i >= 0; i-- {
		if f.items[i].UserID == userID {
			out = append(out, f.items[i])
		}
	}
	return out, nil
}

func (f *fakeTranscriptions) ListAll(context.Context) ([]types.AnnotatedTranscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.AnnotatedTranscription, 0, len(f.items))
	for i := len(f.items) - 1; i >= 0; i-- {
		out = append(out, types.AnnotatedTranscription{
			Transcription: f.items[i],
			OwnerEmail:    f.emails[f.items[i].UserID],
		})
	}
	return out, nil
}

func (f *fakeTranscriptions) Delete(_ context.Context, id string) error {
	f.log.add("transcriptions.Delete")
	for i, t := range f.items {
		if t.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeTranscriptions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	f.log.add("transcriptions.DeleteByUser")
	if f.deleteByUserErr != nil {
		return 0, f.deleteByUserErr
	}
	kept := f.items[:0]
	var removed int64
	for _, t := range f.items {
		if t.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	f.items = kept
	return removed, nil
}

type fakeAudio struct {
	keys    []string
	objects map[string][]byte
	err     error
	getErr  error
	log     *callLog
}

var _ AudioStore = (*fakeAudio)(nil)

func (f *fakeAudio) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	f.log.add("audio.Put")
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeAudio) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeProvider struct {
	text string
	err  error
	log  *callLog
}

var _ transcribe.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Transcribe(context.Context, types.AudioFile) (string, error) {
	f.log.add("provider.Transcribe")
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "whisper-1" }

type fakePublisher struct {
	events []mq.Event
	err    error
}

var _ mq.Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) Emit(_ context.Context, ev mq.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) kinds() []string {
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}
