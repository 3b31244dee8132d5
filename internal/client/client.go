// Package client is the HTTP SDK used by the CLI. It owns the current-user
// stream and the local session cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxscribe/apiserver/internal/gate"
	"github.com/voxscribe/apiserver/internal/handlers"
	"github.com/voxscribe/apiserver/internal/session"
	"github.com/voxscribe/apiserver/types"
)

// MaxAudioSize mirrors the server upload limit so oversized files never leave the machine.
const MaxAudioSize = 25 << 20

// ErrFileTooLarge is returned by Upload before any request is sent.
var ErrFileTooLarge = errors.New("File size exceeds 25MB limit")

// HTTPDoer describes the HTTP client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks to the voxscribe API on behalf of one signed-in user.
type Client struct {
	baseURL string
	http    HTTPDoer
	store   SessionStore
	stream  *session.Stream
	now     func() time.Time
}

// New loads the cached session from store and seeds the current-user stream
// with it. An expired cached session starts signed out. A nil store keeps the
// session in memory; a nil doer uses http.DefaultClient.
func New(baseURL string, store SessionStore, doer HTTPDoer) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("server URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if store == nil {
		store = &memoryStore{}
	}
	if doer == nil {
		doer = http.DefaultClient
	}

	c := &Client{baseURL: base, http: doer, store: store, now: time.Now}

	cached, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !cached.ExpiresAt.IsZero() && !c.now().Before(cached.ExpiresAt) {
		cached = types.Session{}
		_ = store.Clear()
	}
	c.stream = session.NewStream(cached)
	return c, nil
}

// Sessions is the current-user stream.
func (c *Client) Sessions() *session.Stream {
	return c.stream
}

// Close ends every subscription to the current-user stream.
func (c *Client) Close() {
	c.stream.Close()
}

// RequireAuthenticated returns the current session or a *gate.DeniedError.
func (c *Client) RequireAuthenticated() (types.Session, error) {
	decision := gate.Authenticated(c.stream.Latest)
	if err := decision.Err(); err != nil {
		return types.Session{}, err
	}
	sess, _ := c.stream.Latest()
	return sess, nil
}

// RequireAdmin asks the server once whether the caller is an admin.
func (c *Client) RequireAdmin(ctx context.Context) error {
	if _, err := c.RequireAuthenticated(); err != nil {
		return err
	}
	return gate.Admin(ctx, c.IsAdmin).Err()
}

func (c *Client) SignUp(ctx context.Context, email, password string) (types.Profile, error) {
	var resp handlers.AuthResponse
	body := handlers.CredentialsRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &resp); err != nil {
		return types.Profile{}, err
	}
	if err := c.setSession(sessionFrom(resp)); err != nil {
		return types.Profile{}, err
	}
	if resp.Profile == nil {
		return types.Profile{}, nil
	}
	return *resp.Profile, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (types.User, error) {
	var resp handlers.AuthResponse
	body := handlers.CredentialsRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return types.User{}, err
	}
	if err := c.setSession(sessionFrom(resp)); err != nil {
		return types.User{}, err
	}
	return resp.User, nil
}

// SignOut revokes the session on the server and forgets it locally. The local
// session is dropped even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if clearErr := c.clearSession(); clearErr != nil && err == nil {
		err = clearErr
	}
	if StatusOf(err) == http.StatusUnauthorized {
		return nil
	}
	return err
}

func (c *Client) CurrentUser(ctx context.Context) (types.User, error) {
	var user types.User
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user)
	return user, err
}

func (c *Client) GetProfile(ctx context.Context) (types.Profile, error) {
	var profile types.Profile
	err := c.do(ctx, http.MethodGet, "/profile", nil, &profile)
	return profile, err
}

// UpdateProfile saves the profile fields. A changed email comes back with a
// new token, which replaces the current session.
func (c *Client) UpdateProfile(ctx context.Context, update types.ProfileUpdate) (types.Profile, error) {
	var resp handlers.ProfileResponse
	if err := c.do(ctx, http.MethodPut, "/profile", update, &resp); err != nil {
		return types.Profile{}, err
	}
	if resp.Token != "" {
		refreshed := types.Session{
			Token:  resp.Token,
			UserID: resp.Profile.ID,
			Email:  resp.Profile.Email,
		}
		if resp.ExpiresAt != nil {
			refreshed.ExpiresAt = *resp.ExpiresAt
		}
		if err := c.setSession(refreshed); err != nil {
			return types.Profile{}, err
		}
	}
	return resp.Profile, nil
}

func (c *Client) UpdatePassword(ctx context.Context, current, next string) error {
	body := handlers.PasswordRequest{CurrentPassword: current, NewPassword: next}
	return c.do(ctx, http.MethodPut, "/profile/password", body, nil)
}

// DeleteAccount removes the caller's account and everything it owns.
func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/profile", nil, nil); err != nil {
		return err
	}
	return c.clearSession()
}

// IsAdmin never errors. Any failure reads as false.
func (c *Client) IsAdmin(ctx context.Context) bool {
	if _, ok := c.stream.Latest(); !ok {
		return false
	}
	var resp handlers.AdminStatusResponse
	if err := c.do(ctx, http.MethodGet, "/profile/admin", nil, &resp); err != nil {
		return false
	}
	return resp.Admin
}

func (c *Client) ListTranscriptions(ctx context.Context) ([]types.Transcription, error) {
	var items []types.Transcription
	err := c.do(ctx, http.MethodGet, "/transcriptions", nil, &items)
	return items, err
}

// Upload sends one audio file through the upload, transcribe and save workflow.
func (c *Client) Upload(ctx context.Context, filename string, size int64, r io.Reader) (handlers.UploadResponse, error) {
	if size > MaxAudioSize {
		return handlers.UploadResponse{}, ErrFileTooLarge
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return handlers.UploadResponse{}, err
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxAudioSize+1))
	if err != nil {
		return handlers.UploadResponse{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if n > MaxAudioSize {
		return handlers.UploadResponse{}, ErrFileTooLarge
	}
	if err := mw.Close(); err != nil {
		return handlers.UploadResponse{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/transcriptions", &body)
	if err != nil {
		return handlers.UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp handlers.UploadResponse
	if err := c.send(req, &resp); err != nil {
		return handlers.UploadResponse{}, err
	}
	return resp, nil
}

func (c *Client) DeleteTranscription(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/transcriptions/"+url.PathEscape(id), nil, nil)
}

// DownloadAudio copies the stored audio of a transcription into w.
func (c *Client) DownloadAudio(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/transcriptions/"+url.PathEscape(id)+"/audio", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if err := c.checkStatus(resp); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) ListUsers(ctx context.Context) ([]types.Profile, error) {
	var items []types.Profile
	err := c.do(ctx, http.MethodGet, "/admin/users", nil, &items)
	return items, err
}

func (c *Client) ListAllTranscriptions(ctx context.Context) ([]types.AnnotatedTranscription, error) {
	var items []types.AnnotatedTranscription
	err := c.do(ctx, http.MethodGet, "/admin/transcriptions", nil, &items)
	return items, err
}

func (c *Client) SetUserRole(ctx context.Context, userID string, role types.Role) (types.Profile, error) {
	var profile types.Profile
	body := handlers.RoleRequest{Role: string(role)}
	err := c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(userID)+"/role", body, &profile)
	return profile, err
}

func (c *Client) ToggleUserRole(ctx context.Context, userID string) (types.Profile, error) {
	var profile types.Profile
	err := c.do(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(userID)+"/role/toggle", nil, &profile)
	return profile, err
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) AdminDeleteTranscription(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/transcriptions/"+url.PathEscape(id), nil, nil)
}

func (c *Client) setSession(next types.Session) error {
	if err := c.store.Save(next); err != nil {
		return err
	}
	c.stream.Set(next)
	return nil
}

func (c *Client) clearSession() error {
	c.stream.Clear()
	return c.store.Clear()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if sess, ok := c.stream.Latest(); ok {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus turns a non-2xx response into an *APIError. A 401 while signed
// in means the token was revoked or expired, so the local session is dropped.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var payload handlers.ErrorResponse
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if _, ok := c.stream.Latest(); ok {
			_ = c.clearSession()
		}
	}
	return apiErr
}

func sessionFrom(resp handlers.AuthResponse) types.Session {
	return types.Session{
		Token:     resp.Token,
		UserID:    resp.User.ID,
		Email:     resp.User.Email,
		ExpiresAt: resp.ExpiresAt,
	}
}
