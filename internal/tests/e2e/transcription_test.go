//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxscribe/apiserver/config"
	"github.com/voxscribe/apiserver/internal/client"
	"github.com/voxscribe/apiserver/internal/db"
	"github.com/voxscribe/apiserver/internal/server"
	"github.com/voxscribe/apiserver/types"
)

const (
	serverPort = 18080
	mb         = 1 << 20
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	whisper := httptest.NewServer(http.HandlerFunc(fakeWhisper))
	defer whisper.Close()
	setEnv(whisper.URL + "/v1")

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestTranscriptionLifecycle(t *testing.T) {
	ctx := context.Background()

	c, err := client.New(baseURL, nil, nil)
	require.NoError(t, err)
	defer c.Close()

	email := fmt.Sprintf("e2e_%d@example.com", time.Now().UnixNano())
	profile, err := c.SignUp(ctx, email, "secret1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, profile.Role)
	userID := profile.ID

	audio := bytes.Repeat([]byte{0x42}, 5*mb)
	resp, err := c.Upload(ctx, "memo.mp3", int64(len(audio)), bytes.NewReader(audio))
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Transcription.TextContent)
	assert.True(t, strings.HasPrefix(resp.Transcription.AudioPath, userID+"/"), resp.Transcription.AudioPath)
	require.Len(t, resp.Items, 1)

	var downloaded bytes.Buffer
	n, err := c.DownloadAudio(ctx, resp.Transcription.ID, &downloaded)
	require.NoError(t, err)
	assert.EqualValues(t, len(audio), n)

	sess, _ := c.Sessions().Latest()
	status := rawUpload(t, sess.Token, "big.mp3", 30*mb)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)

	items, err := c.ListTranscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, c.DeleteTranscription(ctx, resp.Transcription.ID))
	items, err = c.ListTranscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, c.SignOut(ctx))
	_, err = c.CurrentUser(ctx)
	assert.Equal(t, http.StatusUnauthorized, client.StatusOf(err))
}

func TestAdminLifecycle(t *testing.T) {
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	admin, err := client.New(baseURL, nil, nil)
	require.NoError(t, err)
	defer admin.Close()
	adminProfile, err := admin.SignUp(ctx, fmt.Sprintf("admin_%d@example.com", stamp), "secret1")
	require.NoError(t, err)

	require.Error(t, admin.RequireAdmin(ctx))

	require.NoError(t, promoteToAdmin(adminProfile.ID))
	require.NoError(t, admin.RequireAdmin(ctx))

	member, err := client.New(baseURL, nil, nil)
	require.NoError(t, err)
	defer member.Close()
	memberProfile, err := member.SignUp(ctx, fmt.Sprintf("member_%d@example.com", stamp), "secret1")
	require.NoError(t, err)

	_, err = member.Upload(ctx, "note.wav", 4, strings.NewReader("RIFF"))
	require.NoError(t, err)

	toggled, err := admin.ToggleUserRole(ctx, memberProfile.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, toggled.Role)
	toggled, err = admin.ToggleUserRole(ctx, memberProfile.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, toggled.Role)

	all, err := admin.ListAllTranscriptions(ctx)
	require.NoError(t, err)
	found := false
	for _, item := range all {
		if item.UserID == memberProfile.ID {
			found = true
			assert.Equal(t, memberProfile.Email, item.OwnerEmail)
		}
	}
	assert.True(t, found)

	require.NoError(t, admin.DeleteUser(ctx, memberProfile.ID))
	users, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	for _, u := range users {
		assert.NotEqual(t, memberProfile.ID, u.ID)
	}
}

// fakeWhisper stands in for the OpenAI transcription endpoint.
func fakeWhisper(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/audio/transcriptions" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"text":"hello world"}`))
}

func rawUpload(t *testing.T, token, filename string, size int) int {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.Copy(part, io.LimitReader(zeroReader{}, int64(size)))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL+"/transcriptions", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		// The server may close the connection once the limit is hit.
		return http.StatusRequestEntityTooLarge
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func promoteToAdmin(userID string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	conn, err := sql.Open("postgres", db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := conn.ExecContext(ctx, `UPDATE profiles SET role = 'admin' WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return errors.New("profile not found")
	}
	return nil
}

func setEnv(whisperURL string) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "voxscribe")
	_ = os.Setenv("DB_PASSWORD", "voxscribe")
	_ = os.Setenv("DB_NAME", "voxscribe")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "audio-files")
	_ = os.Setenv("OPENAI_API_KEY", "sk-e2e")
	_ = os.Setenv("OPENAI_BASE_URL", whisperURL)
	_ = os.Setenv("MQ_BACKEND", "")
}

func waitForPostgres(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	conn, err := sql.Open("postgres", db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	httpClient := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func startServer(ctx context.Context) (*server.Server, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	srv, err := server.New(ctx, cfg, zerolog.Nop())
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
