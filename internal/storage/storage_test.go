package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxscribe/apiserver/config"
)

type memBackend struct {
	objects map[string][]byte
}

func (m *memBackend) EnsureBucket(context.Context) error { return nil }

func (m *memBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, objectNotFound(key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memBackend) Bucket() string { return "audio-files" }

func TestAudioKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "memo.mp3", "u1/1700000000123-memo.mp3"},
		{"strips directories", "../../etc/memo.wav", "u1/1700000000123-memo.wav"},
		{"windows path", `C:\Users\me\memo.m4a`, "u1/1700000000123-memo.m4a"},
		{"empty", "  ", "u1/1700000000123-audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AudioKey("u1", at, tt.filename))
		})
	}
}

func TestStorageDelegatesToBackend(t *testing.T) {
	backend := &memBackend{objects: map[string][]byte{}}
	s := NewStorage(backend)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u1/1-a.mp3", bytes.NewReader([]byte("abc")), 3, "audio/mpeg"))
	rc, err := s.Get(ctx, "u1/1-a.mp3")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	require.NoError(t, s.Delete(ctx, "u1/1-a.mp3"))
	assert.Empty(t, backend.objects)
	assert.Equal(t, "audio-files", s.Bucket())

	_, err = s.Get(ctx, "u1/1-a.mp3")
	require.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorContains(t, err, "u1/1-a.mp3")
}

func TestMinioMissing(t *testing.T) {
	assert.True(t, minioMissing(minio.ErrorResponse{Code: "NoSuchKey", Key: "u1/1-a.mp3"}))
	assert.False(t, minioMissing(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, minioMissing(context.DeadlineExceeded))
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "minio", Minio: config.MinioConfig{Endpoint: "localhost:9000", Bucket: "audio-files"}})
	require.ErrorContains(t, err, "access key")

	_, err = New(context.Background(), config.StorageConfig{Backend: "s3", S3: config.S3Config{AccessKey: "a", SecretKey: "b"}})
	require.ErrorContains(t, err, "s3 bucket is required")

	_, err = New(context.Background(), config.StorageConfig{Backend: "ftp"})
	require.ErrorContains(t, err, "unknown storage backend")
}
