package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxscribe/apiserver/types"
)

// SessionStore persists the signed-in session between CLI invocations.
type SessionStore interface {
	Load() (types.Session, error)
	Save(types.Session) error
	Clear() error
}

// FileSessionStore keeps the session as JSON on disk.
type FileSessionStore struct {
	path string
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// DefaultSessionPath is voxscribe/session.json under the user config dir.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "voxscribe", "session.json"), nil
}

// Load reads the cached session. A missing file is a signed-out session.
func (s *FileSessionStore) Load() (types.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Session{}, nil
		}
		return types.Session{}, fmt.Errorf("read session: %w", err)
	}

	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return types.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// Save writes the session readable by the owner only.
func (s *FileSessionStore) Save(sess types.Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("ensure session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *FileSessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// memoryStore is used when no SessionStore is given.
type memoryStore struct {
	sess types.Session
}

func (m *memoryStore) Load() (types.Session, error) { return m.sess, nil }
func (m *memoryStore) Save(s types.Session) error   { m.sess = s; return nil }
func (m *memoryStore) Clear() error                 { m.sess = types.Session{}; return nil }
