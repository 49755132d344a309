package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"consoleauth/internal/session/models"
	"consoleauth/pkg/platform/sentinel"
)

const sessionFileName = "session.json"

// fileDocument is the on-disk layout.
type fileDocument struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// FileStore persists credentials as a JSON document readable only by the
// current user. Writes go through a temp file and rename so a crash never
// leaves a half-written session behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates dir (0700) if needed and stores the session in
// dir/session.json.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("token directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token directory %s: %w", dir, err)
	}
	return &FileStore{path: filepath.Join(dir, sessionFileName)}, nil
}

// DefaultDir returns $CONSOLEAUTH_HOME or ~/.consoleauth.
func DefaultDir() (string, error) {
	if home := os.Getenv("CONSOLEAUTH_HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".consoleauth"), nil
}

// Path reports where the session document lives.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) AccessToken(_ context.Context) (string, error) {
	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc.AccessToken, nil
}

func (s *FileStore) SetAccessToken(_ context.Context, token string) error {
	return s.update(func(doc *fileDocument) { doc.AccessToken = token })
}

func (s *FileStore) RemoveAccessToken(ctx context.Context) error {
	return s.SetAccessToken(ctx, "")
}

func (s *FileStore) RefreshToken(_ context.Context) (string, error) {
	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc.RefreshToken, nil
}

func (s *FileStore) SetRefreshToken(_ context.Context, token string) error {
	return s.update(func(doc *fileDocument) { doc.RefreshToken = token })
}

func (s *FileStore) RemoveRefreshToken(ctx context.Context) error {
	return s.SetRefreshToken(ctx, "")
}

func (s *FileStore) User(_ context.Context) (*models.User, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.User, nil
}

func (s *FileStore) SetUser(_ context.Context, user *models.User) error {
	return s.update(func(doc *fileDocument) { doc.User = user.Clone() })
}

func (s *FileStore) RemoveUser(ctx context.Context) error {
	return s.SetUser(ctx, nil)
}

// Clear deletes the session document. A missing document is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *FileStore) read() (*fileDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *FileStore) readLocked() (*fileDocument, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode session file: %w: %w", sentinel.ErrMalformed, err)
	}
	return &doc, nil
}

func (s *FileStore) update(mutate func(doc *fileDocument)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		// A corrupt document is replaced rather than blocking new credentials.
		if !errors.Is(err, sentinel.ErrMalformed) {
			return err
		}
		doc = &fileDocument{}
	}
	mutate(doc)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
