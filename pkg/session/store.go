// Package session persists opaque authentication material between runs. The
// bridge imposes no schema on the blob beyond "whatever the remote
// application's registration routine returned"; validity is decided only by
// whether the remote application accepts it on restore.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrNotFound is returned when no session is stored for a client.
var ErrNotFound = errors.New("no stored session")

var clientIDPattern = regexp.MustCompile(`^[-_\w]+$`)

// ValidateClientID rejects identifiers that cannot be used as storage keys.
func ValidateClientID(id string) error {
	if id == "" {
		return nil
	}
	if !clientIDPattern.MatchString(id) {
		return fmt.Errorf("invalid client id %q: only alphanumerics, underscores and hyphens are allowed", id)
	}
	return nil
}

// Store saves and restores opaque session blobs keyed by client identifier.
type Store interface {
	Save(ctx context.Context, clientID string, blob []byte) error
	Restore(ctx context.Context, clientID string) ([]byte, error)
	Clear(ctx context.Context, clientID string) error
}

// FileStore keeps one blob file per client under a base directory.
type FileStore struct {
	Base string
}

func NewFileStore(base string) *FileStore {
	if base == "" {
		base = "./.wabridge_auth/"
	}
	return &FileStore{Base: base}
}

func (s *FileStore) path(clientID string) string {
	name := "session"
	if clientID != "" {
		name = "session-" + clientID
	}
	return filepath.Join(s.Base, name+".bin")
}

func (s *FileStore) Save(_ context.Context, clientID string, blob []byte) error {
	if err := ValidateClientID(clientID); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Base, 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path(clientID), blob, 0600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *FileStore) Restore(_ context.Context, clientID string) ([]byte, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(clientID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return data, nil
}

func (s *FileStore) Clear(_ context.Context, clientID string) error {
	if err := ValidateClientID(clientID); err != nil {
		return err
	}
	if err := os.Remove(s.path(clientID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Memory is an in-process Store for tests.
type Memory struct {
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Save(_ context.Context, clientID string, blob []byte) error {
	m.blobs[clientID] = append([]byte(nil), blob...)
	return nil
}

func (m *Memory) Restore(_ context.Context, clientID string) ([]byte, error) {
	blob, ok := m.blobs[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	return blob, nil
}

func (m *Memory) Clear(_ context.Context, clientID string) error {
	delete(m.blobs, clientID)
	return nil
}
