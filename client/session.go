package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Session is what a successful login leaves behind.
type Session struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     Role   `json:"rol"`
}

// LoggedIn reports whether the session holds a token.
func (s Session) LoggedIn() bool {
	return s.Token != ""
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// SessionStore keeps the current session between calls.
// Load returns an empty session when none was saved.
type SessionStore interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

// MemorySessionStore keeps the session for the life of the process.
type MemorySessionStore struct {
	mu      sync.RWMutex
	session Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (ms *MemorySessionStore) Load() (Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.session, nil
}

func (ms *MemorySessionStore) Save(s Session) error {
	ms.mu.Lock()
	ms.session = s
	ms.mu.Unlock()
	return nil
}

func (ms *MemorySessionStore) Clear() error {
	return ms.Save(Session{})
}

// FileSessionStore persists the session as a JSON file so it survives
// restarts. Concurrent writers are not coordinated: the last save wins.
type FileSessionStore struct {
	path string
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

func (fs *FileSessionStore) Load() (Session, error) {
	var s Session
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read session file: %w", err)
	}
	if err = json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session file: %w", err)
	}
	return s, nil
}

// Save writes to a temporary file first then renames it
// so a reader never sees a partially written session.
func (fs *FileSessionStore) Save(s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session folder: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fs.path), filepath.Base(fs.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close session file: %w", err)
	}
	return os.Rename(tmp.Name(), fs.path)
}

// Clear removes the session file. A missing file is not an error.
func (fs *FileSessionStore) Clear() error {
	if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
