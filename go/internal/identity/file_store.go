package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileStore persists the binding to a JSON file so it survives a process
// restart, the way the web client's local storage survives a page reload.
// Write failures are logged and otherwise ignored; the in-memory copy stays
// authoritative for the running process.
type FileStore struct {
	mu      sync.Mutex
	path    string
	current *Binding
}

// NewFileStore creates a store backed by path, loading any existing binding.
func NewFileStore(path string) *FileStore {
	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("discarding unreadable identity file")
		return s
	}
	s.current = &b
	return s
}

// Bind records and persists the seat binding for a match.
func (s *FileStore) Bind(matchID, username string, seat int) error {
	mem := MemoryStore{}
	if err := mem.Bind(matchID, username, seat); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = mem.current
	s.persist()
	return nil
}

// Read returns the binding for matchID, if one exists.
func (s *FileStore) Read(matchID string) (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.MatchID != matchID {
		return Binding{}, false
	}
	return *s.current, true
}

// Clear removes the binding and deletes the backing file.
func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to remove identity file")
	}
}

func (s *FileStore) persist() {
	data, err := json.Marshal(s.current)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode identity binding")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to create identity dir")
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to write identity file")
	}
}
