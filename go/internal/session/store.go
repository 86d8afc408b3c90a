// Package session holds the single mutable match snapshot and the
// decode-twice wire boundary for server-pushed state documents.
package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/match"
)

// ParseError reports a failure at one of the two decoding stages of a
// server update. The store's snapshot is untouched when one is returned.
type ParseError struct {
	Stage string // "transport" or "document"
	cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("server update %s decode failed: %v", e.Stage, e.cause)
}

func (e *ParseError) Unwrap() error { return e.cause }

// DecodeDocument decodes a double-encoded match document: the transport
// payload is a JSON string whose contents are the serialized document. This
// is the single place the decode-twice contract is implemented.
func DecodeDocument(raw json.RawMessage) (*match.Snapshot, error) {
	var embedded string
	if err := json.Unmarshal(raw, &embedded); err != nil {
		return nil, &ParseError{Stage: "transport", cause: err}
	}
	return DecodeEmbedded(embedded)
}

// DecodeEmbedded decodes the inner stage: a string already extracted from the
// transport payload that carries the serialized match document.
func DecodeEmbedded(embedded string) (*match.Snapshot, error) {
	var snap match.Snapshot
	if err := json.Unmarshal([]byte(embedded), &snap); err != nil {
		return nil, &ParseError{Stage: "document", cause: err}
	}
	if err := snap.Validate(); err != nil {
		return nil, &ParseError{Stage: "document", cause: err}
	}
	return &snap, nil
}

// Store owns the authoritative local mirror of one match. It is the only
// writer of the snapshot; every other component reads through Snapshot().
// Updates apply in delivery order, wholesale, last-write-wins.
type Store struct {
	mu   sync.RWMutex
	snap *match.Snapshot
}

// NewStore creates a store seeded with the initial one-shot snapshot fetch.
func NewStore(initial *match.Snapshot) *Store {
	return &Store{snap: initial}
}

// Snapshot returns the current snapshot. Readers must not mutate it.
func (s *Store) Snapshot() *match.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ApplyServerUpdate decodes a double-encoded update and replaces the held
// snapshot. On any decode failure the previous snapshot is retained and the
// error is returned for logging; there is no partial application.
func (s *Store) ApplyServerUpdate(raw json.RawMessage) (*match.Snapshot, error) {
	snap, err := DecodeDocument(raw)
	if err != nil {
		log.Error().Err(err).Msg("retaining previous snapshot")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap != nil && s.snap.Finished() && snap.ID == s.snap.ID && !snap.Finished() {
		// A terminal outcome is immutable for the life of the snapshot.
		log.Warn().Str("match_id", snap.ID).Msg("ignoring update that would reopen a finished match")
		return s.snap, nil
	}
	s.snap = snap
	return snap, nil
}
