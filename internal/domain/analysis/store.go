package analysis

import (
	"sync"

	"github.com/ehr/cdastats/internal/platform/ccda"
)

// Store holds the parsed documents in insertion order. Single appends and
// whole-store replacement are serialized; readers always see a complete
// state.
type Store struct {
	mu   sync.RWMutex
	docs []*ccda.Document
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Append adds one document at the end.
func (s *Store) Append(doc *ccda.Document) {
	s.mu.Lock()
	s.docs = append(s.docs, doc)
	s.mu.Unlock()
}

// Replace swaps the whole contents for docs.
func (s *Store) Replace(docs []*ccda.Document) {
	next := make([]*ccda.Document, len(docs))
	copy(next, docs)

	s.mu.Lock()
	s.docs = next
	s.mu.Unlock()
}

// Snapshot returns the current documents. The slice is a copy; the
// documents themselves are frozen and must not be modified.
func (s *Store) Snapshot() []*ccda.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ccda.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	s.docs = nil
	s.mu.Unlock()
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
