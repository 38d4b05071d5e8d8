package chat

import (
	"errors"
	"sync"

	"github.com/FabG/proxy-uc-genie/internal/models"
)

// ErrConversationNotFound is returned for lookups, continuations, and deletes
// against an id that was never created or has been deleted.
var ErrConversationNotFound = errors.New("conversation not found")

// Store is the in-memory conversation table. The outer lock guards the map;
// each entry carries its own mutex so continuations against one conversation
// are serialized while distinct conversations proceed fully in parallel.
//
// The table is unbounded and conversations never expire; restarts drop all
// state.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	conv *models.Conversation
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Create registers a freshly started conversation. The id is caller-assigned
// and assumed unique (uuid).
func (s *Store) Create(conv *models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conv.ID] = &entry{conv: conv}
}

// Get returns a copy of the conversation.
func (s *Store) Get(id string) (*models.Conversation, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrConversationNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Clone(), nil
}

// WithConversation runs fn while holding the conversation's exclusive lock.
// The whole continuation turn (read context, call the backend, append the
// pair) runs under this lock so concurrent continuations against one id
// cannot interleave or drop a turn.
func (s *Store) WithConversation(id string, fn func(conv *models.Conversation) error) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return ErrConversationNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.conv)
}

// Delete removes the conversation immediately. A continuation already holding
// the entry lock finishes against the detached conversation; every later
// lookup reports not found.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.entries, id)
	return nil
}

// Len reports the number of active conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
