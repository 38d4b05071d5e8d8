package policy

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// UseCase is a registered tenant identifier with its human-readable
// description. The identifier is an opaque access-control key, nothing more.
type UseCase struct {
	ID          string
	Description string
}

// Snapshot is an immutable view of the access-control policy. A Snapshot is
// never mutated after construction; reload builds a fresh one and swaps it in.
type Snapshot struct {
	useCases []UseCase
	index    map[string]UseCase

	CaseSensitive bool
	RequireHeader bool
}

// NewSnapshot builds a snapshot from the configured allowlist. Duplicate
// identifiers (after case folding, when matching is case-insensitive) are
// rejected so that a lookup always resolves to a single registration.
func NewSnapshot(useCases []UseCase, caseSensitive, requireHeader bool) (*Snapshot, error) {
	s := &Snapshot{
		useCases:      make([]UseCase, 0, len(useCases)),
		index:         make(map[string]UseCase, len(useCases)),
		CaseSensitive: caseSensitive,
		RequireHeader: requireHeader,
	}

	for _, uc := range useCases {
		id := strings.TrimSpace(uc.ID)
		if id == "" {
			continue
		}
		key := s.fold(id)
		if _, exists := s.index[key]; exists {
			return nil, fmt.Errorf("policy: duplicate use case id %q", id)
		}
		entry := UseCase{ID: id, Description: uc.Description}
		if entry.Description == "" {
			entry.Description = fmt.Sprintf("Use case %s", id)
		}
		s.index[key] = entry
		s.useCases = append(s.useCases, entry)
	}

	return s, nil
}

// Lookup resolves a presented identifier against the allowlist using the
// snapshot's matching mode.
func (s *Snapshot) Lookup(id string) (UseCase, bool) {
	uc, ok := s.index[s.fold(id)]
	return uc, ok
}

// AllowedIDs returns the allowlist in configured order.
func (s *Snapshot) AllowedIDs() []string {
	ids := make([]string, len(s.useCases))
	for i, uc := range s.useCases {
		ids[i] = uc.ID
	}
	return ids
}

// Descriptions returns the per-identifier descriptions keyed by id.
func (s *Snapshot) Descriptions() map[string]string {
	out := make(map[string]string, len(s.useCases))
	for _, uc := range s.useCases {
		out[uc.ID] = uc.Description
	}
	return out
}

func (s *Snapshot) fold(id string) string {
	if s.CaseSensitive {
		return id
	}
	return strings.ToLower(id)
}

// Loader produces a fresh Snapshot from the policy source.
type Loader interface {
	Load() (*Snapshot, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func() (*Snapshot, error)

func (f LoaderFunc) Load() (*Snapshot, error) { return f() }

// Store holds the active Snapshot behind an atomic pointer. Readers always
// observe a complete snapshot; Reload swaps the pointer in one step so a
// half-applied policy is impossible.
type Store struct {
	current atomic.Pointer[Snapshot]
	loader  Loader
}

// NewStore loads the initial snapshot from loader.
func NewStore(loader Loader) (*Store, error) {
	snap, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("policy: initial load: %w", err)
	}
	s := &Store{loader: loader}
	s.current.Store(snap)
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Reload replaces the active snapshot with a freshly loaded one. On load
// failure the previous snapshot stays active.
func (s *Store) Reload() (*Snapshot, error) {
	snap, err := s.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("policy: reload: %w", err)
	}
	s.current.Store(snap)
	return snap, nil
}
