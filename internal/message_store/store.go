// Package message_store keeps the in-memory records of sent poll messages.
//
// Every record has its own lock. Callers that talk to the chat service about
// a record (editing it, deleting its siblings) do so through Update or
// RemoveByGym, which hold that lock for the duration of the callback, so an
// edit and the deletion of the same record never interleave.
package message_store

import (
	"errors"
	"sort"
	"sync"

	"teleraid/internal/models"
)

// ErrNotFound is returned for ids that have no live record.
var ErrNotFound = errors.New("message record not found")

type entry struct {
	mu   sync.Mutex
	rec  models.MessageRecord
	gone bool
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[int]*entry
	removed map[int]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[int]*entry),
		removed: make(map[int]struct{}),
	}
}

// Put adds rec, replacing any live record with the same id.
func (s *Store) Put(rec models.MessageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[rec.ID]; ok {
		old.mu.Lock()
		old.gone = true
		old.mu.Unlock()
	}
	delete(s.removed, rec.ID)
	s.entries[rec.ID] = &entry{rec: rec.Clone()}
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id int) (models.MessageRecord, bool) {
	e := s.lookup(id)
	if e == nil {
		return models.MessageRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return models.MessageRecord{}, false
	}
	return e.rec.Clone(), true
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Vote folds v into the record with the given id. When no record exists,
// seed is called to build a minimal one. Votes for records already removed
// by RemoveByGym are dropped and reported as ErrNotFound.
func (s *Store) Vote(id int, v models.Vote, seed func() models.MessageRecord) (created bool, err error) {
	s.mu.Lock()
	if _, ok := s.removed[id]; ok {
		s.mu.Unlock()
		return false, ErrNotFound
	}
	e, ok := s.entries[id]
	if !ok {
		rec := seed()
		rec.ID = id
		e = &entry{rec: rec}
		s.entries[id] = e
		created = true
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return false, ErrNotFound
	}
	e.rec.Poll.Apply(v)
	return created, nil
}

// Update runs fn on the live record with the given id while holding its
// lock. Changes fn makes to the record are kept even when fn returns an
// error.
func (s *Store) Update(id int, fn func(rec *models.MessageRecord) error) error {
	e := s.lookup(id)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return ErrNotFound
	}
	return fn(&e.rec)
}

// RemoveByGym removes every record that references gymID. fn is called for
// each removed record while its lock is held, before the lock is released.
// Records are removed whatever fn does.
func (s *Store) RemoveByGym(gymID string, fn func(rec models.MessageRecord)) int {
	if gymID == "" {
		return 0
	}

	s.mu.Lock()
	var victims []*entry
	for id, e := range s.entries {
		// GymID is set at creation and never changes, so reading it
		// without the entry lock is safe under s.mu.
		if e.rec.GymID == gymID {
			victims = append(victims, e)
			delete(s.entries, id)
			s.removed[id] = struct{}{}
		}
	}
	s.mu.Unlock()

	sort.Slice(victims, func(i, j int) bool { return victims[i].rec.ID < victims[j].rec.ID })
	for _, e := range victims {
		e.mu.Lock()
		e.gone = true
		if fn != nil {
			fn(e.rec.Clone())
		}
		e.mu.Unlock()
	}
	return len(victims)
}

// Snapshot returns copies of all live records ordered by id.
func (s *Store) Snapshot() []models.MessageRecord {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]models.MessageRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.gone {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) lookup(id int) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id]
}
