// Package raid_store keeps the active raids keyed by gym id.
//
// The lifecycle scheduler is the only writer; the mutex lets the admin API
// read snapshots concurrently.
package raid_store

import (
	"sort"
	"sync"
	"time"

	"teleraid/internal/models"
)

// Filter selects which raids trigger a notification.
type Filter struct {
	Levels  map[int]struct{}
	Pokemon map[int]struct{}
}

// NewFilter builds a Filter from id lists.
func NewFilter(levels, pokemon []int) Filter {
	f := Filter{Levels: make(map[int]struct{}, len(levels)), Pokemon: make(map[int]struct{}, len(pokemon))}
	for _, l := range levels {
		f.Levels[l] = struct{}{}
	}
	for _, p := range pokemon {
		f.Pokemon[p] = struct{}{}
	}
	return f
}

// Match reports whether r passes the level and pokemon filters.
func (f Filter) Match(r models.Raid) bool {
	if _, ok := f.Levels[r.Level]; !ok {
		return false
	}
	_, ok := f.Pokemon[r.PokemonID]
	return ok
}

// Store holds active raids.
type Store struct {
	mu    sync.RWMutex
	raids map[string]*models.Raid
}

// New returns an empty Store.
func New() *Store {
	return &Store{raids: make(map[string]*models.Raid)}
}

// Add inserts r unless its gym is already tracked or it has already ended
// at now. A raid removed by Expire always has ended, so a late duplicate of
// it is never re-added. Reports whether r was inserted.
func (s *Store) Add(r models.Raid, now time.Time) bool {
	if r.Expired(now) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raids[r.GymID]; ok {
		return false
	}
	r.NotifiedBattle = false
	s.raids[r.GymID] = &r
	return true
}

// Expire removes and returns every raid that has ended at now, ordered by
// gym id.
func (s *Store) Expire(now time.Time) []models.Raid {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Raid
	for id, r := range s.raids {
		if r.Expired(now) {
			out = append(out, *r)
			delete(s.raids, id)
		}
	}
	sortRaids(out)
	return out
}

// Due returns raids that match f, have started at now and were not
// notified yet, ordered by gym id.
func (s *Store) Due(now time.Time, f Filter) []models.Raid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Raid
	for _, r := range s.raids {
		if r.NotifiedBattle || !f.Match(*r) || !r.Started(now) {
			continue
		}
		out = append(out, *r)
	}
	sortRaids(out)
	return out
}

// MarkNotified flips the raid's notified flag. It reports false when the gym
// is not tracked or the flag was already set.
func (s *Store) MarkNotified(gymID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.raids[gymID]
	if !ok || r.NotifiedBattle {
		return false
	}
	r.NotifiedBattle = true
	return true
}

// Get returns a copy of the raid at gymID.
func (s *Store) Get(gymID string) (models.Raid, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.raids[gymID]
	if !ok {
		return models.Raid{}, false
	}
	return *r, true
}

// Len returns the number of tracked raids.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.raids)
}

// Snapshot returns copies of all raids ordered by gym id.
func (s *Store) Snapshot() []models.Raid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Raid, 0, len(s.raids))
	for _, r := range s.raids {
		out = append(out, *r)
	}
	sortRaids(out)
	return out
}

func sortRaids(rs []models.Raid) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].GymID < rs[j].GymID })
}
