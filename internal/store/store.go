// Package store holds the authoritative in-memory view of observed download
// tasks. All mutation goes through Update/Remove so every state change can
// be observed from one subscription point and the durable cache stays
// consistent with the map.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"downbeat/internal/domain"
	"downbeat/internal/repository"
)

type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event notifies subscribers of one entry change. Entry is a snapshot.
type Event struct {
	Type  EventType
	Entry domain.TaskEntry
}

type Store struct {
	mu         sync.Mutex
	entries    map[string]*domain.TaskEntry
	byExternal map[string]string

	cache  repository.StatusCache
	logger *logrus.Logger

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func New(cache repository.StatusCache, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		entries:    make(map[string]*domain.TaskEntry),
		byExternal: make(map[string]string),
		cache:      cache,
		logger:     logger,
		subs:       make(map[int]chan Event),
	}
}

// Add creates an entry for a new observed job and returns its internal id.
func (s *Store) Add(ctx context.Context, entry domain.TaskEntry) domain.TaskEntry {
	now := time.Now()
	entry.InternalID = uuid.NewString()
	entry.CreatedAt = now
	entry.LastUpdatedAt = now
	if entry.Status == "" {
		entry.Status = domain.StatusQueued
	}

	s.mu.Lock()
	s.entries[entry.InternalID] = &entry
	if entry.ExternalTaskID != "" {
		s.byExternal[entry.ExternalTaskID] = entry.InternalID
	}
	snapshot := entry
	s.mu.Unlock()

	s.emit(Event{Type: EventAdded, Entry: snapshot})
	return snapshot
}

// Get returns a snapshot of one entry.
func (s *Store) Get(internalID string) (domain.TaskEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[internalID]
	if !ok {
		return domain.TaskEntry{}, false
	}
	return *entry, true
}

// FindByExternal returns the entry tracking the given server task id.
func (s *Store) FindByExternal(externalTaskID string) (domain.TaskEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternal[externalTaskID]
	if !ok {
		return domain.TaskEntry{}, false
	}
	entry, ok := s.entries[id]
	if !ok {
		return domain.TaskEntry{}, false
	}
	return *entry, true
}

// Update applies a mutation to one entry. ExternalTaskID is write-once:
// attempts to change it once set are discarded. The durable cache slot is
// rewritten after every accepted update.
func (s *Store) Update(ctx context.Context, internalID string, mutate func(*domain.TaskEntry)) (domain.TaskEntry, bool) {
	s.mu.Lock()
	entry, ok := s.entries[internalID]
	if !ok {
		s.mu.Unlock()
		return domain.TaskEntry{}, false
	}

	prevExternal := entry.ExternalTaskID
	mutate(entry)
	if prevExternal != "" && entry.ExternalTaskID != prevExternal {
		entry.ExternalTaskID = prevExternal
	}
	if prevExternal == "" && entry.ExternalTaskID != "" {
		s.byExternal[entry.ExternalTaskID] = internalID
	}
	entry.LastUpdatedAt = time.Now()
	snapshot := *entry
	s.mu.Unlock()

	if s.cache != nil && snapshot.ExternalTaskID != "" && snapshot.LastUpdate != nil {
		if err := s.cache.Put(ctx, snapshot.ExternalTaskID, *snapshot.LastUpdate); err != nil {
			s.logger.WithField("internal_id", internalID).Warnf("write status cache: %v", err)
		}
	}

	s.emit(Event{Type: EventUpdated, Entry: snapshot})
	return snapshot, true
}

// Remove evicts an entry and drops its durable cache slot. Removing an
// unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, internalID string) bool {
	s.mu.Lock()
	entry, ok := s.entries[internalID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, internalID)
	if entry.ExternalTaskID != "" {
		delete(s.byExternal, entry.ExternalTaskID)
	}
	snapshot := *entry
	s.mu.Unlock()

	if s.cache != nil && snapshot.ExternalTaskID != "" {
		if err := s.cache.Delete(ctx, snapshot.ExternalTaskID); err != nil {
			s.logger.WithField("internal_id", internalID).Warnf("drop status cache slot: %v", err)
		}
	}

	s.emit(Event{Type: EventRemoved, Entry: snapshot})
	return true
}

// List returns snapshots of all entries, oldest first.
func (s *Store) List() []domain.TaskEntry {
	s.mu.Lock()
	entries := make([]domain.TaskEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].InternalID < entries[j].InternalID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

// Subscribe registers an event channel. The returned func unsubscribes.
// Delivery is best effort: a slow subscriber drops events instead of
// blocking mutation.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[id] = ch
	s.subMu.Unlock()

	unsubscribe := func() {
		s.subMu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
		s.subMu.Unlock()
	}
	return ch, unsubscribe
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
