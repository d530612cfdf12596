package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	count     int64
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is a process-local [Store] used when no Redis server is configured.
// It is safe for concurrent use within one process but provides no
// cross-process consistency and loses all state on restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates a store that reads time through now. Tests use
// this to simulate TTL expiry without sleeping.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		now:     now,
	}
}

func (s *Memory) IncrementWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(now) {
		entry = &memoryEntry{count: 1, expiresAt: now.Add(ttl)}
		s.entries[key] = entry
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(now) {
		delete(s.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *Memory) Exists(_ context.Context, key string) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if entry.expired(now) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

func (s *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(now) || entry.expiresAt.IsZero() {
		return 0, nil
	}
	return entry.expiresAt.Sub(now), nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len reports the number of live entries. Expired entries that have not been
// touched since expiry still count; it exists for tests and introspection.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
