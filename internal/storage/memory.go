package storage

import (
	"context"
	"sync"
	"time"
)

type sessionEntry struct {
	SessionID  string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// MemoryStorage keeps session identifiers for the life of the process only
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]sessionEntry),
	}
}

func (s *MemoryStorage) GetSessionID(ctx context.Context, profile string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[profile]
	if !exists {
		return "", ErrNotFound
	}
	entry.LastUsedAt = time.Now()
	s.sessions[profile] = entry
	return entry.SessionID, nil
}

func (s *MemoryStorage) SaveSessionID(ctx context.Context, profile, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, exists := s.sessions[profile]
	if !exists {
		entry.CreatedAt = now
	}
	entry.SessionID = sessionID
	entry.LastUsedAt = now
	s.sessions[profile] = entry
	return nil
}

func (s *MemoryStorage) DeleteSessionID(ctx context.Context, profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, profile)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
