// Package threads manages the conversation threads of one profile.
package threads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/finbot/internal/models"
	"github.com/xaenox/finbot/internal/upload"
)

var ErrThreadNotFound = errors.New("thread not found")

const (
	listKey         = "threads"
	defaultListTTL  = 5 * time.Minute
	cleanupInterval = 10 * time.Minute
)

// Backend is the thread part of the API client.
type Backend interface {
	ListThreads(ctx context.Context) ([]models.Thread, error)
	CreateThread(ctx context.Context) (string, error)
	DeleteThread(ctx context.Context, threadID string) error
	ThreadMessages(ctx context.Context, threadID string) ([]models.Message, error)
}

// Uploads is the per-thread document state owned by the upload machine.
type Uploads interface {
	LoadExisting(ctx context.Context, threadID string) (upload.State, error)
	Drop(threadID string)
}

// Transcripts is the per-thread message cache.
type Transcripts interface {
	Replace(threadID string, messages []models.Message)
	Drop(threadID string)
}

// Manager creates, selects and deletes threads. The server's thread list is
// cached for a short TTL and refreshed on demand.
type Manager struct {
	backend     Backend
	uploads     Uploads
	transcripts Transcripts
	list        *cache.Cache
	logger      *zap.Logger

	mu     sync.Mutex
	active string
	modes  map[string]models.ViewMode
}

func NewManager(backend Backend, uploads Uploads, transcripts Transcripts, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = defaultListTTL
	}
	return &Manager{
		backend:     backend,
		uploads:     uploads,
		transcripts: transcripts,
		list:        cache.New(ttl, cleanupInterval),
		logger:      logger.With(zap.String("component", "threads")),
		modes:       make(map[string]models.ViewMode),
	}
}

// List returns the thread list, from cache unless refresh is set or the
// cached copy expired.
func (m *Manager) List(ctx context.Context, refresh bool) ([]models.Thread, error) {
	if !refresh {
		if cached, ok := m.list.Get(listKey); ok {
			return append([]models.Thread(nil), cached.([]models.Thread)...), nil
		}
	}
	threads, err := m.backend.ListThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	m.list.SetDefault(listKey, threads)
	return append([]models.Thread(nil), threads...), nil
}

// Create asks the server for a new thread and makes it active.
func (m *Manager) Create(ctx context.Context) (string, error) {
	id, err := m.backend.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	m.list.Delete(listKey)

	m.mu.Lock()
	m.active = id
	m.modes[id] = models.ViewUpload
	m.mu.Unlock()

	m.logger.Info("Thread created", zap.String("thread_id", id))
	return id, nil
}

// Select makes threadID active and hydrates its documents and transcript.
// An unknown id leaves the current selection unchanged.
func (m *Manager) Select(ctx context.Context, threadID string) error {
	if _, err := m.find(ctx, threadID); err != nil {
		return err
	}

	m.mu.Lock()
	m.active = threadID
	m.modes[threadID] = models.ViewUpload
	m.mu.Unlock()

	log := m.logger.With(zap.String("thread_id", threadID))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := m.uploads.LoadExisting(gctx, threadID)
		return err
	})
	g.Go(func() error {
		msgs, err := m.backend.ThreadMessages(gctx, threadID)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		m.transcripts.Replace(threadID, msgs)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Warn("Thread hydration incomplete", zap.Error(err))
		return fmt.Errorf("hydrate thread %s: %w", threadID, err)
	}
	log.Debug("Thread selected")
	return nil
}

// find looks threadID up in the cached list, refreshing once on a miss.
func (m *Manager) find(ctx context.Context, threadID string) (models.Thread, error) {
	for _, refresh := range []bool{false, true} {
		threads, err := m.List(ctx, refresh)
		if err != nil {
			return models.Thread{}, err
		}
		for _, t := range threads {
			if t.ID == threadID {
				return t, nil
			}
		}
	}
	return models.Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
}

// Delete removes threadID on the server and then every piece of local
// state derived from it. On failure nothing local changes.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	if err := m.backend.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}

	if cached, ok := m.list.Get(listKey); ok {
		threads := cached.([]models.Thread)
		kept := make([]models.Thread, 0, len(threads))
		for _, t := range threads {
			if t.ID != threadID {
				kept = append(kept, t)
			}
		}
		m.list.SetDefault(listKey, kept)
	}
	m.uploads.Drop(threadID)
	m.transcripts.Drop(threadID)

	m.mu.Lock()
	delete(m.modes, threadID)
	if m.active == threadID {
		m.active = ""
	}
	m.mu.Unlock()

	m.logger.Info("Thread deleted", zap.String("thread_id", threadID))
	return nil
}

// Active returns the active thread id, or "" when none is selected.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) SetViewMode(threadID string, mode models.ViewMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[threadID] = mode
}

func (m *Manager) ViewMode(threadID string) models.ViewMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode, ok := m.modes[threadID]; ok {
		return mode
	}
	return models.ViewUpload
}
