package workspace

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/session"
	"github.com/xaenox/finbot/internal/storage"
)

// Options configure every workspace a Registry builds.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeouts   api.Timeouts
	ThreadTTL  time.Duration
}

type entry struct {
	once sync.Once
	ws   *Workspace
}

// Registry hands out the single Workspace of each profile, building it on
// first request.
type Registry struct {
	store  storage.Storage
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(store storage.Storage, opts Options, logger *zap.Logger) *Registry {
	return &Registry{
		store:   store,
		opts:    opts,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

func (r *Registry) Get(ctx context.Context, profile string) *Workspace {
	r.mu.Lock()
	e, ok := r.entries[profile]
	if !ok {
		e = &entry{}
		r.entries[profile] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		identity := session.Load(ctx, r.store, profile, r.logger)
		e.ws = newWorkspace(identity, r.opts, r.logger)
	})
	return e.ws
}

// Len reports how many profiles have a workspace.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
