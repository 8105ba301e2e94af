// Package session owns the opaque client identifier sent with every
// backend request.
package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/storage"
)

const HeaderSessionID = "X-Session-ID"

// Identity is the session identifier of one client profile. It is loaded
// or created once and never regenerated while the stored entry exists.
type Identity struct {
	profile  string
	id       string
	degraded bool
}

// Load returns the stored identifier for profile, creating and persisting a
// new one on first use. When the store cannot be read or written the
// identity falls back to a fresh identifier for this process only.
func Load(ctx context.Context, store storage.Storage, profile string, logger *zap.Logger) *Identity {
	log := logger.With(zap.String("profile", profile))

	if store == nil {
		log.Warn("No durable storage for session identity, using process-local id")
		return &Identity{profile: profile, id: newID(), degraded: true}
	}

	id, err := store.GetSessionID(ctx, profile)
	if err == nil && id != "" {
		return &Identity{profile: profile, id: id}
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn("Session storage unavailable, using process-local id", zap.Error(err))
		return &Identity{profile: profile, id: newID(), degraded: true}
	}

	id = newID()
	if err := store.SaveSessionID(ctx, profile, id); err != nil {
		log.Warn("Failed to persist session id, using process-local id", zap.Error(err))
		return &Identity{profile: profile, id: id, degraded: true}
	}
	log.Info("Created session identity")
	return &Identity{profile: profile, id: id}
}

// Fixed wraps a known identifier; used by tests and one-off tooling.
func Fixed(profile, id string) *Identity {
	return &Identity{profile: profile, id: id}
}

func newID() string {
	return uuid.New().String()
}

func (i *Identity) Profile() string { return i.profile }

func (i *Identity) SessionID() string { return i.id }

// Degraded reports whether the identifier lives only as long as this process.
func (i *Identity) Degraded() bool { return i.degraded }

// Headers returns the headers for JSON requests.
func (i *Identity) Headers() http.Header {
	h := make(http.Header)
	h.Set(HeaderSessionID, i.id)
	h.Set("Content-Type", "application/json")
	return h
}

// MultipartHeaders omits Content-Type so the multipart writer can set the
// boundary itself.
func (i *Identity) MultipartHeaders() http.Header {
	h := make(http.Header)
	h.Set(HeaderSessionID, i.id)
	return h
}
