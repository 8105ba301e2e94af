package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/storage"
)

type brokenStorage struct {
	getErr  error
	saveErr error
}

func (b brokenStorage) GetSessionID(ctx context.Context, profile string) (string, error) {
	return "", b.getErr
}

func (b brokenStorage) SaveSessionID(ctx context.Context, profile, sessionID string) error {
	return b.saveErr
}

func (b brokenStorage) DeleteSessionID(ctx context.Context, profile string) error { return nil }

func (b brokenStorage) Close() error { return nil }

func TestLoadCreatesOnceAndReuses(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	first := Load(ctx, store, "7", zap.NewNop())
	require.NotEmpty(t, first.SessionID())
	assert.False(t, first.Degraded())

	second := Load(ctx, store, "7", zap.NewNop())
	assert.Equal(t, first.SessionID(), second.SessionID())

	other := Load(ctx, store, "8", zap.NewNop())
	assert.NotEqual(t, first.SessionID(), other.SessionID())
}

func TestLoadDegradesWhenStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	store := brokenStorage{getErr: errors.New("disk gone")}

	a := Load(ctx, store, "7", zap.NewNop())
	b := Load(ctx, store, "7", zap.NewNop())

	assert.True(t, a.Degraded())
	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestLoadDegradesWhenSaveFails(t *testing.T) {
	store := brokenStorage{getErr: storage.ErrNotFound, saveErr: errors.New("read-only")}

	id := Load(context.Background(), store, "7", zap.NewNop())
	assert.True(t, id.Degraded())
	assert.NotEmpty(t, id.SessionID())
}

func TestLoadWithoutStorage(t *testing.T) {
	id := Load(context.Background(), nil, "7", zap.NewNop())
	assert.True(t, id.Degraded())
}

func TestHeaders(t *testing.T) {
	id := Fixed("7", "sess-1")

	h := id.Headers()
	assert.Equal(t, "sess-1", h.Get(HeaderSessionID))
	assert.Equal(t, "application/json", h.Get("Content-Type"))

	mh := id.MultipartHeaders()
	assert.Equal(t, "sess-1", mh.Get(HeaderSessionID))
	assert.Empty(t, mh.Get("Content-Type"))
}
