package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no session identifier is stored for a profile
var ErrNotFound = errors.New("storage: session not found")

// Storage durably keeps one session identifier per client profile
type Storage interface {
	GetSessionID(ctx context.Context, profile string) (string, error)
	SaveSessionID(ctx context.Context, profile, sessionID string) error
	DeleteSessionID(ctx context.Context, profile string) error
	Close() error
}
