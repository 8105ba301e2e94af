package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// BoltStorage keeps session identifiers in a single local bbolt file,
// the closest thing a process has to a browser profile's local storage.
type BoltStorage struct {
	db *bolt.DB
}

func NewBoltStorage(path string) (*BoltStorage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("bolt storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStorage{db: db}, nil
}

func (s *BoltStorage) GetSessionID(ctx context.Context, profile string) (string, error) {
	var sessionID string
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSessions).Get([]byte(profile))
		if raw == nil {
			return ErrNotFound
		}
		sessionID = string(raw)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

func (s *BoltStorage) SaveSessionID(ctx context.Context, profile, sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put([]byte(profile), []byte(sessionID))
	})
}

func (s *BoltStorage) DeleteSessionID(ctx context.Context, profile string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(profile))
	})
}

func (s *BoltStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
