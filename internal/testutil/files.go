package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xaenox/finbot/internal/models"
)

// WriteFile creates a document on disk under t.TempDir and returns its ref.
func WriteFile(t *testing.T, name, content string) models.FileRef {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return models.FileRef{
		Name:         name,
		Size:         int64(len(content)),
		LastModified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Path:         path,
	}
}
