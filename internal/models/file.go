package models

import (
	"fmt"
	"os"
	"time"
)

// FileRef points at a locally held document selected for upload
type FileRef struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Path         string    `json:"path"`
}

// Key returns the identity used to deduplicate selections: name|size|lastModified
func (f FileRef) Key() string {
	return fmt.Sprintf("%s|%d|%d", f.Name, f.Size, f.LastModified.UnixMilli())
}

// Available reports whether the local copy can still be read for a re-upload
func (f FileRef) Available() bool {
	if f.Path == "" {
		return false
	}
	info, err := os.Stat(f.Path)
	return err == nil && !info.IsDir()
}
