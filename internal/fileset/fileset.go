// Package fileset reconciles repeated file selections into one ordered,
// deduplicated set.
package fileset

import "github.com/xaenox/finbot/internal/models"

// Set is an immutable ordered set of files keyed by FileRef.Key.
type Set struct {
	files []models.FileRef
}

func New(files ...models.FileRef) Set {
	return Merge(Set{}, files)
}

// Files returns a copy of the current ordered view.
func (s Set) Files() []models.FileRef {
	return append([]models.FileRef(nil), s.files...)
}

func (s Set) Len() int { return len(s.files) }

func (s Set) Empty() bool { return len(s.files) == 0 }

// Available returns the files whose local copy still exists.
func (s Set) Available() []models.FileRef {
	out := make([]models.FileRef, 0, len(s.files))
	for _, f := range s.files {
		if f.Available() {
			out = append(out, f)
		}
	}
	return out
}

// Merge adds incoming to existing. A file whose key is already present
// replaces the earlier entry in place; new keys are appended in order.
func Merge(existing Set, incoming []models.FileRef) Set {
	merged := make([]models.FileRef, len(existing.files), len(existing.files)+len(incoming))
	copy(merged, existing.files)

	index := make(map[string]int, len(merged))
	for i, f := range merged {
		index[f.Key()] = i
	}
	for _, f := range incoming {
		key := f.Key()
		if i, ok := index[key]; ok {
			merged[i] = f
			continue
		}
		index[key] = len(merged)
		merged = append(merged, f)
	}
	return Set{files: merged}
}

// RemoveAt drops the file at index in the current ordered view. An index
// out of range leaves the set unchanged.
func RemoveAt(existing Set, index int) Set {
	if index < 0 || index >= len(existing.files) {
		return existing
	}
	out := make([]models.FileRef, 0, len(existing.files)-1)
	out = append(out, existing.files[:index]...)
	out = append(out, existing.files[index+1:]...)
	return Set{files: out}
}

// FileList is the native list a frontend submits from.
type FileList interface {
	Assign(files []models.FileRef) error
	Clear() error
}

// Project makes list reflect set exactly. If the list cannot be rebuilt it
// is cleared instead, and the assign error is returned.
func Project(list FileList, set Set) error {
	if list == nil {
		return nil
	}
	err := list.Assign(set.Files())
	if err == nil {
		return nil
	}
	if clearErr := list.Clear(); clearErr != nil {
		return clearErr
	}
	return err
}
