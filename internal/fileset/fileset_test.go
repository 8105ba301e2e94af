package fileset

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xaenox/finbot/internal/models"
)

var modified = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func ref(name string, size int64) models.FileRef {
	return models.FileRef{Name: name, Size: size, LastModified: modified, Path: "/tmp/" + name}
}

func names(s Set) []string {
	out := []string{}
	for _, f := range s.Files() {
		out = append(out, f.Name)
	}
	return out
}

func TestMergeSameFileTwiceIsIdempotent(t *testing.T) {
	f := ref("statement.pdf", 1024)

	s := Merge(Set{}, []models.FileRef{f})
	s = Merge(s, []models.FileRef{f})

	assert.Equal(t, 1, s.Len())
}

func TestMergeDeduplicatesWithinOneSelection(t *testing.T) {
	f := ref("statement.pdf", 1024)
	s := New(f, f, ref("ledger.xlsx", 10))
	assert.Equal(t, []string{"statement.pdf", "ledger.xlsx"}, names(s))
}

func TestMergeIdentityKey(t *testing.T) {
	base := ref("statement.pdf", 1024)
	otherSize := ref("statement.pdf", 2048)
	otherTime := base
	otherTime.LastModified = modified.Add(time.Second)

	s := New(base, otherSize, otherTime)
	assert.Equal(t, 3, s.Len())
}

func TestMergeReplacesInPlace(t *testing.T) {
	first := ref("a.pdf", 1)
	second := ref("b.pdf", 2)
	again := first
	again.Path = "/new/a.pdf"

	s := New(first, second)
	s = Merge(s, []models.FileRef{again})

	files := s.Files()
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names(s))
	assert.Equal(t, "/new/a.pdf", files[0].Path)
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	s := New(ref("a.pdf", 1))
	_ = Merge(s, []models.FileRef{ref("b.pdf", 2)})
	assert.Equal(t, 1, s.Len())
}

func TestRemoveAt(t *testing.T) {
	s := New(ref("a.pdf", 1), ref("b.pdf", 2), ref("c.pdf", 3))

	tests := []struct {
		name  string
		index int
		want  []string
	}{
		{name: "first", index: 0, want: []string{"b.pdf", "c.pdf"}},
		{name: "middle", index: 1, want: []string{"a.pdf", "c.pdf"}},
		{name: "last", index: 2, want: []string{"a.pdf", "b.pdf"}},
		{name: "negative", index: -1, want: []string{"a.pdf", "b.pdf", "c.pdf"}},
		{name: "past end", index: 3, want: []string{"a.pdf", "b.pdf", "c.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(RemoveAt(s, tt.index)))
		})
	}
	assert.Equal(t, 3, s.Len())
}

type fakeList struct {
	assignErr error
	files     []models.FileRef
	cleared   bool
}

func (l *fakeList) Assign(files []models.FileRef) error {
	if l.assignErr != nil {
		return l.assignErr
	}
	l.files = files
	return nil
}

func (l *fakeList) Clear() error {
	l.files = nil
	l.cleared = true
	return nil
}

func TestProjectReflectsCurrentSet(t *testing.T) {
	s := New(ref("a.pdf", 1), ref("b.pdf", 2))
	s = RemoveAt(s, 0)

	list := &fakeList{}
	assert.NoError(t, Project(list, s))
	assert.Len(t, list.files, 1)
	assert.Equal(t, "b.pdf", list.files[0].Name)
}

func TestProjectFallsBackToClear(t *testing.T) {
	list := &fakeList{assignErr: errors.New("unsupported"), files: []models.FileRef{ref("stale.pdf", 1)}}

	err := Project(list, New(ref("a.pdf", 1)))
	assert.Error(t, err)
	assert.True(t, list.cleared)
	assert.Empty(t, list.files)
}
