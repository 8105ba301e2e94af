package upload

import (
	"github.com/xaenox/finbot/internal/fileset"
	"github.com/xaenox/finbot/internal/models"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// State is a read-only copy of one thread's upload bucket.
type State struct {
	ThreadID string
	Files    fileset.Set
	Status   Status
	Error    string
	Results  []models.AnalysisResult
	Primary  *models.AnalysisResult
}

func (s State) Loading() bool {
	return s.Status == StatusUploading
}

// DocumentIDs lists the known document ids in arrival order.
func (s State) DocumentIDs() []string {
	ids := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		ids = append(ids, r.DocumentID)
	}
	return ids
}

// bucket is the mutable per-thread record held in the machine's arena.
type bucket struct {
	threadID string
	gen      uint64
	files    fileset.Set
	status   Status
	err      string
	results  []models.AnalysisResult
	byID     map[string]int
	primary  string
}

func newBucket(threadID string, gen uint64) bucket {
	return bucket{
		threadID: threadID,
		gen:      gen,
		status:   StatusIdle,
		byID:     make(map[string]int),
	}
}

// upsert inserts each result or replaces the entry with the same document
// id in place, keeping arrival order.
func (b *bucket) upsert(results []models.AnalysisResult) {
	for _, r := range results {
		if i, ok := b.byID[r.DocumentID]; ok {
			b.results[i] = r
			continue
		}
		b.byID[r.DocumentID] = len(b.results)
		b.results = append(b.results, r)
	}
}

func (b *bucket) replace(results []models.AnalysisResult) {
	b.results = nil
	b.byID = make(map[string]int, len(results))
	b.upsert(results)
	b.primary = ""
	if len(b.results) > 0 {
		b.primary = b.results[0].DocumentID
	}
}

func (b *bucket) snapshot() State {
	s := State{
		ThreadID: b.threadID,
		Files:    b.files,
		Status:   b.status,
		Error:    b.err,
		Results:  append([]models.AnalysisResult(nil), b.results...),
	}
	if i, ok := b.byID[b.primary]; ok {
		primary := b.results[i]
		s.Primary = &primary
	}
	return s
}
