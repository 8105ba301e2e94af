// Package upload holds the per-thread upload state machine.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/fileset"
	"github.com/xaenox/finbot/internal/models"
)

var (
	// ErrNoFiles is the local validation error for an empty submission.
	ErrNoFiles = errors.New("please select at least one file")
	// ErrThreadDropped means the thread was deleted while a request was in flight.
	ErrThreadDropped = errors.New("thread was removed before the request completed")
)

const (
	genericUploadError = "Upload failed. Please try again."
	timeoutUploadError = "Upload timed out. Please try again."
)

// Backend is the slice of the API client the machine needs.
type Backend interface {
	UploadMultiple(ctx context.Context, threadID string, files []models.FileRef) ([]models.AnalysisResult, error)
	ThreadDocuments(ctx context.Context, threadID string) ([]models.AnalysisResult, error)
}

// Machine keeps one upload bucket per thread. Buckets live in an arena
// indexed by thread id; a request's continuation only ever writes to the
// bucket, and generation, it was issued for.
type Machine struct {
	backend Backend
	logger  *zap.Logger

	mu    sync.Mutex
	slots []bucket
	index map[string]int
	free  []int
	gen   uint64
}

func NewMachine(backend Backend, logger *zap.Logger) *Machine {
	return &Machine{
		backend: backend,
		logger:  logger.With(zap.String("component", "upload")),
		index:   make(map[string]int),
	}
}

// ensure returns the bucket for threadID, allocating one if needed.
// Callers must hold m.mu.
func (m *Machine) ensure(threadID string) *bucket {
	if i, ok := m.index[threadID]; ok {
		return &m.slots[i]
	}
	m.gen++
	b := newBucket(threadID, m.gen)
	var i int
	if n := len(m.free); n > 0 {
		i = m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[i] = b
	} else {
		i = len(m.slots)
		m.slots = append(m.slots, b)
	}
	m.index[threadID] = i
	return &m.slots[i]
}

// lookup returns the bucket only if it is still the one identified by gen.
// Callers must hold m.mu.
func (m *Machine) lookup(threadID string, gen uint64) *bucket {
	i, ok := m.index[threadID]
	if !ok || m.slots[i].gen != gen {
		return nil
	}
	return &m.slots[i]
}

// Snapshot returns a copy of the thread's state. Threads never touched
// report an idle, empty state.
func (m *Machine) Snapshot(threadID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[threadID]; ok {
		return m.slots[i].snapshot()
	}
	return State{ThreadID: threadID, Status: StatusIdle}
}

// Select merges files into the thread's selection.
func (m *Machine) Select(threadID string, files []models.FileRef) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.ensure(threadID)
	b.files = fileset.Merge(b.files, files)
	return b.snapshot()
}

// Remove drops the selected file at index.
func (m *Machine) Remove(threadID string, index int) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.ensure(threadID)
	b.files = fileset.RemoveAt(b.files, index)
	return b.snapshot()
}

// Drop forgets everything held for threadID. In-flight requests for it
// will find no bucket and discard their result.
func (m *Machine) Drop(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[threadID]
	if !ok {
		return
	}
	delete(m.index, threadID)
	m.slots[i] = bucket{}
	m.free = append(m.free, i)
}

// SubmitSelected submits the thread's current selection.
func (m *Machine) SubmitSelected(ctx context.Context, threadID string) ([]models.AnalysisResult, error) {
	return m.Submit(ctx, threadID, m.Snapshot(threadID).Files.Files())
}

// Submit uploads files for threadID and upserts the returned analyses.
// The thread's primary result becomes the first result of this batch.
func (m *Machine) Submit(ctx context.Context, threadID string, files []models.FileRef) ([]models.AnalysisResult, error) {
	if len(files) == 0 {
		m.mu.Lock()
		b := m.ensure(threadID)
		b.status = StatusError
		b.err = "Please select at least one file."
		m.mu.Unlock()
		return nil, ErrNoFiles
	}

	gen := m.begin(threadID)
	log := m.logger.With(zap.String("thread_id", threadID))
	log.Info("Uploading documents", zap.Int("files", len(files)))

	results, err := m.backend.UploadMultiple(ctx, threadID, files)

	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.lookup(threadID, gen)
	if b == nil {
		log.Warn("Discarding upload result for removed thread", zap.Error(err))
		return nil, ErrThreadDropped
	}
	if err != nil {
		b.status = StatusError
		b.err = uploadErrorMessage(err)
		log.Error("Upload failed", zap.Error(err))
		return nil, fmt.Errorf("upload: %w", err)
	}

	b.upsert(results)
	if len(results) > 0 {
		b.primary = results[0].DocumentID
	}
	b.status = StatusSuccess
	log.Info("Upload complete", zap.Int("results", len(results)), zap.Int("total", len(b.results)))
	return results, nil
}

// Reupload sends the still-available selected files again after the
// backend lost its analyses. The fresh batch replaces the thread's results
// wholesale since the previous ids are no longer valid.
func (m *Machine) Reupload(ctx context.Context, threadID string) ([]models.AnalysisResult, error) {
	files := m.Snapshot(threadID).Files.Available()
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	gen := m.begin(threadID)
	log := m.logger.With(zap.String("thread_id", threadID))
	log.Info("Re-uploading documents after identity loss", zap.Int("files", len(files)))

	results, err := m.backend.UploadMultiple(ctx, threadID, files)

	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.lookup(threadID, gen)
	if b == nil {
		return nil, ErrThreadDropped
	}
	if err != nil {
		b.status = StatusError
		b.err = uploadErrorMessage(err)
		return nil, fmt.Errorf("re-upload: %w", err)
	}
	b.replace(results)
	b.status = StatusSuccess
	return results, nil
}

// LoadExisting replaces the thread's results with the backend's persisted
// documents for it.
func (m *Machine) LoadExisting(ctx context.Context, threadID string) (State, error) {
	m.mu.Lock()
	gen := m.ensure(threadID).gen
	m.mu.Unlock()

	docs, err := m.backend.ThreadDocuments(ctx, threadID)

	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.lookup(threadID, gen)
	if b == nil {
		return State{ThreadID: threadID, Status: StatusIdle}, ErrThreadDropped
	}
	if err != nil {
		m.logger.Warn("Failed to load thread documents",
			zap.String("thread_id", threadID),
			zap.Error(err))
		return b.snapshot(), fmt.Errorf("load documents: %w", err)
	}
	b.replace(docs)
	return b.snapshot(), nil
}

// begin moves the thread's bucket into the uploading state and returns its
// generation.
func (m *Machine) begin(threadID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.ensure(threadID)
	b.status = StatusUploading
	b.err = ""
	return b.gen
}

func uploadErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutUploadError
	}
	return api.Detail(err, genericUploadError)
}
