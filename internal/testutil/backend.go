// Package testutil provides an in-process fake of the analysis backend.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/finbot/internal/models"
)

// RecordedRequest is one call observed by the fake backend.
type RecordedRequest struct {
	Method    string
	Path      string
	SessionID string
	ThreadID  string
	Filenames []string
	Body      map[string]any
}

type fakeThread struct {
	thread    models.Thread
	documents []string
	messages  []models.Message
}

// Backend mimics the analysis service: analyses are held in memory and lost
// on Restart, while threads and their document listings persist.
type Backend struct {
	Server *httptest.Server

	mu        sync.Mutex
	requests  []RecordedRequest
	threads   map[string]*fakeThread
	order     []string
	analyses  map[string]models.AnalysisResult
	persisted map[string]models.AnalysisResult
	nextID    int

	// UploadResults, when set, overrides the analyses produced for an upload.
	UploadResults func(threadID string, filenames []string) []models.AnalysisResult
	// UploadGate, when non-nil, blocks upload handling until it is closed.
	UploadGate chan struct{}
	failures   map[string][]failure
}

type failure struct {
	status int
	detail string
}

func NewBackend() *Backend {
	b := &Backend{
		threads:   make(map[string]*fakeThread),
		analyses:  make(map[string]models.AnalysisResult),
		persisted: make(map[string]models.AnalysisResult),
		failures:  make(map[string][]failure),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

func (b *Backend) URL() string { return b.Server.URL }

func (b *Backend) Close() { b.Server.Close() }

// Restart drops the in-memory analyses, as a backend process restart would.
func (b *Backend) Restart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyses = make(map[string]models.AnalysisResult)
}

// FailNext makes the next request to path answer with status and detail.
func (b *Backend) FailNext(path string, status int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = append(b.failures[path], failure{status: status, detail: detail})
}

// AddThread seeds a thread directly.
func (b *Backend) AddThread(id, title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addThreadLocked(id, title)
}

func (b *Backend) addThreadLocked(id, title string) *fakeThread {
	now := models.NewTimestamp(time.Now().UTC())
	t := &fakeThread{thread: models.Thread{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}}
	b.threads[id] = t
	b.order = append(b.order, id)
	return t
}

func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// Count returns how many requests hit method and path.
func (b *Backend) Count(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (b *Backend) ThreadIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	rec := RecordedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		SessionID: r.Header.Get("X-Session-ID"),
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		rec.ThreadID = r.FormValue("thread_id")
		for _, fh := range r.MultipartForm.File["files"] {
			rec.Filenames = append(rec.Filenames, fh.Filename)
		}
	} else if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
	}

	if r.URL.Path == "/upload-multiple" && b.UploadGate != nil {
		<-b.UploadGate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, rec)

	if queued := b.failures[r.URL.Path]; len(queued) > 0 {
		b.failures[r.URL.Path] = queued[1:]
		writeDetail(w, queued[0].status, queued[0].detail)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": "API is running"})
	case r.Method == http.MethodPost && r.URL.Path == "/upload-multiple":
		b.handleUpload(w, rec)
	case r.Method == http.MethodPost && r.URL.Path == "/chat":
		b.handleChat(w, rec, []string{stringField(rec.Body, "document_id")})
	case r.Method == http.MethodPost && r.URL.Path == "/chat-multi":
		b.handleChat(w, rec, stringsField(rec.Body, "document_ids"))
	case r.Method == http.MethodGet && r.URL.Path == "/threads":
		threads := make([]models.Thread, 0, len(b.order))
		for _, id := range b.order {
			t := b.threads[id]
			t.thread.MessageCount = len(t.messages)
			threads = append(threads, t.thread)
		}
		writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
	case r.Method == http.MethodPost && r.URL.Path == "/threads":
		b.nextID++
		id := fmt.Sprintf("thread-%d", b.nextID)
		b.addThreadLocked(id, "New conversation")
		writeJSON(w, http.StatusOK, map[string]string{"thread_id": id})
	case strings.HasPrefix(r.URL.Path, "/threads/"):
		b.handleThread(w, r)
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
	}
}

func (b *Backend) handleUpload(w http.ResponseWriter, rec RecordedRequest) {
	var results []models.AnalysisResult
	if b.UploadResults != nil {
		results = b.UploadResults(rec.ThreadID, rec.Filenames)
	} else {
		for _, name := range rec.Filenames {
			b.nextID++
			results = append(results, models.AnalysisResult{
				DocumentID:   fmt.Sprintf("doc-%d", b.nextID),
				Filename:     name,
				DocumentType: "bank_statement",
				Summary:      models.Summary{KeyInsights: []string{"Insight for " + name}},
				RiskScore:    3,
			})
		}
	}
	t := b.threads[rec.ThreadID]
	for _, res := range results {
		b.analyses[res.DocumentID] = res
		b.persisted[res.DocumentID] = res
		if t != nil && !contains(t.documents, res.DocumentID) {
			t.documents = append(t.documents, res.DocumentID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (b *Backend) handleChat(w http.ResponseWriter, rec RecordedRequest, ids []string) {
	if len(ids) == 0 {
		writeDetail(w, http.StatusBadRequest, "No documents provided")
		return
	}
	for _, id := range ids {
		if _, ok := b.analyses[id]; !ok {
			writeDetail(w, http.StatusNotFound, "Document not found")
			return
		}
	}
	question := stringField(rec.Body, "question")
	answer := "Answer to: " + question
	if t := b.threads[stringField(rec.Body, "thread_id")]; t != nil {
		now := models.NewTimestamp(time.Now().UTC())
		t.messages = append(t.messages,
			models.Message{ID: models.MessageID(fmt.Sprintf("m%d", len(t.messages)+1)), Role: models.RoleUser, Content: question, Timestamp: now},
			models.Message{ID: models.MessageID(fmt.Sprintf("m%d", len(t.messages)+2)), Role: models.RoleAssistant, Content: answer, Timestamp: now},
		)
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (b *Backend) handleThread(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/threads/")
	id, suffix, _ := strings.Cut(rest, "/")
	t, ok := b.threads[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Thread not found")
		return
	}
	switch {
	case r.Method == http.MethodDelete && suffix == "":
		delete(b.threads, id)
		for i, tid := range b.order {
			if tid == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	case r.Method == http.MethodGet && suffix == "messages":
		writeJSON(w, http.StatusOK, map[string]any{"messages": t.messages})
	case r.Method == http.MethodGet && suffix == "documents":
		docs := make([]models.AnalysisResult, 0, len(t.documents))
		for _, docID := range t.documents {
			docs = append(docs, b.persisted[docID])
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func stringsField(body map[string]any, key string) []string {
	raw, _ := body[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
