package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xaenox/finbot/internal/models"
)

// Transcript holds the cached message sequence of each thread. Exchanges
// produced locally carry a per-thread sequence number and are kept in
// question order even when their answers arrive out of order.
type Transcript struct {
	mu      sync.Mutex
	threads map[string]*threadLog
}

type threadLog struct {
	nextSeq  uint64
	messages []models.Message
}

func NewTranscript() *Transcript {
	return &Transcript{threads: make(map[string]*threadLog)}
}

func (t *Transcript) log(threadID string) *threadLog {
	l, ok := t.threads[threadID]
	if !ok {
		l = &threadLog{}
		t.threads[threadID] = l
	}
	return l
}

// Next reserves the sequence number for a new question on threadID.
func (t *Transcript) Next(threadID string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.log(threadID)
	l.nextSeq++
	return l.nextSeq
}

// Replace installs the backend's transcript for threadID. Locally appended
// exchanges that the backend does not know about yet are kept after it.
func (t *Transcript) Replace(threadID string, messages []models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.log(threadID)

	merged := make([]models.Message, 0, len(messages))
	merged = append(merged, messages...)
	for _, m := range l.messages {
		if m.Seq > 0 && !containsMessage(messages, m) {
			merged = append(merged, m)
		}
	}
	l.messages = merged
}

// AppendExchange records a question and its reply. The pair is placed
// before any exchange with a higher sequence number.
func (t *Transcript) AppendExchange(threadID string, seq uint64, question, answer string) {
	now := models.NewTimestamp(time.Now().UTC())
	pair := []models.Message{
		{ID: models.MessageID(uuid.New().String()), Role: models.RoleUser, Content: question, Timestamp: now, Seq: seq},
		{ID: models.MessageID(uuid.New().String()), Role: models.RoleAssistant, Content: answer, Timestamp: now, Seq: seq},
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.log(threadID)

	at := len(l.messages)
	for i, m := range l.messages {
		if m.Seq > seq {
			at = i
			break
		}
	}
	out := make([]models.Message, 0, len(l.messages)+2)
	out = append(out, l.messages[:at]...)
	out = append(out, pair...)
	out = append(out, l.messages[at:]...)
	l.messages = out
}

func (t *Transcript) Messages(threadID string) []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.threads[threadID]; ok {
		return append([]models.Message(nil), l.messages...)
	}
	return nil
}

func (t *Transcript) Drop(threadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.threads, threadID)
}

func containsMessage(list []models.Message, m models.Message) bool {
	for _, other := range list {
		if other.Role == m.Role && other.Content == m.Content {
			return true
		}
	}
	return false
}
