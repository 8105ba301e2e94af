package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/finbot/internal/models"
)

func contents(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Role)+":"+m.Content)
	}
	return out
}

func TestAppendExchangeKeepsQuestionOrder(t *testing.T) {
	tr := NewTranscript()
	first := tr.Next("t1")
	second := tr.Next("t1")

	// The second answer arrives before the first.
	tr.AppendExchange("t1", second, "q2", "a2")
	tr.AppendExchange("t1", first, "q1", "a1")

	assert.Equal(t, []string{"user:q1", "assistant:a1", "user:q2", "assistant:a2"}, contents(tr.Messages("t1")))
}

func TestTranscriptThreadsAreIndependent(t *testing.T) {
	tr := NewTranscript()
	tr.AppendExchange("t1", tr.Next("t1"), "q1", "a1")
	tr.AppendExchange("t2", tr.Next("t2"), "q2", "a2")

	assert.Len(t, tr.Messages("t1"), 2)
	assert.Len(t, tr.Messages("t2"), 2)
	assert.Equal(t, uint64(2), tr.Next("t1"))

	tr.Drop("t1")
	assert.Empty(t, tr.Messages("t1"))
	assert.Len(t, tr.Messages("t2"), 2)
}

func TestReplaceKeepsUnsyncedLocalExchanges(t *testing.T) {
	tr := NewTranscript()
	tr.AppendExchange("t1", tr.Next("t1"), "q1", "a1")
	tr.AppendExchange("t1", tr.Next("t1"), "local", "pending")

	server := []models.Message{
		{ID: "m1", Role: models.RoleUser, Content: "q1"},
		{ID: "m2", Role: models.RoleAssistant, Content: "a1"},
	}
	tr.Replace("t1", server)

	msgs := tr.Messages("t1")
	require.Len(t, msgs, 4)
	assert.Equal(t, models.MessageID("m1"), msgs[0].ID)
	assert.Equal(t, []string{"user:q1", "assistant:a1", "user:local", "assistant:pending"}, contents(msgs))
}

func TestMessagesReturnsCopy(t *testing.T) {
	tr := NewTranscript()
	tr.AppendExchange("t1", tr.Next("t1"), "q", "a")

	msgs := tr.Messages("t1")
	msgs[0].Content = "changed"
	assert.Equal(t, "q", tr.Messages("t1")[0].Content)
}
