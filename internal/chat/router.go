// Package chat routes questions to the single- or multi-document endpoint,
// recovers from lost document state, and keeps per-thread transcripts.
package chat

import (
	"context"
	"errors"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/models"
)

type Endpoint string

const (
	EndpointSingle Endpoint = "/chat"
	EndpointMulti  Endpoint = "/chat-multi"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrNeedsUpload means files are selected but no document ids exist yet.
	ErrNeedsUpload = errors.New("selected files must be uploaded before asking")
)

// ThreadContext is what the router knows about a thread when a question is asked.
type ThreadContext struct {
	ThreadID      string
	DocumentIDs   []string
	Primary       *models.AnalysisResult
	HasLocalFiles bool
}

// Route is a fully shaped chat request.
type Route struct {
	Endpoint Endpoint
	ThreadID string
	Question string
	Single   api.ChatRequest
	Multi    api.MultiChatRequest
}

// Sender issues routed requests.
type Sender interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	ChatMulti(ctx context.Context, req api.MultiChatRequest) (*api.ChatResponse, error)
}

// Build applies the routing rule: exactly one known document with a primary
// result goes to the single-document endpoint, anything else to the
// multi-document endpoint with every known id.
func Build(tc ThreadContext, question string) (Route, error) {
	if question == "" {
		return Route{}, ErrEmptyQuestion
	}
	if len(tc.DocumentIDs) == 0 && tc.HasLocalFiles {
		return Route{}, ErrNeedsUpload
	}
	if len(tc.DocumentIDs) == 1 && tc.Primary != nil {
		return Route{
			Endpoint: EndpointSingle,
			ThreadID: tc.ThreadID,
			Question: question,
			Single: api.ChatRequest{
				DocumentID: tc.Primary.DocumentID,
				Question:   question,
				ThreadID:   tc.ThreadID,
			},
		}, nil
	}
	ids := append([]string{}, tc.DocumentIDs...)
	return Route{
		Endpoint: EndpointMulti,
		ThreadID: tc.ThreadID,
		Question: question,
		Multi: api.MultiChatRequest{
			DocumentIDs: ids,
			Question:    question,
			ThreadID:    tc.ThreadID,
		},
	}, nil
}

func (r Route) send(ctx context.Context, s Sender) (string, error) {
	var (
		resp *api.ChatResponse
		err  error
	)
	if r.Endpoint == EndpointSingle {
		resp, err = s.Chat(ctx, r.Single)
	} else {
		resp, err = s.ChatMulti(ctx, r.Multi)
	}
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}
