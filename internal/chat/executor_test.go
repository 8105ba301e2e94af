package chat

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/models"
)

type sentRequest struct {
	endpoint Endpoint
	ids      []string
	question string
}

// scriptedSender answers from a queue of errors; nil means success.
type scriptedSender struct {
	errs []error
	sent []sentRequest
}

func (s *scriptedSender) next() error {
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedSender) Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	s.sent = append(s.sent, sentRequest{endpoint: EndpointSingle, ids: []string{req.DocumentID}, question: req.Question})
	if err := s.next(); err != nil {
		return nil, err
	}
	return &api.ChatResponse{Answer: "single:" + req.Question}, nil
}

func (s *scriptedSender) ChatMulti(ctx context.Context, req api.MultiChatRequest) (*api.ChatResponse, error) {
	s.sent = append(s.sent, sentRequest{endpoint: EndpointMulti, ids: req.DocumentIDs, question: req.Question})
	if err := s.next(); err != nil {
		return nil, err
	}
	return &api.ChatResponse{Answer: "multi:" + req.Question}, nil
}

type countingRecovery struct {
	canReupload bool
	err         error
	fresh       ThreadContext
	calls       int
}

func (r *countingRecovery) CanReupload() bool { return r.canReupload }

func (r *countingRecovery) Reupload(ctx context.Context) (ThreadContext, error) {
	r.calls++
	return r.fresh, r.err
}

var notFound = &api.Error{StatusCode: http.StatusNotFound, Detail: "Document not found"}

func singleRoute(t *testing.T, question string) Route {
	t.Helper()
	route, err := Build(ThreadContext{ThreadID: "t", DocumentIDs: []string{"old"}, Primary: &models.AnalysisResult{DocumentID: "old"}}, question)
	require.NoError(t, err)
	return route
}

func TestExecuteSuccessWithoutRecovery(t *testing.T) {
	sender := &scriptedSender{}
	rec := &countingRecovery{canReupload: true}

	out, err := NewExecutor(sender, zap.NewNop()).Execute(context.Background(), singleRoute(t, "q"), rec)
	require.NoError(t, err)
	assert.Equal(t, "single:q", out.Answer)
	assert.False(t, out.Recovered)
	assert.Zero(t, rec.calls)
}

func TestExecuteRecoversOnceWithVerbatimQuestion(t *testing.T) {
	sender := &scriptedSender{errs: []error{notFound}}
	rec := &countingRecovery{
		canReupload: true,
		fresh:       ThreadContext{ThreadID: "t", DocumentIDs: []string{"new"}, Primary: &models.AnalysisResult{DocumentID: "new"}},
	}
	question := "What are the top transactions?"

	out, err := NewExecutor(sender, zap.NewNop()).Execute(context.Background(), singleRoute(t, question), rec)
	require.NoError(t, err)
	assert.True(t, out.Recovered)
	assert.Equal(t, 1, rec.calls)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, []string{"old"}, sender.sent[0].ids)
	assert.Equal(t, []string{"new"}, sender.sent[1].ids)
	assert.Equal(t, question, sender.sent[1].question)
}

func TestExecuteSecondFailureIsSurfaced(t *testing.T) {
	sender := &scriptedSender{errs: []error{notFound, notFound}}
	rec := &countingRecovery{
		canReupload: true,
		fresh:       ThreadContext{ThreadID: "t", DocumentIDs: []string{"n1", "n2"}},
	}

	out, err := NewExecutor(sender, zap.NewNop()).Execute(context.Background(), singleRoute(t, "q"), rec)
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
	assert.Equal(t, 1, rec.calls)
	assert.Len(t, sender.sent, 2)
	assert.Equal(t, EndpointMulti, out.Endpoint)
}

func TestExecuteWithoutLocalFilesSurfacesNotFound(t *testing.T) {
	sender := &scriptedSender{errs: []error{notFound}}
	rec := &countingRecovery{canReupload: false}

	_, err := NewExecutor(sender, zap.NewNop()).Execute(context.Background(), singleRoute(t, "q"), rec)
	require.Error(t, err)
	assert.Zero(t, rec.calls)
	assert.Len(t, sender.sent, 1)
}

func TestExecuteOtherErrorsAreNotRecovered(t *testing.T) {
	sender := &scriptedSender{errs: []error{&api.Error{StatusCode: 500, Detail: "Chat failed: model overloaded"}}}
	rec := &countingRecovery{canReupload: true}

	_, err := NewExecutor(sender, zap.NewNop()).Execute(context.Background(), singleRoute(t, "q"), rec)
	require.Error(t, err)
	assert.Zero(t, rec.calls)
}

func TestExecuteReuploadFailure(t *testing.T) {
	sender := &scriptedSender{errs: []error{notFound}}
	rec := &countingRecovery{canReupload: true, err: errors.New("disk read failed")}

	_, err := NewExecutor(sender, zap.NewNop()).Execute(context.Background(), singleRoute(t, "q"), rec)
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
	assert.Contains(t, err.Error(), "disk read failed")
	assert.Len(t, sender.sent, 1)
}

func TestExecuteNilRecovery(t *testing.T) {
	sender := &scriptedSender{errs: []error{notFound}}
	_, err := NewExecutor(sender, zap.NewNop()).Execute(context.Background(), singleRoute(t, "q"), nil)
	assert.Error(t, err)
}
