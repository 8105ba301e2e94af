package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/models"
	"github.com/xaenox/finbot/internal/upload"
)

const genericChatError = "Sorry, I couldn't get an answer right now. Please try again."

// Uploads is the part of the upload machine the chat flow depends on.
type Uploads interface {
	Snapshot(threadID string) upload.State
	SubmitSelected(ctx context.Context, threadID string) ([]models.AnalysisResult, error)
	Reupload(ctx context.Context, threadID string) ([]models.AnalysisResult, error)
}

// Exchange is the result of one question.
type Exchange struct {
	Seq       uint64
	Question  string
	Answer    string
	Endpoint  Endpoint
	Recovered bool
	Err       error
}

// Service runs the full question flow for a thread: route, upload first if
// only local files exist, execute with recovery, record in the transcript.
type Service struct {
	uploads    Uploads
	executor   *Executor
	transcript *Transcript
	logger     *zap.Logger
}

func NewService(uploads Uploads, sender Sender, transcript *Transcript, logger *zap.Logger) *Service {
	return &Service{
		uploads:    uploads,
		executor:   NewExecutor(sender, logger),
		transcript: transcript,
		logger:     logger.With(zap.String("component", "chat")),
	}
}

func (s *Service) Transcript() *Transcript {
	return s.transcript
}

// ThreadContextFrom builds the routing view of a thread from its upload state.
func ThreadContextFrom(state upload.State) ThreadContext {
	return ThreadContext{
		ThreadID:      state.ThreadID,
		DocumentIDs:   state.DocumentIDs(),
		Primary:       state.Primary,
		HasLocalFiles: len(state.Files.Available()) > 0,
	}
}

// Ask answers question within threadID. Failures are returned in the
// exchange and also recorded as the assistant's reply, so the caller always
// has text to show.
func (s *Service) Ask(ctx context.Context, threadID, question string) Exchange {
	ex := Exchange{Question: question}
	if question == "" {
		ex.Err = ErrEmptyQuestion
		return ex
	}
	ex.Seq = s.transcript.Next(threadID)

	outcome, err := s.ask(ctx, threadID, question)
	ex.Endpoint = outcome.Endpoint
	ex.Recovered = outcome.Recovered
	if err != nil {
		ex.Err = err
		ex.Answer = chatErrorMessage(err)
	} else {
		ex.Answer = outcome.Answer
	}

	s.transcript.AppendExchange(threadID, ex.Seq, question, ex.Answer)
	return ex
}

func (s *Service) ask(ctx context.Context, threadID, question string) (Outcome, error) {
	tc := ThreadContextFrom(s.uploads.Snapshot(threadID))
	route, err := Build(tc, question)
	if errors.Is(err, ErrNeedsUpload) {
		s.logger.Info("Uploading selected files before first question", zap.String("thread_id", threadID))
		if _, uerr := s.uploads.SubmitSelected(ctx, threadID); uerr != nil {
			return Outcome{}, fmt.Errorf("upload before chat: %w", uerr)
		}
		tc = ThreadContextFrom(s.uploads.Snapshot(threadID))
		route, err = Build(tc, question)
	}
	if err != nil {
		return Outcome{}, err
	}
	return s.executor.Execute(ctx, route, &threadRecovery{uploads: s.uploads, threadID: threadID})
}

// threadRecovery re-uploads a thread's local files.
type threadRecovery struct {
	uploads  Uploads
	threadID string
}

func (r *threadRecovery) CanReupload() bool {
	return len(r.uploads.Snapshot(r.threadID).Files.Available()) > 0
}

func (r *threadRecovery) Reupload(ctx context.Context) (ThreadContext, error) {
	if _, err := r.uploads.Reupload(ctx, r.threadID); err != nil {
		return ThreadContext{}, err
	}
	return ThreadContextFrom(r.uploads.Snapshot(r.threadID)), nil
}

func chatErrorMessage(err error) string {
	if errors.Is(err, upload.ErrNoFiles) {
		return "Please upload a document before asking questions."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The assistant took too long to answer. Please try again."
	}
	if detail := api.Detail(err, ""); detail != "" {
		return "Sorry, I couldn't answer that: " + detail
	}
	return genericChatError
}
