package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
)

// Recovery re-establishes document ids after the backend lost them.
type Recovery interface {
	CanReupload() bool
	Reupload(ctx context.Context) (ThreadContext, error)
}

// Outcome describes how an answer was obtained.
type Outcome struct {
	Answer    string
	Endpoint  Endpoint
	Recovered bool
}

// Executor sends a routed question, re-uploading and retrying at most once
// when the referenced documents are unknown to the backend.
type Executor struct {
	sender Sender
	logger *zap.Logger
}

func NewExecutor(sender Sender, logger *zap.Logger) *Executor {
	return &Executor{
		sender: sender,
		logger: logger.With(zap.String("component", "chat")),
	}
}

func (e *Executor) Execute(ctx context.Context, route Route, recovery Recovery) (Outcome, error) {
	log := e.logger.With(zap.String("thread_id", route.ThreadID), zap.String("endpoint", string(route.Endpoint)))

	answer, err := route.send(ctx, e.sender)
	if err == nil {
		return Outcome{Answer: answer, Endpoint: route.Endpoint}, nil
	}
	if !api.IsNotFound(err) || recovery == nil || !recovery.CanReupload() {
		log.Warn("Chat request failed", zap.Error(err))
		return Outcome{Endpoint: route.Endpoint}, err
	}

	log.Info("Documents unknown to backend, re-uploading", zap.Error(err))
	tc, rerr := recovery.Reupload(ctx)
	if rerr != nil {
		log.Error("Re-upload failed", zap.Error(rerr))
		return Outcome{Endpoint: route.Endpoint}, errors.Join(err, fmt.Errorf("re-upload: %w", rerr))
	}

	retry, rerr := Build(tc, route.Question)
	if rerr != nil {
		return Outcome{Endpoint: route.Endpoint}, errors.Join(err, rerr)
	}
	answer, err = retry.send(ctx, e.sender)
	if err != nil {
		log.Error("Chat retry failed", zap.Error(err))
		return Outcome{Endpoint: retry.Endpoint, Recovered: true}, err
	}
	return Outcome{Answer: answer, Endpoint: retry.Endpoint, Recovered: true}, nil
}
