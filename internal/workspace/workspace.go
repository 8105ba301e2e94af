// Package workspace composes the per-profile client services: identity,
// backend client, upload state, chat and thread lifecycle.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/chat"
	"github.com/xaenox/finbot/internal/models"
	"github.com/xaenox/finbot/internal/session"
	"github.com/xaenox/finbot/internal/threads"
	"github.com/xaenox/finbot/internal/upload"
)

var ErrNoActiveThread = errors.New("no thread selected")

// Workspace is the service object of one client profile.
type Workspace struct {
	identity   *session.Identity
	client     *api.Client
	uploads    *upload.Machine
	transcript *chat.Transcript
	chat       *chat.Service
	threads    *threads.Manager
	logger     *zap.Logger
}

func newWorkspace(identity *session.Identity, opts Options, logger *zap.Logger) *Workspace {
	log := logger.With(zap.String("profile", identity.Profile()))
	client := api.New(opts.BaseURL, identity, opts.HTTPClient, opts.Timeouts, log)
	uploads := upload.NewMachine(client, log)
	transcript := chat.NewTranscript()
	return &Workspace{
		identity:   identity,
		client:     client,
		uploads:    uploads,
		transcript: transcript,
		chat:       chat.NewService(uploads, client, transcript, log),
		threads:    threads.NewManager(client, uploads, transcript, opts.ThreadTTL, log),
		logger:     log,
	}
}

func (w *Workspace) Profile() string { return w.identity.Profile() }
func (w *Workspace) SessionID() string { return w.identity.SessionID() }
func (w *Workspace) Degraded() bool { return w.identity.Degraded() }

func (w *Workspace) Health(ctx context.Context) (*api.HealthResponse, error) {
	return w.client.Health(ctx)
}

func (w *Workspace) NewThread(ctx context.Context) (string, error) {
	return w.threads.Create(ctx)
}

func (w *Workspace) Threads(ctx context.Context, refresh bool) ([]models.Thread, error) {
	return w.threads.List(ctx, refresh)
}

func (w *Workspace) SelectThread(ctx context.Context, threadID string) error {
	return w.threads.Select(ctx, threadID)
}

func (w *Workspace) DeleteThread(ctx context.Context, threadID string) error {
	return w.threads.Delete(ctx, threadID)
}

// ActiveThread returns the selected thread id or "".
func (w *Workspace) ActiveThread() string {
	return w.threads.Active()
}

// ensureThread returns the active thread, creating one on first use.
func (w *Workspace) ensureThread(ctx context.Context) (string, error) {
	if id := w.threads.Active(); id != "" {
		return id, nil
	}
	id, err := w.threads.Create(ctx)
	if err != nil {
		return "", err
	}
	w.logger.Info("Created thread implicitly", zap.String("thread_id", id))
	return id, nil
}

// AddFiles merges files into the active thread's selection.
func (w *Workspace) AddFiles(ctx context.Context, files []models.FileRef) (upload.State, error) {
	threadID, err := w.ensureThread(ctx)
	if err != nil {
		return upload.State{}, err
	}
	return w.uploads.Select(threadID, files), nil
}

func (w *Workspace) RemoveFile(index int) (upload.State, error) {
	threadID := w.threads.Active()
	if threadID == "" {
		return upload.State{}, ErrNoActiveThread
	}
	return w.uploads.Remove(threadID, index), nil
}

// Upload submits the active thread's selection. A successful upload
// switches the thread to the chat view.
func (w *Workspace) Upload(ctx context.Context) ([]models.AnalysisResult, error) {
	threadID := w.threads.Active()
	if threadID == "" {
		return nil, upload.ErrNoFiles
	}
	results, err := w.uploads.SubmitSelected(ctx, threadID)
	if err != nil {
		return nil, err
	}
	w.threads.SetViewMode(threadID, models.ViewChat)
	return results, nil
}

// Ask puts question to the active thread.
func (w *Workspace) Ask(ctx context.Context, question string) (chat.Exchange, error) {
	threadID, err := w.ensureThread(ctx)
	if err != nil {
		return chat.Exchange{Question: question}, fmt.Errorf("ask: %w", err)
	}
	w.threads.SetViewMode(threadID, models.ViewChat)
	ex := w.chat.Ask(ctx, threadID, question)
	return ex, ex.Err
}

func (w *Workspace) Transcript() []models.Message {
	threadID := w.threads.Active()
	if threadID == "" {
		return nil
	}
	return w.transcript.Messages(threadID)
}

func (w *Workspace) UploadState() upload.State {
	return w.uploads.Snapshot(w.threads.Active())
}

func (w *Workspace) ViewMode() models.ViewMode {
	return w.threads.ViewMode(w.threads.Active())
}

func (w *Workspace) SetViewMode(mode models.ViewMode) error {
	threadID := w.threads.Active()
	if threadID == "" {
		return ErrNoActiveThread
	}
	w.threads.SetViewMode(threadID, mode)
	return nil
}
