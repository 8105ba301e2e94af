package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/models"
	"github.com/xaenox/finbot/internal/threads"
	"github.com/xaenox/finbot/internal/upload"
	"github.com/xaenox/finbot/internal/workspace"
)

const (
	callbackSelect        = "select:"
	callbackConfirmDelete = "delete:"
	callbackCancel        = "cancel"
)

func (b *Bot) handleCommand(ctx context.Context, ws *workspace.Workspace, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "new":
		b.handleNew(ctx, ws, chatID)
	case "threads":
		b.handleThreads(ctx, ws, chatID)
	case "select":
		if args == "" {
			b.handleThreads(ctx, ws, chatID)
			return
		}
		b.handleSelect(ctx, ws, chatID, args)
	case "delete":
		b.handleDelete(ws, chatID, args)
	case "files":
		b.handleFiles(ws, chatID)
	case "remove":
		b.handleRemove(ws, chatID, args)
	case "upload":
		b.handleUpload(ctx, ws, chatID)
	case "docs":
		b.handleDocs(ws, chatID)
	case "analysis":
		b.handleAnalysis(ws, chatID, args)
	case "history":
		b.handleHistory(ws, chatID)
	case "mode":
		b.handleMode(ws, chatID, args)
	case "status":
		b.handleStatus(ctx, ws, chatID)
	default:
		b.sendMessage(chatID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(chatID int64) {
	welcome := `Welcome to FinBot! 📊
I analyse bank statements, invoices and other financial documents, and answer questions about them.

Send me a PDF, DOCX, CSV or XLSX file, then /upload it. After that just ask your questions.
Use /help to see all available commands.`

	b.sendMessage(chatID, welcome)
}

func (b *Bot) handleHelp(chatID int64) {
	help := `Available commands:
/new - Start a new conversation
/threads - List your conversations
/select <id> - Open a conversation
/delete [id] - Delete a conversation
/files - Show the selected files
/remove <n> - Drop a selected file
/upload - Analyse the selected files
/docs - List analysed documents
/analysis [n] - Show a document's analysis
/history - Show the conversation so far
/mode [upload|chat] - Show or switch the view
/status - Check the analysis service

Any other text is a question about the documents in the current conversation.`

	b.sendMessage(chatID, help)
}

func (b *Bot) handleNew(ctx context.Context, ws *workspace.Workspace, chatID int64) {
	if _, err := ws.NewThread(ctx); err != nil {
		b.logger.Error("Failed to create thread", zap.Error(err), zap.String("profile", ws.Profile()))
		b.sendErrorMessage(chatID, api.Detail(err, "Sorry, I couldn't start a new conversation."))
		return
	}
	b.showFiles(chatID, ws.UploadState().Files)
	b.sendMessage(chatID, "Started a new conversation. Send me the documents to analyse.")
}

func (b *Bot) handleThreads(ctx context.Context, ws *workspace.Workspace, chatID int64) {
	list, err := ws.Threads(ctx, true)
	if err != nil {
		b.logger.Error("Failed to list threads", zap.Error(err), zap.String("profile", ws.Profile()))
		b.sendErrorMessage(chatID, "Sorry, I couldn't load your conversations.")
		return
	}
	if len(list) == 0 {
		b.sendMessage(chatID, "You don't have any conversations yet. Send a document or use /new to start one.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(list))
	for i, t := range list {
		label := fmt.Sprintf("%d. %s", i+1, threadTitle(t))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackSelect+t.ID),
		))
	}
	b.sendWithKeyboard(chatID, formatThreads(list, ws.ActiveThread()), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleSelect(ctx context.Context, ws *workspace.Workspace, chatID int64, threadID string) {
	err := ws.SelectThread(ctx, threadID)
	if errors.Is(err, threads.ErrThreadNotFound) {
		b.sendErrorMessage(chatID, "That conversation no longer exists. Use /threads to see your conversations.")
		return
	}
	if err != nil && ws.ActiveThread() != threadID {
		b.logger.Error("Failed to select thread", zap.Error(err), zap.String("thread_id", threadID))
		b.sendErrorMessage(chatID, "Sorry, I couldn't open that conversation.")
		return
	}

	state := ws.UploadState()
	b.showFiles(chatID, state.Files)
	text := fmt.Sprintf("Opened the conversation: %d documents, %d messages.", len(state.Results), len(ws.Transcript()))
	if err != nil {
		b.logger.Warn("Thread opened with partial data", zap.Error(err), zap.String("thread_id", threadID))
		text += "\nSome of its history could not be loaded."
	}
	b.sendMessage(chatID, text)
}

func (b *Bot) handleDelete(ws *workspace.Workspace, chatID int64, threadID string) {
	if threadID == "" {
		threadID = ws.ActiveThread()
	}
	if threadID == "" {
		b.sendMessage(chatID, "No conversation selected. Use /delete <id> or pick one in /threads.")
		return
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", callbackConfirmDelete+threadID),
		tgbotapi.NewInlineKeyboardButtonData("Cancel", callbackCancel),
	))
	b.sendWithKeyboard(chatID, "Delete this conversation with all its documents and messages? This cannot be undone.", keyboard)
}

func (b *Bot) handleFiles(ws *workspace.Workspace, chatID int64) {
	files := ws.UploadState().Files
	if files.Empty() {
		b.sendMessage(chatID, "No files selected. Send me a document to add it.")
		return
	}
	// Re-post so the panel is the latest message.
	if err := b.panel(chatID).Clear(); err != nil {
		b.logger.Debug("Failed to remove old file panel", zap.Error(err))
	}
	b.showFiles(chatID, files)
}

func (b *Bot) handleRemove(ws *workspace.Workspace, chatID int64, args string) {
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 {
		b.sendMessage(chatID, "Usage: /remove <n>, where n is the number shown in /files.")
		return
	}
	state, err := ws.RemoveFile(n - 1)
	if err != nil {
		b.sendMessage(chatID, "No conversation selected.")
		return
	}
	b.showFiles(chatID, state.Files)
	if state.Files.Empty() {
		b.sendMessage(chatID, "No files selected.")
	}
}

func (b *Bot) handleUpload(ctx context.Context, ws *workspace.Workspace, chatID int64) {
	if ws.UploadState().Loading() {
		b.sendMessage(chatID, "An upload is already in progress for this conversation.")
		return
	}
	files := ws.UploadState().Files
	if files.Len() > 0 {
		b.sendMessage(chatID, fmt.Sprintf("⏳ Analysing %d file(s)...", files.Len()))
	}

	results, err := ws.Upload(ctx)
	if errors.Is(err, upload.ErrNoFiles) {
		b.sendMessage(chatID, "Please send at least one document before uploading.")
		return
	}
	if err != nil {
		msg := ws.UploadState().Error
		if msg == "" {
			msg = api.Detail(err, "Upload failed. Please try again.")
		}
		b.sendErrorMessage(chatID, msg)
		return
	}

	for _, r := range results {
		b.sendFormatted(chatID, func(st style) string { return formatAnalysis(st, r) })
	}
	b.sendMessage(chatID, "Done. Ask me anything about these documents.")
}

func (b *Bot) handleDocs(ws *workspace.Workspace, chatID int64) {
	state := ws.UploadState()
	if len(state.Results) == 0 {
		b.sendMessage(chatID, "No documents analysed in this conversation yet.")
		return
	}
	b.sendFormatted(chatID, func(st style) string {
		return formatDocuments(st, state.Results, state.Primary)
	})
}

func (b *Bot) handleAnalysis(ws *workspace.Workspace, chatID int64, args string) {
	state := ws.UploadState()
	var result *models.AnalysisResult
	if args == "" {
		result = state.Primary
	} else if n, err := strconv.Atoi(args); err == nil && n >= 1 && n <= len(state.Results) {
		result = &state.Results[n-1]
	}
	if result == nil {
		b.sendMessage(chatID, "No such document. Use /docs to list the analysed documents.")
		return
	}
	r := *result
	b.sendFormatted(chatID, func(st style) string { return formatAnalysis(st, r) })
}

func (b *Bot) handleHistory(ws *workspace.Workspace, chatID int64) {
	messages := ws.Transcript()
	if len(messages) == 0 {
		b.sendMessage(chatID, "No messages in this conversation yet.")
		return
	}
	b.sendFormatted(chatID, func(st style) string { return formatHistory(st, messages) })
}

func (b *Bot) handleMode(ws *workspace.Workspace, chatID int64, args string) {
	if args == "" {
		b.sendMessage(chatID, fmt.Sprintf("Current view: %s", ws.ViewMode()))
		return
	}
	mode := models.ViewMode(strings.ToLower(args))
	if mode != models.ViewUpload && mode != models.ViewChat {
		b.sendMessage(chatID, "Usage: /mode upload or /mode chat")
		return
	}
	if err := ws.SetViewMode(mode); err != nil {
		b.sendMessage(chatID, "No conversation selected.")
		return
	}
	switch mode {
	case models.ViewChat:
		b.handleHistory(ws, chatID)
	default:
		b.handleFiles(ws, chatID)
	}
}

func (b *Bot) handleStatus(ctx context.Context, ws *workspace.Workspace, chatID int64) {
	var sb strings.Builder
	health, err := ws.Health(ctx)
	if err != nil {
		b.logger.Warn("Health check failed", zap.Error(err))
		sb.WriteString("Analysis service: unreachable\n")
	} else {
		fmt.Fprintf(&sb, "Analysis service: %s\n", health.Status)
	}
	fmt.Fprintf(&sb, "Session: %s", ws.SessionID())
	if ws.Degraded() {
		sb.WriteString(" (temporary, storage unavailable)")
	}
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil || query.Message == nil || query.Message.Chat == nil {
		return
	}
	ws := b.workspaces.Get(ctx, profileOf(query.From))
	chatID := query.Message.Chat.ID
	ack := ""

	switch {
	case strings.HasPrefix(query.Data, callbackSelect):
		b.handleSelect(ctx, ws, chatID, strings.TrimPrefix(query.Data, callbackSelect))
	case strings.HasPrefix(query.Data, callbackConfirmDelete):
		ack = b.confirmDelete(ctx, ws, query, strings.TrimPrefix(query.Data, callbackConfirmDelete))
	case query.Data == callbackCancel:
		b.editMessage(chatID, query.Message.MessageID, "Cancelled.")
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, ack)); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) confirmDelete(ctx context.Context, ws *workspace.Workspace, query *tgbotapi.CallbackQuery, threadID string) string {
	chatID := query.Message.Chat.ID
	wasActive := ws.ActiveThread() == threadID

	if err := ws.DeleteThread(ctx, threadID); err != nil {
		b.logger.Error("Failed to delete thread", zap.Error(err), zap.String("thread_id", threadID))
		b.editMessage(chatID, query.Message.MessageID, "Could not delete the conversation: "+api.Detail(err, "please try again."))
		return "Delete failed"
	}
	if wasActive {
		if err := b.panel(chatID).Clear(); err != nil {
			b.logger.Debug("Failed to remove file panel", zap.Error(err))
		}
	}
	b.editMessage(chatID, query.Message.MessageID, "Conversation deleted.")
	return "Deleted"
}

func (b *Bot) editMessage(chatID int64, messageID int, text string) {
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		b.logger.Error("Failed to edit message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}
