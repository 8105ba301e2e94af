package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/workspace"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Options struct {
	CacheDir    string
	MaxFileSize int64
	HTTPClient  *http.Client
	Debug       bool
}

type Bot struct {
	api        telegramAPI
	workspaces *workspace.Registry
	opts       Options
	http       *http.Client
	logger     *zap.Logger

	// panelMu serializes edits of the selection panels; panels maps a chat
	// to the message id of its panel.
	panelMu sync.Mutex
	panels  map[int64]int
}

func New(token string, workspaces *workspace.Registry, opts Options, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = opts.Debug
	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return newBot(api, workspaces, opts, logger), nil
}

func newBot(api telegramAPI, workspaces *workspace.Registry, opts Options, logger *zap.Logger) *Bot {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Bot{
		api:        api,
		workspaces: workspaces,
		opts:       opts,
		http:       httpClient,
		logger:     logger.With(zap.String("component", "bot")),
		panels:     make(map[int64]int),
	}
}

// Start receives updates until ctx is cancelled. Each update is handled on
// its own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func profileOf(user *tgbotapi.User) string {
	return strconv.FormatInt(user.ID, 10)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	ws := b.workspaces.Get(ctx, profileOf(message.From))

	switch {
	case message.IsCommand():
		b.handleCommand(ctx, ws, message)
	case message.Document != nil:
		b.handleDocument(ctx, ws, message)
	case strings.TrimSpace(message.Text) != "":
		b.handleQuestion(ctx, ws, message)
	default:
		b.sendMessage(message.Chat.ID, "Send me a financial document (PDF, DOCX, CSV or XLSX) or ask a question about your documents.")
	}
}

func (b *Bot) handleQuestion(ctx context.Context, ws *workspace.Workspace, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send chat action", zap.Error(err))
	}

	ex, err := ws.Ask(ctx, strings.TrimSpace(message.Text))
	if err != nil {
		b.logger.Warn("Question failed",
			zap.Error(err),
			zap.String("profile", ws.Profile()),
			zap.String("thread_id", ws.ActiveThread()))
	}
	if ex.Answer == "" {
		b.sendErrorMessage(chatID, "Sorry, I couldn't start a conversation. Please try again.")
		return
	}

	prefix := ""
	if err != nil {
		prefix = "⚠️ "
	}
	b.sendFormatted(chatID, func(st style) string {
		return prefix + st.rich(ex.Answer)
	})
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	b.sendMessage(chatID, "⚠️ "+text)
}

// sendFormatted sends build's MarkdownV2 rendering, falling back to plain
// text if Telegram rejects the markup.
func (b *Bot) sendFormatted(chatID int64, build func(style) string) {
	msg := tgbotapi.NewMessage(chatID, truncate(build(telegramStyle)))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	_, err := b.api.Send(msg)
	if err == nil {
		return
	}
	b.logger.Warn("Formatted message rejected, sending plain text",
		zap.Error(err),
		zap.Int64("chat_id", chatID))
	b.sendMessage(chatID, truncate(build(plainStyle)))
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

const maxMessageLength = 4096

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageLength {
		return text
	}
	return string(runes[:maxMessageLength-1]) + "…"
}
