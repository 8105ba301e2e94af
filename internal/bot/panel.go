package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/fileset"
	"github.com/xaenox/finbot/internal/models"
)

// selectionPanel shows a thread's selected files as one message that is
// edited in place as the selection changes.
type selectionPanel struct {
	bot    *Bot
	chatID int64
}

var _ fileset.FileList = (*selectionPanel)(nil)

func (b *Bot) panel(chatID int64) *selectionPanel {
	return &selectionPanel{bot: b, chatID: chatID}
}

func (p *selectionPanel) Assign(files []models.FileRef) error {
	if len(files) == 0 {
		return p.Clear()
	}
	b := p.bot
	b.panelMu.Lock()
	defer b.panelMu.Unlock()

	text := formatFiles(files)
	if id, ok := b.panels[p.chatID]; ok {
		_, err := b.api.Send(tgbotapi.NewEditMessageText(p.chatID, id, text))
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	}
	sent, err := b.api.Send(tgbotapi.NewMessage(p.chatID, text))
	if err != nil {
		return err
	}
	b.panels[p.chatID] = sent.MessageID
	return nil
}

func (p *selectionPanel) Clear() error {
	b := p.bot
	b.panelMu.Lock()
	defer b.panelMu.Unlock()

	id, ok := b.panels[p.chatID]
	if !ok {
		return nil
	}
	delete(b.panels, p.chatID)
	_, err := b.api.Request(tgbotapi.NewDeleteMessage(p.chatID, id))
	return err
}

// showFiles projects set onto the chat's panel.
func (b *Bot) showFiles(chatID int64, set fileset.Set) {
	if err := fileset.Project(b.panel(chatID), set); err != nil {
		b.logger.Warn("Failed to update file panel", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}
