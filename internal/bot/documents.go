package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/models"
	"github.com/xaenox/finbot/internal/workspace"
)

var acceptedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".csv":  true,
	".xlsx": true,
}

var errUnsupportedType = errors.New("unsupported file type")

func checkDocument(doc *tgbotapi.Document, maxSize int64) error {
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if !acceptedExtensions[ext] {
		return fmt.Errorf("%w: %q", errUnsupportedType, doc.FileName)
	}
	if maxSize > 0 && int64(doc.FileSize) > maxSize {
		return fmt.Errorf("%s is larger than %s", doc.FileName, humanSize(maxSize))
	}
	return nil
}

func (b *Bot) handleDocument(ctx context.Context, ws *workspace.Workspace, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	doc := message.Document
	log := b.logger.With(zap.String("profile", ws.Profile()), zap.String("file", doc.FileName))

	if err := checkDocument(doc, b.opts.MaxFileSize); err != nil {
		if errors.Is(err, errUnsupportedType) {
			b.sendErrorMessage(chatID, fmt.Sprintf("I can't analyse %s. Please send a PDF, DOCX, CSV or XLSX file.", doc.FileName))
		} else {
			b.sendErrorMessage(chatID, err.Error())
		}
		return
	}

	ref, err := b.download(ctx, ws.Profile(), doc)
	if err != nil {
		log.Error("Failed to download document", zap.Error(err))
		b.sendErrorMessage(chatID, "Sorry, I couldn't receive that file. Please send it again.")
		return
	}

	state, err := ws.AddFiles(ctx, []models.FileRef{ref})
	if err != nil {
		log.Error("Failed to add file", zap.Error(err))
		b.sendErrorMessage(chatID, "Sorry, I couldn't start a conversation for that file. Please try again.")
		return
	}
	b.showFiles(chatID, state.Files)
}

// download stores doc under the profile's cache directory. Files are keyed
// by Telegram's unique file id, so receiving the same file again reuses
// the stored copy and its modification time.
func (b *Bot) download(ctx context.Context, profile string, doc *tgbotapi.Document) (models.FileRef, error) {
	dir := filepath.Join(b.opts.CacheDir, profile, doc.FileUniqueID)
	path := filepath.Join(dir, filepath.Base(doc.FileName))

	if info, err := os.Stat(path); err == nil {
		return fileRef(doc.FileName, path, info), nil
	}

	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return models.FileRef{}, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.FileRef{}, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return models.FileRef{}, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.FileRef{}, fmt.Errorf("fetch file: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.FileRef{}, err
	}
	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return models.FileRef{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return models.FileRef{}, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.FileRef{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return models.FileRef{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return models.FileRef{}, err
	}
	return fileRef(doc.FileName, path, info), nil
}

func fileRef(name, path string, info os.FileInfo) models.FileRef {
	return models.FileRef{
		Name:         name,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
		Path:         path,
	}
}
