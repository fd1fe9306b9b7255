package telegram

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/marovskiy/mailgram/internal/render"
)

// maxMessageLength is the Telegram text message size limit
const maxMessageLength = 4096

// Sender delivers rendered content to the chat endpoint with bounded
// retries, splitting oversized text into ordered chunks. Persistent
// failures are logged and the unit dropped; delivery never fails a
// polling tick.
type Sender struct {
	bot    *bot.Bot
	retry  RetryPolicy
	logger *slog.Logger
}

// NewSender creates a delivery sender
func NewSender(b *bot.Bot, logger *slog.Logger) *Sender {
	return &Sender{
		bot:    b,
		retry:  DefaultRetryPolicy(),
		logger: logger.With("component", "delivery"),
	}
}

// SendText delivers text, chunked to the platform limit
func (s *Sender) SendText(ctx context.Context, chatID int64, threadID int, text string) {
	for _, chunk := range SplitMessage(text, maxMessageLength) {
		chunk := chunk
		s.send(ctx, "text", func() error {
			_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:          chatID,
				MessageThreadID: threadID,
				Text:            chunk,
			})
			return err
		})
	}
}

// SendAttachment delivers one binary part: image-like parts go through
// the photo primitive, everything else as a document.
func (s *Sender) SendAttachment(ctx context.Context, chatID int64, threadID int, att render.Attachment) {
	upload := &models.InputFileUpload{
		Filename: att.Filename,
		Data:     bytes.NewReader(att.Data),
	}

	if strings.HasPrefix(att.ContentType, "image") {
		s.send(ctx, "photo", func() error {
			_, err := s.bot.SendPhoto(ctx, &bot.SendPhotoParams{
				ChatID:          chatID,
				MessageThreadID: threadID,
				Photo:           upload,
			})
			return err
		})
		return
	}

	s.send(ctx, "document", func() error {
		_, err := s.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:          chatID,
			MessageThreadID: threadID,
			Document:        upload,
		})
		return err
	})
}

func (s *Sender) send(ctx context.Context, kind string, fn func() error) {
	if err := s.retry.Do(ctx, fn); err != nil {
		s.logger.Warn("cannot send tg msg, dropping", "kind", kind, "error", err)
	}
}

// SplitMessage splits text into chunks of at most limit characters,
// preserving the exact character sequence.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
