// Package channel implements the Telegram transport behind domain.Messenger.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telebridge/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram wraps the Bot API client. Polling is driven by the caller, which
// owns the long-poll timeout; this type only parses envelopes and handles
// outbound delivery quirks (chunking, parse-mode fallback, rate limits).
type Telegram struct {
	bot       *tgbotapi.BotAPI
	parseMode string
	client    *http.Client
	logger    *slog.Logger
	sleep     func(time.Duration)
}

type TelegramConfig struct {
	Token     string
	ParseMode string // "" = plain text
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return &Telegram{
		bot:       bot,
		parseMode: cfg.ParseMode,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    cfg.Logger,
		sleep:     time.Sleep,
	}, nil
}

func (t *Telegram) Username() string { return t.bot.Self.UserName }

// Poll performs one getUpdates long poll and converts the batch. The second
// return value is the offset to pass on the next call.
func (t *Telegram) Poll(ctx context.Context, offset, timeoutSeconds int) ([]domain.Inbound, int, error) {
	u := tgbotapi.NewUpdate(offset)
	u.Timeout = timeoutSeconds
	u.AllowedUpdates = []string{"message", "edited_message"}

	updates, err := t.bot.GetUpdates(u)
	if err != nil {
		if isConflict(err) {
			return nil, offset, domain.ErrConflict
		}
		return nil, offset, fmt.Errorf("getUpdates: %w", err)
	}

	var events []domain.Inbound
	next := offset
	for _, update := range updates {
		if update.UpdateID >= next {
			next = update.UpdateID + 1
		}
		msg := update.Message
		if msg == nil {
			msg = update.EditedMessage
		}
		if msg == nil || msg.Chat == nil {
			continue
		}
		events = append(events, convertMessage(msg))
	}
	return events, next, nil
}

// isConflict detects Telegram's 409, raised when two pollers share a token
// or a webhook is still registered.
func isConflict(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return true
	}
	text := err.Error()
	return strings.Contains(text, "409") || strings.Contains(strings.ToLower(text), "conflict")
}

func convertMessage(msg *tgbotapi.Message) domain.Inbound {
	event := domain.Inbound{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      strings.TrimSpace(msg.Text),
		Caption:   strings.TrimSpace(msg.Caption),
	}

	if msg.Voice != nil {
		mime := msg.Voice.MimeType
		if mime == "" {
			mime = "audio/ogg"
		}
		event.Voice = &domain.FileRef{ID: msg.Voice.FileID, Mime: mime}
	} else if msg.Audio != nil {
		mime := msg.Audio.MimeType
		if mime == "" {
			mime = "audio/ogg"
		}
		event.Voice = &domain.FileRef{ID: msg.Audio.FileID, Mime: mime}
	}

	if len(msg.Photo) > 0 {
		// Telegram lists photo sizes smallest first.
		best := msg.Photo[len(msg.Photo)-1]
		event.Images = append(event.Images, domain.FileRef{ID: best.FileID})
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		event.Images = append(event.Images, domain.FileRef{
			ID:   msg.Document.FileID,
			Mime: msg.Document.MimeType,
		})
	}
	return event
}

// Send delivers text, splitting messages over the Telegram length limit at
// newline boundaries.
func (t *Telegram) Send(chatID int64, text string, opts domain.SendOptions) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var lastErr error
	for i, chunk := range splitMessage(text) {
		chunkOpts := opts
		if i > 0 {
			// Only the first chunk replies and carries the keyboard.
			chunkOpts.ReplyTo = 0
			chunkOpts.Keyboard = nil
		}
		if err := t.sendChunk(chatID, chunk, chunkOpts); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// splitMessage cuts text into chunks under the Telegram length limit,
// preferring newline boundaries in the second half of the window.
func splitMessage(text string) []string {
	var chunks []string
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// sendChunk sends one message with rate-limit backoff and a plain-text
// fallback when the configured parse mode rejects the content.
func (t *Telegram) sendChunk(chatID int64, text string, opts domain.SendOptions) error {
	var lastErr error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && opts.Markup && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}
		if opts.ReplyTo != 0 {
			msg.ReplyToMessageID = opts.ReplyTo
		}
		if len(opts.Keyboard) > 0 {
			msg.ReplyMarkup = buildKeyboard(opts.Keyboard)
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			t.sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram parse error, retrying as plain text",
				"error", err, "parse_mode", t.parseMode,
			)
			plain := tgbotapi.NewMessage(chatID, text)
			if opts.ReplyTo != 0 {
				plain.ReplyToMessageID = opts.ReplyTo
			}
			if _, err2 := t.bot.Send(plain); err2 == nil {
				return nil
			}
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "error", err, "backoff", backoff)
			t.sleep(backoff)
		}
	}
	t.logger.Error("telegram send failed after retries",
		"error", lastErr, "attempts", telegramMaxSendRetries+1,
	)
	return lastErr
}

func buildKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	keyboardRows := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		keyboardRows = append(keyboardRows, buttons)
	}
	keyboard := tgbotapi.NewReplyKeyboard(keyboardRows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// SendTyping shows the typing indicator. Failures are irrelevant.
func (t *Telegram) SendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := t.bot.Request(action); err != nil {
		t.logger.Debug("typing action failed", "chat_id", chatID, "error", err)
	}
}

// Download fetches a file's bytes via the Bot API file endpoint.
func (t *Telegram) Download(ctx context.Context, ref domain.FileRef) ([]byte, error) {
	fileURL, err := t.bot.GetFileDirectURL(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", ref.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", ref.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: status %d", ref.ID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ResetWebhook removes any registered webhook, which blocks getUpdates.
func (t *Telegram) ResetWebhook() error {
	_, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false})
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
