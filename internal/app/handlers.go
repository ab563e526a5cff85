package app

import (
	"context"
	"net/http"
	"strings"

	"telebridge/internal/convo"
	"telebridge/internal/domain"
)

// handleInbound routes one parsed message: commands and menu shortcuts get
// immediate replies, everything else lands in the chat's turn buffer.
func (a *App) handleInbound(ctx context.Context, event domain.Inbound) {
	state := a.store.Get(event.ChatID)
	state.LastMessageID = event.MessageID
	a.recorder.RecordUpdate(event.ChatID)
	a.logger.Info("message received",
		"chat_id", event.ChatID,
		"message_id", event.MessageID,
	)

	commandText := event.Text
	if commandText == "" {
		commandText = event.Caption
	}
	if strings.HasPrefix(commandText, "/") {
		if a.handleCommand(ctx, event.ChatID, event.MessageID, commandText, state) {
			a.store.Persist(event.ChatID, state)
		}
		return
	}

	if event.Text != "" && a.handleShortcut(ctx, event.ChatID, event.MessageID, event.Text, state) {
		a.store.Persist(event.ChatID, state)
		return
	}

	mutated := false
	mediaHandled := false
	if event.Voice != nil {
		handled := a.handleVoice(ctx, event, state)
		mediaHandled = mediaHandled || handled
		mutated = mutated || handled
	}
	if len(event.Images) > 0 {
		handled := a.handleImages(ctx, event, state)
		mediaHandled = mediaHandled || handled
		mutated = mutated || handled
	}
	if event.Text != "" && !mediaHandled {
		state.QueueText(event.Text, a.store.Now())
		mutated = true
	}

	if mutated {
		a.store.Persist(event.ChatID, state)
	}
}

// handleCommand dispatches slash commands. The return value reports whether
// the state mutated and needs persisting.
func (a *App) handleCommand(ctx context.Context, chatID int64, messageID int, text string, state *convo.State) bool {
	command := strings.ToLower(strings.Fields(text)[0])
	switch command {
	case "/start":
		a.sendNotice(chatID, a.catalog.Welcome, domain.SendOptions{ReplyTo: messageID})
		a.sendMenu(chatID)
		return false
	case "/help":
		a.sendNotice(chatID, a.catalog.Help, domain.SendOptions{ReplyTo: messageID})
		return false
	case "/menu":
		a.sendMenu(chatID)
		return false
	case "/cotacoes":
		a.sendQuoteBoard(ctx, chatID, messageID)
		return false
	case "/reset":
		state.Reset()
		a.sendNotice(chatID, a.catalog.ResetDone, domain.SendOptions{ReplyTo: messageID})
		return true
	case "/sobre":
		a.sendNotice(chatID, a.catalog.About, domain.SendOptions{ReplyTo: messageID})
		return false
	default:
		a.sendNotice(chatID, a.catalog.UnknownCommand, domain.SendOptions{ReplyTo: messageID})
		return false
	}
}

// handleShortcut matches the reply-keyboard labels. Returns true when the
// text was consumed as a shortcut.
func (a *App) handleShortcut(ctx context.Context, chatID int64, messageID int, text string, state *convo.State) bool {
	switch strings.ToLower(text) {
	case "ajuda":
		a.sendNotice(chatID, a.catalog.Help, domain.SendOptions{ReplyTo: messageID})
		return true
	case "resetar conversa":
		state.Reset()
		a.sendNotice(chatID, a.catalog.ResetShortcut, domain.SendOptions{ReplyTo: messageID})
		return true
	case "conversar com ia":
		a.sendNotice(chatID, a.catalog.ChatPrompt, domain.SendOptions{ReplyTo: messageID})
		return true
	case "verificar cotacoes":
		a.sendQuoteBoard(ctx, chatID, messageID)
		return true
	}
	return false
}

func (a *App) sendMenu(chatID int64) {
	a.sendNotice(chatID, a.catalog.MenuPrompt, domain.SendOptions{Keyboard: a.catalog.MenuRows})
}

func (a *App) sendQuoteBoard(ctx context.Context, chatID int64, replyTo int) {
	if a.quotes == nil {
		a.sendNotice(chatID, a.catalog.QuotesEmpty, domain.SendOptions{ReplyTo: replyTo})
		return
	}
	body, err := a.quotes.SnapshotMessage(ctx, a.defaultCodes)
	if err != nil {
		a.logger.Warn("quote lookup failed", "error", err)
		a.recorder.RecordError("currency_lookup")
		a.sendNotice(chatID, a.catalog.QuotesFailure, domain.SendOptions{ReplyTo: replyTo})
		return
	}
	if body == "" {
		a.recorder.RecordError("currency_lookup_empty")
		a.sendNotice(chatID, a.catalog.QuotesEmpty, domain.SendOptions{ReplyTo: replyTo})
		return
	}
	a.sendNotice(chatID, a.catalog.QuotesHeader+"\n"+body, domain.SendOptions{ReplyTo: replyTo})
}

// handleVoice downloads and transcribes a voice note into the turn buffer.
// Failures produce an immediate notice instead of a buffered fragment.
func (a *App) handleVoice(ctx context.Context, event domain.Inbound, state *convo.State) bool {
	audio, err := a.messenger.Download(ctx, *event.Voice)
	var transcript string
	if err == nil {
		transcript, err = a.transcriber.Transcribe(ctx, audio, event.Voice.Mime)
	}
	if err != nil {
		a.logger.Error("voice processing failed", "chat_id", event.ChatID, "error", err)
		a.recorder.RecordError("audio_processing")
		a.sendNotice(event.ChatID, a.catalog.AudioFailure, domain.SendOptions{ReplyTo: state.LastMessageID})
		return true
	}

	if transcript == "" {
		transcript = a.catalog.EmptyTranscript
	}
	if event.Caption != "" {
		state.QueueText(event.Caption, a.store.Now())
	}
	state.QueueText(a.catalog.AudioPrefix+"\n"+transcript, a.store.Now())
	return true
}

// handleImages downloads each image into a buffered multimodal fragment,
// using the caption (or a default analysis prompt) as the leading text.
func (a *App) handleImages(ctx context.Context, event domain.Inbound, state *convo.State) bool {
	handled := false
	for _, ref := range event.Images {
		data, err := a.messenger.Download(ctx, ref)
		if err != nil {
			a.logger.Error("image download failed", "chat_id", event.ChatID, "error", err)
			a.recorder.RecordError("image_processing")
			a.sendNotice(event.ChatID, a.catalog.ImageFailure, domain.SendOptions{ReplyTo: state.LastMessageID})
			handled = true
			continue
		}

		mime := ref.Mime
		if mime == "" {
			mime = http.DetectContentType(data)
			if !strings.HasPrefix(mime, "image/") {
				mime = "image/jpeg"
			}
		}
		prompt := event.Caption
		if prompt == "" {
			prompt = a.catalog.ImagePrompt
		}
		state.QueueImage(data, mime, prompt, a.store.Now())
		handled = true
	}
	return handled
}

// sendNotice delivers a catalog text with the configured parse mode enabled.
// Model replies bypass it and go out plain through send, since the model is
// free to emit characters the formatter would reject.
func (a *App) sendNotice(chatID int64, text string, opts domain.SendOptions) {
	opts.Markup = true
	a.send(chatID, text, opts)
}

// send pushes text out, logging failures. Outbound delivery already retries
// inside the messenger; at this level an error only means the reply is lost.
func (a *App) send(chatID int64, text string, opts domain.SendOptions) {
	if err := a.messenger.Send(chatID, text, opts); err != nil {
		a.logger.Error("send failed", "chat_id", chatID, "error", err)
		a.recorder.RecordError("send")
	}
}
