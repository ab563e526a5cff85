package app

import (
	"context"

	"telebridge/internal/convo"
	"telebridge/internal/domain"
)

// flushDue drains every chat whose quiet window elapsed and answers it.
func (a *App) flushDue(ctx context.Context) {
	for _, entry := range a.store.Due(a.window) {
		a.reply(ctx, entry.ChatID, entry.State)
	}
}

// reply turns the buffered fragments into one user turn, optionally enriches
// it with quote context, and asks the model for an answer. On model failure
// the user turn stays in history so the next flush retries with full context.
func (a *App) reply(ctx context.Context, chatID int64, state *convo.State) {
	turn := state.Drain()
	if turn == nil {
		return
	}
	a.store.Persist(chatID, state)

	if a.augmenter != nil {
		if joined := turn.Content.JoinedText(); joined != "" {
			block, err := a.augmenter.Augment(ctx, joined)
			if err != nil {
				a.logger.Warn("context augmentation failed", "chat_id", chatID, "error", err)
				a.recorder.RecordError("augmentation")
			} else if block != "" {
				turn.Content.AppendContext(block)
			}
		}
	}

	a.messenger.SendTyping(chatID)

	reply, err := a.provider.Generate(ctx, state.History)
	if err != nil {
		a.logger.Error("model call failed", "chat_id", chatID, "error", err)
		a.recorder.RecordError("openai_call")
		a.sendNotice(chatID, a.catalog.ModelFailure, domain.SendOptions{ReplyTo: state.LastMessageID})
		return
	}

	state.AddAssistant(reply)
	a.store.Persist(chatID, state)
	a.send(chatID, reply, domain.SendOptions{ReplyTo: state.LastMessageID})
}
