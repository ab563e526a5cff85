package domain

import (
	"context"
	"errors"
)

// ErrConflict signals that another poller is consuming updates for the same
// bot token. The control loop recovers by removing the webhook and retrying.
var ErrConflict = errors.New("another poller is consuming updates")

// FileRef points at a media payload held by the transport.
type FileRef struct {
	ID   string
	Mime string
}

// Inbound is one physical message after envelope parsing. The core never
// looks at transport fields beyond these.
type Inbound struct {
	ChatID    int64
	MessageID int
	Text      string
	Caption   string
	Voice     *FileRef
	Images    []FileRef
}

// SendOptions control outbound message presentation.
type SendOptions struct {
	ReplyTo  int        // message id to reply to; 0 = none
	Keyboard [][]string // reply keyboard rows; nil = none
	Markup   bool       // render with the configured parse mode
}

// Messenger is the inbound/outbound transport. Poll blocks for up to
// timeoutSeconds and returns parsed events plus the next update offset.
type Messenger interface {
	Poll(ctx context.Context, offset, timeoutSeconds int) ([]Inbound, int, error)
	Send(chatID int64, text string, opts SendOptions) error
	SendTyping(chatID int64)
	Download(ctx context.Context, ref FileRef) ([]byte, error)
	ResetWebhook() error
}

// Provider is the language-model backend. Any failure is equivalent at the
// orchestrator: the fallback notice path handles them all.
type Provider interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// Transcriber converts raw audio bytes into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Augmenter inspects the merged turn text and may return an extra context
// block to append before the model call. An empty block means nothing to add.
type Augmenter interface {
	Augment(ctx context.Context, text string) (string, error)
}

// StateStore persists chat-state snapshots. Load returns (nil, nil) when no
// snapshot exists. Callers treat every method as best-effort.
type StateStore interface {
	Load(chatID int64) ([]byte, error)
	Save(chatID int64, payload []byte) error
	Delete(chatID int64) error
	ListChats() ([]int64, error)
	Close() error
}
