// Package app wires the transport, the model provider and the conversation
// store into the single-threaded control loop.
package app

import (
	"context"
	"log/slog"
	"time"

	"telebridge/internal/convo"
	"telebridge/internal/domain"
	"telebridge/internal/metrics"
	"telebridge/internal/persona"
)

// QuoteBoard serves the quote summary behind /cotacoes and the menu
// shortcut.
type QuoteBoard interface {
	SnapshotMessage(ctx context.Context, codes []string) (string, error)
}

// App is the bot orchestrator. All state mutation happens on the goroutine
// running Run, so no field needs locking.
type App struct {
	catalog     persona.Catalog
	messenger   domain.Messenger
	provider    domain.Provider
	transcriber domain.Transcriber
	augmenter   domain.Augmenter
	quotes      QuoteBoard
	store       *convo.Store
	recorder    *metrics.Recorder
	logger      *slog.Logger

	window       time.Duration
	pollTimeout  int
	defaultCodes []string

	sleep func(time.Duration)
}

// Config carries the app dependencies. Augmenter and Quotes may be nil when
// the quote feature is disabled.
type Config struct {
	Catalog      persona.Catalog
	Messenger    domain.Messenger
	Provider     domain.Provider
	Transcriber  domain.Transcriber
	Augmenter    domain.Augmenter
	Quotes       QuoteBoard
	Store        *convo.Store
	Recorder     *metrics.Recorder
	Logger       *slog.Logger
	Window       time.Duration
	PollTimeout  int
	DefaultCodes []string
}

func New(cfg Config) *App {
	if cfg.Window <= 0 {
		cfg.Window = convo.DefaultBufferWindow
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = convo.DefaultPollTimeout
	}
	if cfg.Catalog.SystemPrompt == "" {
		cfg.Catalog = persona.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NewRecorder("")
	}
	return &App{
		catalog:      cfg.Catalog,
		messenger:    cfg.Messenger,
		provider:     cfg.Provider,
		transcriber:  cfg.Transcriber,
		augmenter:    cfg.Augmenter,
		quotes:       cfg.Quotes,
		store:        cfg.Store,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
		window:       cfg.Window,
		pollTimeout:  cfg.PollTimeout,
		defaultCodes: cfg.DefaultCodes,
		sleep:        time.Sleep,
	}
}
