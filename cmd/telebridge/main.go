package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"telebridge/internal/app"
	"telebridge/internal/channel"
	"telebridge/internal/config"
	"telebridge/internal/convo"
	"telebridge/internal/metrics"
	"telebridge/internal/persona"
	"telebridge/internal/provider"
	"telebridge/internal/quote"
	"telebridge/internal/state"

	"github.com/spf13/cobra"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "telebridge",
		Short: "Telegram bridge to OpenAI with burst buffering and currency context",
		Long: "Telebridge connects a Telegram bot to OpenAI chat models. Rapid-fire\n" +
			"messages are buffered into a single turn, voice notes are transcribed,\n" +
			"images are forwarded to the model, and currency questions get real-time\n" +
			"or historical BRL quotes injected as context.",
		RunE: runBridge,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.telebridge/config.json)")

	root.AddCommand(runCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(listChatsCmd())
	root.AddCommand(resetChatCmd())
	root.AddCommand(initCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file, falling back to defaults plus environment
// overrides when no file exists yet.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("config not found, using defaults with environment overrides", "path", cfgPath)
		cfg = config.Defaults()
		if envErr := config.ApplyEnv(cfg); envErr != nil {
			return nil, envErr
		}
		return cfg, nil
	}
	return nil, err
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot (long polling)",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if missing := config.MissingCredentials(cfg); len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s (set them in the config file or environment)", strings.Join(missing, ", "))
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateStore, err := state.New(cfg.State, logger)
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	defer stateStore.Close()

	recorder := metrics.NewRecorder(cfg.Metrics.File)

	catalog, err := persona.Load(cfg.Persona.File, logger)
	if err != nil {
		return fmt.Errorf("persona: %w", err)
	}

	store := convo.NewStore(convo.StoreConfig{
		SystemPrompt: catalog.SystemPrompt,
		MaxHistory:   cfg.Buffer.HistoryLimit,
		Persist:      stateStore,
		Logger:       logger,
	})
	store.Hydrate()

	messenger, err := channel.NewTelegram(channel.TelegramConfig{
		Token:     cfg.Telegram.Token,
		ParseMode: cfg.Telegram.ParseMode,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	client := provider.NewClient(provider.ClientConfig{
		APIKey:             cfg.OpenAI.APIKey,
		APIBase:            cfg.OpenAI.APIBase,
		Model:              cfg.OpenAI.Model,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		MaxTokens:          cfg.OpenAI.MaxTokens,
		Temperature:        cfg.OpenAI.Temperature,
		Timeout:            time.Duration(cfg.OpenAI.RequestTimeoutS) * time.Second,
		Logger:             logger,
		Recorder:           recorder,
	})

	botCfg := app.Config{
		Catalog:      catalog,
		Messenger:    messenger,
		Provider:     client,
		Transcriber:  client,
		Store:        store,
		Recorder:     recorder,
		Logger:       logger,
		Window:       time.Duration(cfg.Buffer.WindowSeconds * float64(time.Second)),
		PollTimeout:  cfg.Buffer.PollTimeoutS,
		DefaultCodes: cfg.Quotes.DefaultCodes,
	}
	if cfg.Quotes.Enabled {
		quotes := quote.NewService(quote.ServiceConfig{
			Timeout:      time.Duration(cfg.Quotes.RequestTimeoutS) * time.Second,
			FallbackDays: cfg.Quotes.PTAXFallbackDays,
			Logger:       logger,
			Recorder:     recorder,
		})
		botCfg.Augmenter = quotes
		botCfg.Quotes = quotes
	}

	return app.New(botCfg).Run(ctx)
}

func statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Metrics.File == "" {
				fmt.Fprintln(os.Stderr, "Nenhum dado de metricas disponivel. Configure metrics.file na configuracao.")
				return nil
			}
			snap, err := metrics.FromFile(cfg.Metrics.File)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Nenhum dado de metricas disponivel. Configure metrics.file na configuracao.")
				return nil
			}

			if asJSON {
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Total de updates processados: %d\n", snap.TotalUpdates)
			fmt.Printf("Chats unicos atendidos: %d\n", snap.UniqueChats)
			fmt.Printf("Chamadas OpenAI: %d (prompt_tokens=%d, completion_tokens=%d)\n",
				snap.ModelCalls.Count,
				snap.ModelCalls.TotalPromptTokens,
				snap.ModelCalls.TotalCompletionTokens,
			)
			fmt.Printf("Transcricoes de audio: %d\n", snap.Transcriptions.Count)
			if len(snap.Errors) > 0 {
				fmt.Println("Erros registrados:")
				kinds := make([]string, 0, len(snap.Errors))
				for kind := range snap.Errors {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					fmt.Printf("  - %s: %d\n", kind, snap.Errors[kind])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func listChatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-chats",
		Short: "List chats with persisted state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := state.New(cfg.State, logger)
			if err != nil {
				return fmt.Errorf("state store: %w", err)
			}
			defer store.Close()

			ids, err := store.ListChats()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("Nenhum estado persistido encontrado.")
				return nil
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func resetChatCmd() *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "reset-chat",
		Short: "Remove the persisted state of one chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := state.New(cfg.State, logger)
			if err != nil {
				return fmt.Errorf("state store: %w", err)
			}
			defer store.Close()

			if err := store.Delete(chatID); err != nil {
				fmt.Fprintf(os.Stderr, "Nao foi possivel remover o estado do chat %d.\n", chatID)
				return err
			}
			fmt.Printf("Estado do chat %d removido.\n", chatID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "chat id to reset")
	cmd.MarkFlagRequired("chat-id")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}
