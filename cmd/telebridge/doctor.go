package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"telebridge/internal/config"
	"telebridge/internal/provider"
	"telebridge/internal/state"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your telebridge installation",
		Long: `Verifies that the configuration, state backend, Telegram token and
OpenAI key are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("telebridge doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s (defaults + environment apply)", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := loadConfig()
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Credentials present
			if missing := config.MissingCredentials(cfg); len(missing) > 0 {
				for _, name := range missing {
					printFail("Credential: "+name, "not set")
					failed++
				}
			} else {
				printPass("Credentials", "telegram token and openai key set")
				passed++
			}

			// 4. State backend opens
			if store, err := state.New(cfg.State, logger); err != nil {
				printFail("State backend", err.Error())
				failed++
			} else {
				store.Close()
				printPass("State backend", cfg.State.Backend)
				passed++
			}

			// 5. Telegram token valid (getMe)
			if cfg.Telegram.Token != "" {
				if bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token); err != nil {
					printFail("Telegram", err.Error())
					failed++
				} else {
					printPass("Telegram", "@"+bot.Self.UserName)
					passed++
				}
			}

			// 6. OpenAI reachable with this key
			if cfg.OpenAI.APIKey != "" {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				client := provider.NewClient(provider.ClientConfig{
					APIKey:  cfg.OpenAI.APIKey,
					APIBase: cfg.OpenAI.APIBase,
					Model:   cfg.OpenAI.Model,
					Logger:  logger,
				})
				if err := client.Healthy(ctx); err != nil {
					printFail("OpenAI", err.Error())
					failed++
				} else {
					printPass("OpenAI", "reachable, key accepted")
					passed++
				}
				cancel()
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the bot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe bot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The bot is ready to run.\n")
			}
			return nil
		},
	}
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
