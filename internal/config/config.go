package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for telebridge.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Telegram TelegramConfig `json:"telegram"`
	OpenAI   OpenAIConfig   `json:"openai"`
	Buffer   BufferConfig   `json:"buffer"`
	State    StateConfig    `json:"state"`
	Quotes   QuotesConfig   `json:"quotes"`
	Metrics  MetricsConfig  `json:"metrics"`
	Persona  PersonaConfig  `json:"persona"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // debug | info | warn | error
}

type TelegramConfig struct {
	Token     string `json:"token"`
	ParseMode string `json:"parseMode"` // "" = plain text
}

type OpenAIConfig struct {
	APIKey             string  `json:"apiKey"`
	APIBase            string  `json:"apiBase,omitempty"`
	Model              string  `json:"model"`
	TranscriptionModel string  `json:"transcriptionModel"`
	MaxTokens          int     `json:"maxTokens"`
	Temperature        float64 `json:"temperature"`
	RequestTimeoutS    int     `json:"requestTimeoutSeconds"`
}

// BufferConfig tunes the aggregation core: how long a burst may stay quiet
// before it flushes, how much history each chat keeps, and how long the
// idle long-poll blocks.
type BufferConfig struct {
	WindowSeconds float64 `json:"windowSeconds"`
	HistoryLimit  int     `json:"historyLimit"`
	PollTimeoutS  int     `json:"pollTimeoutSeconds"`
}

type StateConfig struct {
	Backend string `json:"backend"` // json | sqlite | none
	Dir     string `json:"dir,omitempty"`
	DBPath  string `json:"dbPath,omitempty"`
}

type QuotesConfig struct {
	Enabled          bool     `json:"enabled"`
	DefaultCodes     []string `json:"defaultCodes"`
	RequestTimeoutS  int      `json:"requestTimeoutSeconds"`
	PTAXFallbackDays int      `json:"ptaxFallbackDays"`
}

type MetricsConfig struct {
	File string `json:"file,omitempty"` // empty disables the on-disk snapshot
}

type PersonaConfig struct {
	File string `json:"file,omitempty"` // optional YAML overriding the built-in texts
}

// DefaultConfigDir returns the default config directory (~/.telebridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".telebridge"
	}
	return filepath.Join(home, ".telebridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Defaults returns a config with every knob at its documented default.
func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{LogLevel: "info"},
		Telegram: TelegramConfig{
			Token:     "${TELEGRAM_BOT_TOKEN}",
			ParseMode: "",
		},
		OpenAI: OpenAIConfig{
			APIKey:             "${OPENAI_API_KEY}",
			Model:              "gpt-4o-mini",
			TranscriptionModel: "gpt-4o-mini-transcribe",
			MaxTokens:          700,
			Temperature:        0.7,
			RequestTimeoutS:    20,
		},
		Buffer: BufferConfig{
			WindowSeconds: 2.5,
			HistoryLimit:  10,
			PollTimeoutS:  25,
		},
		State: StateConfig{
			Backend: "json",
			Dir:     filepath.Join(dir, "chats"),
			DBPath:  filepath.Join(dir, "telebridge.db"),
		},
		Quotes: QuotesConfig{
			Enabled:          true,
			DefaultCodes:     []string{"USD", "EUR", "GBP"},
			RequestTimeoutS:  20,
			PTAXFallbackDays: 7,
		},
		Metrics: MetricsConfig{File: filepath.Join(dir, "metrics.json")},
	}
}

// Load reads, env-expands, parses and validates a config file.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.State.Dir = ExpandPath(cfg.State.Dir)
	cfg.State.DBPath = ExpandPath(cfg.State.DBPath)
	cfg.Metrics.File = ExpandPath(cfg.Metrics.File)
	cfg.Persona.File = ExpandPath(cfg.Persona.File)

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays the environment variables the bot has always honored on
// top of the parsed config. Unset variables leave the config untouched, and
// unexpanded ${VAR} placeholders collapse to empty.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_TRANSCRIPTION_MODEL")); v != "" {
		cfg.OpenAI.TranscriptionModel = v
	}
	if v := strings.TrimSpace(os.Getenv("RESPONSE_BUFFER_SECONDS")); v != "" {
		window, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RESPONSE_BUFFER_SECONDS must be a number (e.g. 2.5): %w", err)
		}
		cfg.Buffer.WindowSeconds = window
	}

	// Placeholders that survived expansion mean the variable was never set.
	if strings.HasPrefix(cfg.Telegram.Token, "${") {
		cfg.Telegram.Token = ""
	}
	if strings.HasPrefix(cfg.OpenAI.APIKey, "${") {
		cfg.OpenAI.APIKey = ""
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep the placeholder when nothing can fill it
		}
		return val
	})
}

// Save writes a config file, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has usable values. Credentials are not
// checked here: admin commands work without them, and the run command
// verifies them itself.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Buffer.WindowSeconds <= 0 {
		errs = append(errs, "buffer.windowSeconds must be positive")
	}
	if cfg.Buffer.HistoryLimit < 1 {
		errs = append(errs, "buffer.historyLimit must be >= 1")
	}
	if cfg.Buffer.PollTimeoutS < 1 || cfg.Buffer.PollTimeoutS > 50 {
		errs = append(errs, "buffer.pollTimeoutSeconds must be between 1 and 50")
	}
	switch cfg.State.Backend {
	case "json", "sqlite", "none":
	default:
		errs = append(errs, "state.backend must be one of: json, sqlite, none")
	}
	if cfg.State.Backend == "json" && cfg.State.Dir == "" {
		errs = append(errs, "state.dir is required for the json backend")
	}
	if cfg.State.Backend == "sqlite" && cfg.State.DBPath == "" {
		errs = append(errs, "state.dbPath is required for the sqlite backend")
	}
	if cfg.OpenAI.Temperature < 0 || cfg.OpenAI.Temperature > 2 {
		errs = append(errs, "openai.temperature must be between 0 and 2")
	}
	if cfg.OpenAI.MaxTokens < 1 {
		errs = append(errs, "openai.maxTokens must be >= 1")
	}
	if cfg.Quotes.PTAXFallbackDays < 0 {
		errs = append(errs, "quotes.ptaxFallbackDays must be >= 0")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MissingCredentials lists the required credentials the config does not
// carry. The run command refuses to start while this is non-empty.
func MissingCredentials(cfg *Config) []string {
	var missing []string
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	return missing
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
