package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Buffer.WindowSeconds != 2.5 {
		t.Fatalf("default buffer window changed: %v", cfg.Buffer.WindowSeconds)
	}
	if cfg.Buffer.HistoryLimit != 10 {
		t.Fatalf("default history limit changed: %v", cfg.Buffer.HistoryLimit)
	}
	if cfg.Buffer.PollTimeoutS != 25 {
		t.Fatalf("default poll timeout changed: %v", cfg.Buffer.PollTimeoutS)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TB_TEST_TOKEN", "secret-token")
	os.Unsetenv("TB_TEST_UNSET")

	tests := []struct {
		in, want string
	}{
		{"${TB_TEST_TOKEN}", "secret-token"},
		{"${TB_TEST_UNSET:-fallback}", "fallback"},
		{"${TB_TEST_UNSET}", "${TB_TEST_UNSET}"},
		{"prefix-${TB_TEST_TOKEN}-suffix", "prefix-secret-token-suffix"},
		{"no placeholders", "no placeholders"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadExpandsAndOverlaysEnv(t *testing.T) {
	t.Setenv("TB_FILE_TOKEN", "token-from-file-env")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "key-from-env")
	t.Setenv("RESPONSE_BUFFER_SECONDS", "4.5")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"telegram": {"token": "${TB_FILE_TOKEN}"},
		"openai": {"apiKey": "${OPENAI_API_KEY}"},
		"buffer": {"windowSeconds": 1.0}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Telegram.Token != "token-from-file-env" {
		t.Fatalf("file-level expansion lost: %q", cfg.Telegram.Token)
	}
	if cfg.OpenAI.APIKey != "key-from-env" {
		t.Fatalf("env overlay lost: %q", cfg.OpenAI.APIKey)
	}
	if cfg.Buffer.WindowSeconds != 4.5 {
		t.Fatalf("RESPONSE_BUFFER_SECONDS must win over the file: %v", cfg.Buffer.WindowSeconds)
	}
}

func TestApplyEnvRejectsBadBufferValue(t *testing.T) {
	t.Setenv("RESPONSE_BUFFER_SECONDS", "not-a-number")
	err := ApplyEnv(Defaults())
	if err == nil || !strings.Contains(err.Error(), "RESPONSE_BUFFER_SECONDS") {
		t.Fatalf("expected a parse error naming the variable, got %v", err)
	}
}

func TestApplyEnvClearsUnfilledPlaceholders(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("RESPONSE_BUFFER_SECONDS")

	cfg := Defaults()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("apply env failed: %v", err)
	}
	if cfg.Telegram.Token != "" || cfg.OpenAI.APIKey != "" {
		t.Fatalf("placeholders must collapse to empty, got %q / %q", cfg.Telegram.Token, cfg.OpenAI.APIKey)
	}
	missing := MissingCredentials(cfg)
	if len(missing) != 2 {
		t.Fatalf("expected both credentials reported missing, got %v", missing)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.State.Backend = "redis"
	cfg.Buffer.WindowSeconds = 0
	cfg.Buffer.PollTimeoutS = 99
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"state.backend", "buffer.windowSeconds", "buffer.pollTimeoutSeconds"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error should mention %s: %v", want, err)
		}
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("OPENAI_API_KEY", "key")
	os.Unsetenv("RESPONSE_BUFFER_SECONDS")
	os.Unsetenv("OPENAI_MODEL")

	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Buffer.HistoryLimit = 4
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Buffer.HistoryLimit != 4 {
		t.Fatalf("history limit lost in round trip: %d", loaded.Buffer.HistoryLimit)
	}
}
