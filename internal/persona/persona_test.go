package persona

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultCatalogIsComplete(t *testing.T) {
	c := Default()
	if !strings.Contains(c.SystemPrompt, "portugues do Brasil") {
		t.Fatalf("unexpected system prompt: %q", c.SystemPrompt)
	}
	if len(c.MenuRows) != 3 {
		t.Fatalf("expected 3 menu rows, got %d", len(c.MenuRows))
	}
	for name, text := range map[string]string{
		"ModelFailure": c.ModelFailure,
		"AudioFailure": c.AudioFailure,
		"ImageFailure": c.ImageFailure,
		"ImagePrompt":  c.ImagePrompt,
		"Help":         c.Help,
	} {
		if text == "" {
			t.Errorf("catalog field %s is empty", name)
		}
	}
}

func TestLoadOverlaysOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	override := "systemPrompt: prompt customizado\nmodelFailure: deu ruim, tenta de novo\n"
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatalf("write persona: %v", err)
	}

	c, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.SystemPrompt != "prompt customizado" {
		t.Fatalf("override lost: %q", c.SystemPrompt)
	}
	if c.ModelFailure != "deu ruim, tenta de novo" {
		t.Fatalf("override lost: %q", c.ModelFailure)
	}
	if c.Help != Default().Help {
		t.Fatal("untouched fields must keep their defaults")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), testLogger())
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if c.SystemPrompt != Default().SystemPrompt {
		t.Fatal("missing file must fall back to the built-in catalog")
	}
}

func TestLoadBrokenFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := os.WriteFile(path, []byte("menuRows: {not: [valid"), 0o644); err != nil {
		t.Fatalf("write persona: %v", err)
	}
	if _, err := Load(path, testLogger()); err == nil {
		t.Fatal("broken YAML must surface an error")
	}
}
