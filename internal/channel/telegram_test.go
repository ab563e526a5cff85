package channel

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telebridge/internal/domain"
)

// newTestTelegram points the bot client at a stub API server and records
// every sendMessage form it receives.
func newTestTelegram(t *testing.T, send http.HandlerFunc) (*Telegram, *[]url.Values) {
	t.Helper()
	var requests []url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			io.WriteString(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"bridge","username":"bridge_bot"}}`)
			return
		}
		r.ParseForm()
		requests = append(requests, r.PostForm)
		send(w, r)
	}))
	t.Cleanup(server.Close)

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint("test-token", server.URL+"/bot%s/%s")
	if err != nil {
		t.Fatalf("bot init: %v", err)
	}
	return &Telegram{
		bot:       bot,
		parseMode: "HTML",
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep:     func(time.Duration) {},
	}, &requests
}

func TestSendFallsBackToPlainOnEntityError(t *testing.T) {
	tg, requests := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		if r.PostForm.Get("parse_mode") != "" {
			io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: unsupported start tag"}`)
			return
		}
		io.WriteString(w, `{"ok":true,"result":{"message_id":10,"date":1,"chat":{"id":5,"type":"private"},"text":"ok"}}`)
	})

	if err := tg.Send(5, "<oi> tudo bem", domain.SendOptions{Markup: true}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	got := *requests
	if len(got) != 2 {
		t.Fatalf("expected formatted attempt plus plain retry, got %d requests", len(got))
	}
	if got[0].Get("parse_mode") != "HTML" {
		t.Fatalf("first attempt must carry the parse mode, got %q", got[0].Get("parse_mode"))
	}
	if got[1].Get("parse_mode") != "" {
		t.Fatal("plain retry must not carry a parse mode")
	}
}

func TestSendWithoutMarkupStaysPlain(t *testing.T) {
	tg, requests := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true,"result":{"message_id":10,"date":1,"chat":{"id":5,"type":"private"},"text":"ok"}}`)
	})

	if err := tg.Send(5, "resposta do modelo", domain.SendOptions{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	got := *requests
	if len(got) != 1 {
		t.Fatalf("expected a single request, got %d", len(got))
	}
	if got[0].Get("parse_mode") != "" {
		t.Fatalf("plain send must not carry a parse mode, got %q", got[0].Get("parse_mode"))
	}
}

func TestSplitMessageShortTextStaysWhole(t *testing.T) {
	chunks := splitMessage("oi, tudo bem?")
	if len(chunks) != 1 || chunks[0] != "oi, tudo bem?" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestSplitMessagePrefersNewlineBoundary(t *testing.T) {
	first := strings.Repeat("a", 3000)
	second := strings.Repeat("b", 2000)
	chunks := splitMessage(first + "\n" + second)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != first {
		t.Fatalf("first chunk must end at the newline, got %d bytes", len(chunks[0]))
	}
	if chunks[1] != "\n"+second {
		t.Fatalf("second chunk lost content: %d bytes", len(chunks[1]))
	}
}

func TestSplitMessageHardCutsWithoutUsableNewline(t *testing.T) {
	// The only newline sits in the first half of the window, so the split
	// happens at the hard limit instead.
	text := strings.Repeat("a", 100) + "\n" + strings.Repeat("b", telegramMaxMsgLen)
	chunks := splitMessage(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != telegramMaxMsgLen {
		t.Fatalf("expected a hard cut at %d, got %d", telegramMaxMsgLen, len(chunks[0]))
	}
	if chunks[0]+chunks[1] != text {
		t.Fatal("chunks must concatenate back to the original text")
	}
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&tgbotapi.Error{Code: 409, Message: "Conflict: terminated by other getUpdates request"}, true},
		{fmt.Errorf("poll: %w", &tgbotapi.Error{Code: 409, Message: "Conflict"}), true},
		{errors.New("Conflict: can't use getUpdates method while webhook is active"), true},
		{errors.New("telegram returned 409"), true},
		{&tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, false},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := isConflict(tt.err); got != tt.want {
			t.Errorf("isConflict(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
