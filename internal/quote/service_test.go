package quote

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"telebridge/internal/metrics"
)

func testService(t *testing.T, awesome http.HandlerFunc, ptax http.HandlerFunc) (*Service, *metrics.Recorder) {
	t.Helper()
	rec := metrics.NewRecorder("")
	cfg := ServiceConfig{
		Timeout:      2 * time.Second,
		FallbackDays: 2,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder:     rec,
	}
	if awesome != nil {
		server := httptest.NewServer(awesome)
		t.Cleanup(server.Close)
		cfg.AwesomeBase = server.URL
	}
	if ptax != nil {
		server := httptest.NewServer(ptax)
		t.Cleanup(server.Close)
		cfg.PTAXBase = server.URL
	}
	return NewService(cfg), rec
}

func TestSnapshotFormatsRealtimeBlock(t *testing.T) {
	awesome := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/last/USD-BRL,EUR-BRL" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		io.WriteString(w, `{
			"USDBRL":{"bid":"5.1234","pctChange":"0.35","create_date":"2024-06-03 14:22:10"},
			"EURBRL":{"bid":"5.5678","pctChange":"-1.20","create_date":"2024-06-03 14:22:10"}
		}`)
	}
	service, _ := testService(t, awesome, nil)

	block, err := service.Snapshot(context.Background(), []string{"usd", "EUR", "usd"})
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	want := "[Contexto em tempo real]\n" +
		"Cotacoes consultadas via AwesomeAPI:\n" +
		"- USD/BRL: R$ 5.1234 (variacao diaria: +0.35%)\n" +
		"- EUR/BRL: R$ 5.5678 (variacao diaria: -1.20%)\n" +
		"Dados consultados em 03/06/2024 14:22:10."
	if block != want {
		t.Fatalf("wrong block:\n%s\nwant:\n%s", block, want)
	}
}

func TestSnapshotEmptyPayloadYieldsNoBlock(t *testing.T) {
	awesome := func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}
	service, _ := testService(t, awesome, nil)

	block, err := service.Snapshot(context.Background(), []string{"USD"})
	if err != nil || block != "" {
		t.Fatalf("expected empty block, got (%q, %v)", block, err)
	}
}

func TestHistoricalWalksBackToLastBulletin(t *testing.T) {
	var queried []string
	ptax := func(w http.ResponseWriter, r *http.Request) {
		date := strings.Trim(r.URL.Query().Get("@dataCotacao"), "'")
		queried = append(queried, date)
		if date == "06-01-2024" {
			io.WriteString(w, `{"value":[{"cotacaoCompra":5.10,"cotacaoVenda":5.12,"dataHoraCotacao":"2024-06-01 13:09:33.441"}]}`)
			return
		}
		io.WriteString(w, `{"value":[]}`)
	}
	service, _ := testService(t, nil, ptax)

	// June 3rd had no bulletin; the service must find June 1st.
	target := time.Date(2024, 6, 3, 0, 0, 0, 0, time.Local)
	block, err := service.Historical(context.Background(), []string{"USD"}, target)
	if err != nil {
		t.Fatalf("historical failed: %v", err)
	}
	if len(queried) != 3 {
		t.Fatalf("expected 3 fallback queries, got %v", queried)
	}
	if !strings.Contains(block, "Dados solicitados para 03/06/2024:") {
		t.Fatalf("missing requested date header:\n%s", block)
	}
	if !strings.Contains(block, "- USD/BRL: venda R$ 5.1200 | compra R$ 5.1000") {
		t.Fatalf("missing rate line:\n%s", block)
	}
	if !strings.Contains(block, "ultimo registro antes de 03/06/2024") {
		t.Fatalf("missing fallback note:\n%s", block)
	}
}

func TestHistoricalPrefersClosingBulletin(t *testing.T) {
	ptax := func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"value":[
			{"cotacaoVenda":6.00,"tipoBoletim":"Abertura","dataHoraCotacao":"2024-06-03 10:00:00"},
			{"cotacaoVenda":6.10,"tipoBoletim":"Fechamento","dataHoraCotacao":"2024-06-03 13:00:00"}
		]}`)
	}
	service, _ := testService(t, nil, ptax)

	target := time.Date(2024, 6, 3, 0, 0, 0, 0, time.Local)
	block, err := service.Historical(context.Background(), []string{"EUR"}, target)
	if err != nil {
		t.Fatalf("historical failed: %v", err)
	}
	if !strings.Contains(block, "venda R$ 6.1000") {
		t.Fatalf("closing bulletin not preferred:\n%s", block)
	}
}

func TestAugmentWithoutCurrencyMentionIsSilent(t *testing.T) {
	service, _ := testService(t, nil, nil)
	block, err := service.Augment(context.Background(), "bom dia, tudo bem?")
	if err != nil || block != "" {
		t.Fatalf("expected no block, got (%q, %v)", block, err)
	}
}

func TestAugmentFutureDateExplains(t *testing.T) {
	service, _ := testService(t, nil, nil)
	service.now = func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.Local) }

	block, err := service.Augment(context.Background(), "cotacao do dolar em 25/12/2024")
	if err != nil {
		t.Fatalf("augment failed: %v", err)
	}
	if !strings.Contains(block, "25/12/2024, uma data futura") {
		t.Fatalf("future date not explained:\n%s", block)
	}
}

func TestAugmentUpstreamFailureBecomesPlaceholderBlock(t *testing.T) {
	awesome := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	service, rec := testService(t, awesome, nil)

	block, err := service.Augment(context.Background(), "quanto ta o dolar?")
	if err != nil {
		t.Fatalf("expected placeholder, not error: %v", err)
	}
	if !strings.HasPrefix(block, "[Contexto em tempo real]") || !strings.Contains(block, "nao respondeu") {
		t.Fatalf("wrong placeholder:\n%s", block)
	}
	if rec.Snapshot().Errors["currency_context"] != 1 {
		t.Fatal("failure must be counted")
	}
}

func TestAugmentEmptyPTAXWindowExplains(t *testing.T) {
	ptax := func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"value":[]}`)
	}
	service, rec := testService(t, nil, ptax)
	service.now = func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.Local) }

	block, err := service.Augment(context.Background(), "dolar em 08/06/2024")
	if err != nil {
		t.Fatalf("augment failed: %v", err)
	}
	if !strings.Contains(block, "apos checar alguns dias uteis") {
		t.Fatalf("empty window not explained:\n%s", block)
	}
	if rec.Snapshot().Errors["currency_context_ptax_empty"] != 1 {
		t.Fatal("empty window must be counted")
	}
}

func TestSnapshotMessageStripsContextHeader(t *testing.T) {
	awesome := func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"USDBRL":{"bid":"5.1234","pctChange":"0.35","create_date":"2024-06-03 14:22:10"}}`)
	}
	service, _ := testService(t, awesome, nil)

	body, err := service.SnapshotMessage(context.Background(), []string{"USD"})
	if err != nil {
		t.Fatalf("snapshot message failed: %v", err)
	}
	if strings.Contains(body, "[Contexto") {
		t.Fatalf("context header leaked into user message:\n%s", body)
	}
	if !strings.HasPrefix(body, "- USD/BRL: R$ 5.1234") {
		t.Fatalf("unexpected body:\n%s", body)
	}
}
