package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"telebridge/internal/metrics"
)

const (
	defaultAwesomeBase = "https://economia.awesomeapi.com.br"
	defaultPTAXBase    = "https://olinda.bcb.gov.br/olinda/servico/PTAX/versao/v1/odata"
)

// Service fetches quotes and formats the pt-BR context blocks injected into
// the model prompt. Expected upstream failures become explanatory blocks
// instead of errors, so a flaky quote API never blocks a reply.
type Service struct {
	client       *http.Client
	awesomeBase  string
	ptaxBase     string
	fallbackDays int
	logger       *slog.Logger
	recorder     *metrics.Recorder
	now          func() time.Time
}

type ServiceConfig struct {
	Timeout      time.Duration
	FallbackDays int
	Logger       *slog.Logger
	Recorder     *metrics.Recorder

	// Endpoint overrides, used by tests.
	AwesomeBase string
	PTAXBase    string
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.FallbackDays < 0 {
		cfg.FallbackDays = 0
	}
	if cfg.AwesomeBase == "" {
		cfg.AwesomeBase = defaultAwesomeBase
	}
	if cfg.PTAXBase == "" {
		cfg.PTAXBase = defaultPTAXBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		client:       &http.Client{Timeout: cfg.Timeout},
		awesomeBase:  strings.TrimSuffix(cfg.AwesomeBase, "/"),
		ptaxBase:     strings.TrimSuffix(cfg.PTAXBase, "/"),
		fallbackDays: cfg.FallbackDays,
		logger:       cfg.Logger,
		recorder:     cfg.Recorder,
		now:          time.Now,
	}
}

// awesomeQuote is one entry of AwesomeAPI's /json/last response. Every field
// arrives as a string.
type awesomeQuote struct {
	Bid        string `json:"bid"`
	Ask        string `json:"ask"`
	PctChange  string `json:"pctChange"`
	CreateDate string `json:"create_date"`
	Timestamp  string `json:"timestamp"`
}

// Snapshot fetches current rates for the given codes against BRL and formats
// the real-time context block. Returns "" when the API answered but carried
// none of the requested pairs.
func (s *Service) Snapshot(ctx context.Context, codes []string) (string, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return "", nil
	}

	pairs := make([]string, len(codes))
	for i, code := range codes {
		pairs[i] = code + "-BRL"
	}
	endpoint := s.awesomeBase + "/json/last/" + strings.Join(pairs, ",")

	var payload map[string]awesomeQuote
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return "", fmt.Errorf("awesomeapi: %w", err)
	}

	var lines []string
	var timestampDisplay string
	for _, code := range codes {
		info, ok := payload[code+"BRL"]
		if !ok {
			continue
		}
		price := info.Bid
		if price == "" {
			price = info.Ask
		}
		line := fmt.Sprintf("- %s/BRL: %s%s", code, formatPrice(price), formatVariation(info.PctChange))
		lines = append(lines, line)

		if timestampDisplay == "" {
			ref := info.CreateDate
			if ref == "" {
				ref = info.Timestamp
			}
			timestampDisplay = formatQuoteTimestamp(ref)
		}
	}
	if len(lines) == 0 {
		return "", nil
	}

	block := "[Contexto em tempo real]\nCotacoes consultadas via AwesomeAPI:\n" + strings.Join(lines, "\n")
	if timestampDisplay != "" {
		block += "\nDados consultados em " + timestampDisplay + "."
	}
	return block, nil
}

// ptaxRecord is one entry of the Olinda OData response.
type ptaxRecord struct {
	CotacaoCompra   *float64 `json:"cotacaoCompra"`
	CotacaoVenda    *float64 `json:"cotacaoVenda"`
	DataHoraCotacao string   `json:"dataHoraCotacao"`
	TipoBoletim     string   `json:"tipoBoletim"`
}

type ptaxResponse struct {
	Value []ptaxRecord `json:"value"`
}

type ptaxQuote struct {
	record    ptaxRecord
	reference time.Time
}

// Historical fetches official PTAX rates for the given day, walking back up
// to the configured number of days when the requested date has no bulletin
// (weekends, holidays). Returns "" when nothing was published in the window.
func (s *Service) Historical(ctx context.Context, codes []string, target time.Time) (string, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return "", nil
	}

	requestedDisplay := target.Format("02/01/2006")
	var lines []string
	for _, code := range codes {
		quote, err := s.fetchPTAX(ctx, code, target)
		if err != nil {
			return "", err
		}
		if quote == nil {
			continue
		}
		lines = append(lines, formatPTAXLine(code, *quote, target))
	}
	if len(lines) == 0 {
		return "", nil
	}

	return "[Contexto historico]\nCotacoes oficiais do Banco Central (PTAX).\n" +
		"Dados solicitados para " + requestedDisplay + ":\n" + strings.Join(lines, "\n"), nil
}

func (s *Service) fetchPTAX(ctx context.Context, code string, target time.Time) (*ptaxQuote, error) {
	reference := target
	for attempt := 0; attempt <= s.fallbackDays; attempt++ {
		record, err := s.queryPTAX(ctx, code, reference)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return &ptaxQuote{record: *record, reference: reference}, nil
		}
		reference = reference.AddDate(0, 0, -1)
	}
	return nil, nil
}

func (s *Service) queryPTAX(ctx context.Context, code string, reference time.Time) (*ptaxRecord, error) {
	dateParam := reference.Format("01-02-2006")
	var endpoint string
	if code == "USD" {
		endpoint = fmt.Sprintf(
			"%s/CotacaoDolarDia(dataCotacao=@dataCotacao)?@dataCotacao='%s'&$format=json",
			s.ptaxBase, dateParam,
		)
	} else {
		endpoint = fmt.Sprintf(
			"%s/CotacaoMoedaPeriodo(moeda=@moeda,dataInicial=@dataInicial,dataFinalCotacao=@dataFinalCotacao)"+
				"?@moeda='%s'&@dataInicial='%s'&@dataFinalCotacao='%s'&$top=1&$orderby=%s&$format=json",
			s.ptaxBase, code, dateParam, dateParam, url.QueryEscape("dataHoraCotacao desc"),
		)
	}

	var payload ptaxResponse
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("ptax: %w", err)
	}
	if len(payload.Value) == 0 {
		return nil, nil
	}
	if code == "USD" {
		return &payload.Value[0], nil
	}
	// Non-dollar currencies publish several bulletins a day; prefer the
	// closing one.
	for i, entry := range payload.Value {
		if strings.EqualFold(strings.TrimSpace(entry.TipoBoletim), "fechamento") {
			return &payload.Value[i], nil
		}
	}
	return &payload.Value[0], nil
}

func (s *Service) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Augment implements the context augmenter over the aggregated user text.
// No currency mention means no block. Upstream failures and empty results
// turn into explanatory blocks the model relays to the user.
func (s *Service) Augment(ctx context.Context, text string) (string, error) {
	normalized := Normalize(text)
	codes := DetectCurrencyCodes(normalized)
	if len(codes) == 0 {
		return "", nil
	}

	if reference, ok := DetectReferenceDate(normalized, s.now()); ok {
		return s.historicalBlock(ctx, codes, reference), nil
	}

	block, err := s.Snapshot(ctx, codes)
	if err != nil {
		s.logger.Warn("quote snapshot failed", "codes", codes, "error", err)
		s.recordError("currency_context")
		return "[Contexto em tempo real]\n" +
			"Solicitei cotacoes de moedas, mas o servico externo nao respondeu. " +
			"Explique ao usuario que pode tentar novamente em instantes.", nil
	}
	return block, nil
}

func (s *Service) historicalBlock(ctx context.Context, codes []string, reference time.Time) string {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	display := reference.Format("02/01/2006")

	if reference.After(today) {
		return "[Contexto historico]\n" +
			"O usuario pediu cotacoes para " + display + ", uma data futura. " +
			"Explique que apenas datas ate hoje estao disponiveis."
	}

	block, err := s.Historical(ctx, codes, reference)
	if err != nil {
		s.logger.Warn("ptax lookup failed", "codes", codes, "date", display, "error", err)
		s.recordError("currency_context_ptax")
		return "[Contexto historico]\n" +
			"Tentei consultar o Banco Central para " + display + ", mas ocorreu um erro externo. " +
			"Avise que o usuario pode tentar novamente em instantes."
	}
	if block == "" {
		s.recordError("currency_context_ptax_empty")
		return "[Contexto historico]\n" +
			"Nao encontrei cotacoes oficiais do Banco Central para " + display + " apos checar alguns dias uteis. " +
			"Explique que apenas datas uteis com divulgacao da PTAX estao disponiveis."
	}
	return block
}

// SnapshotMessage formats the /cotacoes reply body: the real-time lines
// without the context header. Returns "" when no rates came back.
func (s *Service) SnapshotMessage(ctx context.Context, codes []string) (string, error) {
	block, err := s.Snapshot(ctx, codes)
	if err != nil {
		return "", err
	}
	if block == "" {
		return "", nil
	}

	lines := strings.Split(block, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "[Contexto em tempo real]") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.ToLower(lines[0]), "cotacoes consultadas") {
		lines = lines[1:]
	}
	body := strings.TrimSpace(strings.Join(lines, "\n"))
	if body == "" {
		body = "Nao recebi valores do servico externo desta vez."
	}
	return body, nil
}

func (s *Service) recordError(category string) {
	if s.recorder != nil {
		s.recorder.RecordError(category)
	}
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, code := range codes {
		normalized := strings.ToUpper(strings.TrimSpace(code))
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func formatPrice(value string) string {
	if value == "" {
		return "-"
	}
	number, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		return value
	}
	return fmt.Sprintf("R$ %.4f", number)
}

func formatVariation(value string) string {
	if value == "" {
		return ""
	}
	number, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		return fmt.Sprintf(" (variacao diaria: %s)", value)
	}
	return fmt.Sprintf(" (variacao diaria: %+.2f%%)", number)
}

// formatQuoteTimestamp renders AwesomeAPI's create_date (or a raw Unix
// timestamp) as dd/mm/yyyy hh:mm:ss.
func formatQuoteTimestamp(value string) string {
	if value == "" {
		return ""
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).Format("02/01/2006 15:04:05")
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04:05-07:00"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("02/01/2006 15:04:05")
		}
	}
	return value
}

func formatPTAXLine(code string, quote ptaxQuote, requested time.Time) string {
	sale := "-"
	if quote.record.CotacaoVenda != nil {
		sale = fmt.Sprintf("R$ %.4f", *quote.record.CotacaoVenda)
	}
	line := fmt.Sprintf("- %s/BRL: venda %s", code, sale)
	if quote.record.CotacaoCompra != nil {
		line += fmt.Sprintf(" | compra R$ %.4f", *quote.record.CotacaoCompra)
	}

	var suffixes []string
	if ts, ok := parsePTAXDatetime(quote.record.DataHoraCotacao); ok {
		suffixes = append(suffixes, ts.Format("02/01/2006 15:04"))
	} else {
		suffixes = append(suffixes, quote.reference.Format("02/01/2006"))
	}
	if !sameDay(quote.reference, requested) {
		suffixes = append(suffixes, "ultimo registro antes de "+requested.Format("02/01/2006"))
	}
	if len(suffixes) > 0 {
		line += " — " + strings.Join(suffixes, " | ")
	}
	return line
}

func parsePTAXDatetime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02 15:04:05.999", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
