package quote

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeFoldsDiacritics(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cotação do Dólar", "cotacao do dolar"},
		{"CÂMBIO", "cambio"},
		{"já era", "ja era"},
		{"plain ascii 123", "plain ascii 123"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectCurrencyCodes(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"quanto ta o dolar hoje?", []string{"USD"}},
		{"me fala do euro e da libra", []string{"EUR", "GBP"}},
		{"cotacao de hoje por favor", []string{"EUR", "USD"}},
		{"cambio do iene", []string{"EUR", "JPY", "USD"}},
		{"preco do bitcoin", []string{"BTC"}},
		{"bom dia, tudo bem?", nil},
	}
	for _, tt := range tests {
		got := DetectCurrencyCodes(Normalize(tt.text))
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("DetectCurrencyCodes(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestDetectReferenceDateRelative(t *testing.T) {
	now := time.Date(2024, 6, 10, 15, 30, 0, 0, time.Local)

	got, ok := DetectReferenceDate("cotacao do dolar ontem", now)
	if !ok || got.Day() != 9 || got.Month() != time.June {
		t.Fatalf("ontem: got (%v, %v)", got, ok)
	}

	got, ok = DetectReferenceDate("e anteontem?", now)
	if !ok || got.Day() != 8 {
		t.Fatalf("anteontem must not match as ontem: got (%v, %v)", got, ok)
	}
}

func TestDetectReferenceDateExplicit(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.Local)
	tests := []struct {
		text string
		want time.Time
		ok   bool
	}{
		{"dolar em 03/06/2024", time.Date(2024, 6, 3, 0, 0, 0, 0, time.Local), true},
		{"dolar em 03.06.24", time.Date(2024, 6, 3, 0, 0, 0, 0, time.Local), true},
		{"dolar em 03-06-75", time.Date(1975, 6, 3, 0, 0, 0, 0, time.Local), true},
		{"euro em 2024-06-03", time.Date(2024, 6, 3, 0, 0, 0, 0, time.Local), true},
		{"euro em 3 de junho de 2024", time.Date(2024, 6, 3, 0, 0, 0, 0, time.Local), true},
		{"dolar em 31/02/2024", time.Time{}, false},
		{"dolar agora", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := DetectReferenceDate(Normalize(tt.text), now)
		if ok != tt.ok {
			t.Errorf("DetectReferenceDate(%q): ok = %v, want %v", tt.text, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("DetectReferenceDate(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
