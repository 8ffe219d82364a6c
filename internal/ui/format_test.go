package ui

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/card"
	"github.com/five82/metricdeck/internal/config"
)

func TestFormatValue(t *testing.T) {
	cases := []struct {
		name   string
		value  float64
		format string
		want   string
	}{
		{"number grouped", 1523, config.FormatNumber, "1.523"},
		{"number rounded", 1234567.6, config.FormatNumber, "1.234.568"},
		{"number zero", 0, config.FormatNumber, "0"},
		{"currency", 2450000, config.FormatCurrency, "R$ 2.450.000"},
		{"currency negative", -1500.4, config.FormatCurrency, "-R$ 1.500"},
		{"percent", 3.456, config.FormatPercent, "3.5%"},
		{"kwh small", 98765.2, config.FormatKWh, "98.765 kWh"},
		{"kwh millions", 2_360_000, config.FormatKWh, "2.4M kWh"},
		{"unknown format is number", 42, "", "42"},
		{"nan", math.NaN(), config.FormatNumber, "---"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatValue(tc.value, tc.format); got != tc.want {
				t.Fatalf("FormatValue(%v, %q) = %q, want %q", tc.value, tc.format, got, tc.want)
			}
		})
	}
}

func TestCardValue(t *testing.T) {
	q := api.CardQuery{Card: "total_ativacoes", Period: api.Consolidated}

	if got := cardValue(card.State{Query: q, Loading: true}, config.FormatNumber); got != "..." {
		t.Fatalf("loading = %q, want ...", got)
	}
	if got := cardValue(card.State{Query: q, Err: errors.New("boom")}, config.FormatNumber); got != "---" {
		t.Fatalf("error without value = %q, want ---", got)
	}
	st := card.State{Query: q, HasValue: true, Metric: api.CardMetric{Value: 0}}
	if got := cardValue(st, config.FormatNumber); got != "0" {
		t.Fatalf("zero value = %q, want 0", got)
	}
}

func TestTrend(t *testing.T) {
	if _, _, ok := Trend(nil); ok {
		t.Fatal("Trend(nil) ok = true, want false")
	}
	up, down, flat := 12.34, -0.46, 0.0
	if got, dir, _ := Trend(&up); got != "▲ 12.3%" || dir != 1 {
		t.Fatalf("Trend(up) = %q, %d", got, dir)
	}
	if got, dir, _ := Trend(&down); got != "▼ 0.5%" || dir != -1 {
		t.Fatalf("Trend(down) = %q, %d", got, dir)
	}
	if got, dir, _ := Trend(&flat); got != "■ 0.0%" || dir != 0 {
		t.Fatalf("Trend(flat) = %q, %d", got, dir)
	}
}

func TestHumanizeDuration(t *testing.T) {
	cases := []struct {
		name string
		in   int64 // seconds
		want string
	}{
		{"negative", -5, "now"},
		{"subsecond", 0, "now"},
		{"seconds", 12, "12s"},
		{"minutes", 61, "1m"},
		{"hours", 2*60*60 + 10, "2h"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := humanizeDuration(time.Duration(tc.in) * time.Second)
			if got != tc.want {
				t.Fatalf("humanizeDuration(%d) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("faturamento", 20); got != "faturamento" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("faturamento", 6); got != "fatur…" {
		t.Fatalf("truncate = %q, want fatur…", got)
	}
	if got := truncate("abc", 1); got != "…" {
		t.Fatalf("truncate 1 = %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	if got := formatBytes(999); got != "999 B" {
		t.Fatalf("formatBytes = %q, want 999 B", got)
	}
	if got := formatBytes(1024); got != "1.00 KiB" {
		t.Fatalf("formatBytes = %q, want 1.00 KiB", got)
	}
	if got := formatBytes(1024 * 1024); got != "1.00 MiB" {
		t.Fatalf("formatBytes = %q, want 1.00 MiB", got)
	}
}
