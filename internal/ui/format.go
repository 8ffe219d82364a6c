package ui

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/five82/metricdeck/internal/card"
	"github.com/five82/metricdeck/internal/config"
)

// Card values are rendered with Brazilian grouping ("1.234.567") to match
// what the backend's users read in their own reports.
var ptBR = message.NewPrinter(language.BrazilianPortuguese)

const (
	missingValue = "---"
	loadingValue = "..."
)

// FormatValue renders a card value in the given display format.
func FormatValue(value float64, format string) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return missingValue
	}
	switch format {
	case config.FormatCurrency:
		n := int64(math.Round(value))
		if n < 0 {
			return "-R$ " + ptBR.Sprintf("%d", -n)
		}
		return "R$ " + ptBR.Sprintf("%d", n)
	case config.FormatPercent:
		return fmt.Sprintf("%.1f%%", value)
	case config.FormatKWh:
		if value >= 1_000_000 {
			return fmt.Sprintf("%.1fM kWh", value/1_000_000)
		}
		return ptBR.Sprintf("%d", int64(math.Round(value))) + " kWh"
	default:
		return ptBR.Sprintf("%d", int64(math.Round(value)))
	}
}

// cardValue is the text shown in a card box for st.
func cardValue(st card.State, format string) string {
	switch {
	case st.Loading:
		return loadingValue
	case !st.HasValue:
		return missingValue
	default:
		return FormatValue(st.Metric.Value, format)
	}
}

// Trend renders a change percentage with its direction arrow. The bool is
// false when the backend sent no change.
func Trend(change *float64) (string, int, bool) {
	if change == nil {
		return "", 0, false
	}
	c := *change
	switch {
	case c > 0:
		return fmt.Sprintf("▲ %.1f%%", math.Abs(c)), 1, true
	case c < 0:
		return fmt.Sprintf("▼ %.1f%%", math.Abs(c)), -1, true
	default:
		return fmt.Sprintf("■ %.1f%%", 0.0), 0, true
	}
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}

func formatBytes(bytes int64) string {
	const (
		kib = 1024
		mib = 1024 * 1024
	)
	switch {
	case bytes >= mib:
		return fmt.Sprintf("%.2f MiB", float64(bytes)/mib)
	case bytes >= kib:
		return fmt.Sprintf("%.2f KiB", float64(bytes)/kib)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
