// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatTokens formats a token count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M", 1234567890 -> "1.2B"
func FormatTokens(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatCost formats an amount with the currency's symbol. Small amounts
// keep three decimals so per-call costs stay visible.
func FormatCost(cost float64, currency string) string {
	sym := currencySymbol(currency)
	switch {
	case cost >= 1000:
		return sym + humanize.Comma(int64(math.Round(cost)))
	case cost >= 100:
		return fmt.Sprintf("%s%.0f", sym, cost)
	case cost >= 1:
		return fmt.Sprintf("%s%.2f", sym, cost)
	case cost == 0:
		return sym + "0.00"
	default:
		return fmt.Sprintf("%s%.3f", sym, cost)
	}
}

func currencySymbol(c string) string {
	switch c {
	case "", "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	}
	return c + " "
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	return humanize.Comma(n)
}

// FormatBytes formats a byte count, e.g. 200000 -> "200 kB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatPercent formats a 0-100 value as a percentage string.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// FormatDuration formats d coarsely: "1h 2m", "2m", "45s".
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs <= 0 {
		return "0s"
	}
	days := secs / 86400
	hours := (secs % 86400) / 3600
	mins := (secs % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatAgo renders t relative to now, e.g. "3 hours ago".
func FormatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatDayOfWeek returns a 3-letter day abbreviation.
func FormatDayOfWeek(d time.Weekday) string {
	return d.String()[:3]
}
