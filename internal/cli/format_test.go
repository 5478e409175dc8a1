package cli

import (
	"testing"
	"time"
)

func TestFormatCost(t *testing.T) {
	cases := []struct {
		in       float64
		currency string
		want     string
	}{
		{0, "USD", "$0.00"},
		{0.0042, "USD", "$0.004"},
		{4.5, "", "$4.50"},
		{150, "EUR", "€150"},
		{12345.6, "USD", "$12,346"},
		{2, "CHF", "CHF 2.00"},
	}
	for _, tc := range cases {
		if got := FormatCost(tc.in, tc.currency); got != tc.want {
			t.Fatalf("FormatCost(%v, %q) = %q, want %q", tc.in, tc.currency, got, tc.want)
		}
	}
}

func TestFormatTokens(t *testing.T) {
	for in, want := range map[int64]string{999: "999", 1234: "1.2K", 1_234_567: "1.2M"} {
		if got := FormatTokens(in); got != want {
			t.Fatalf("FormatTokens(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	for in, want := range map[time.Duration]string{
		0:                            "0s",
		45 * time.Second:             "45s",
		125 * time.Second:            "2m",
		time.Hour + 2*time.Minute:    "1h 2m",
		25*time.Hour + 3*time.Minute: "1d 1h",
	} {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatNumberAndBytes(t *testing.T) {
	if got := FormatNumber(1234567); got != "1,234,567" {
		t.Fatalf("FormatNumber = %q", got)
	}
	if got := FormatBytes(200_000); got != "200 kB" {
		t.Fatalf("FormatBytes = %q", got)
	}
	if got := FormatAgo(time.Time{}, time.Now()); got != "never" {
		t.Fatalf("FormatAgo(zero) = %q", got)
	}
}
