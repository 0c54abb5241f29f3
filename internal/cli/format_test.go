package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any amount, FormatIndianCurrency should carry the ₹ prefix, exactly
// two decimal places, Indian digit grouping, and survive a parse back.
func TestProperty_IndianCurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	indianPattern := regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

	properties.Property("FormatIndianCurrency produces valid Indian format", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)

			if amount >= 0 {
				if !strings.HasPrefix(formatted, "₹") {
					return false
				}
			} else if !strings.HasPrefix(formatted, "-₹") {
				return false
			}

			parts := strings.Split(formatted, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				return false
			}

			numPart := strings.TrimPrefix(formatted, "-")
			numPart = strings.TrimPrefix(numPart, "₹")
			numPart = strings.Split(numPart, ".")[0]
			return indianPattern.MatchString(numPart)
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatIndianCurrency preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)

			stripped := strings.ReplaceAll(formatted, ",", "")
			stripped = strings.ReplaceAll(stripped, "₹", "")
			parsed, err := strconv.ParseFloat(stripped, 64)
			if err != nil {
				return false
			}

			rounded := math.Round(amount*100) / 100
			return math.Abs(parsed-rounded) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatVolume uses correct units", prop.ForAll(
		func(volume int64) bool {
			formatted := FormatVolume(volume)
			switch {
			case volume >= 10000000:
				return strings.Contains(formatted, "Cr")
			case volume >= 100000:
				return strings.Contains(formatted, "L")
			case volume >= 1000:
				return strings.Contains(formatted, "K")
			default:
				return formatted == strconv.FormatInt(volume, 10)
			}
		},
		gen.Int64Range(0, 1e12),
	))

	properties.TestingRun(t)
}

func TestIndianNumberFormatExamples(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "₹0.00"},
		{1, "₹1.00"},
		{100, "₹100.00"},
		{1000, "₹1,000.00"},
		{10000, "₹10,000.00"},
		{100000, "₹1,00,000.00"},      // 1 lakh
		{1000000, "₹10,00,000.00"},    // 10 lakhs
		{10000000, "₹1,00,00,000.00"}, // 1 crore
		{-1234.56, "-₹1,234.56"},
		{12345678.90, "₹1,23,45,678.90"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			result := FormatIndianCurrency(tc.amount)
			if result != tc.expected {
				t.Errorf("FormatIndianCurrency(%f) = %s, want %s", tc.amount, result, tc.expected)
			}
		})
	}
}

func TestFormatPnLSign(t *testing.T) {
	if got := FormatPnL(150); !strings.HasPrefix(got, "+") {
		t.Errorf("FormatPnL(150) = %s, want + prefix", got)
	}
	if got := FormatPnL(-150); !strings.HasPrefix(got, "-") {
		t.Errorf("FormatPnL(-150) = %s, want - prefix", got)
	}
	if got := FormatPnL(0); strings.HasPrefix(got, "+") {
		t.Errorf("FormatPnL(0) = %s, want no sign", got)
	}
}

func TestFormatInterval(t *testing.T) {
	testCases := []struct {
		seconds  int64
		expected string
	}{
		{60, "1m"},
		{300, "5m"},
		{900, "15m"},
		{3600, "1h"},
		{86400, "1d"},
	}

	for _, tc := range testCases {
		if got := FormatInterval(tc.seconds); got != tc.expected {
			t.Errorf("FormatInterval(%d) = %s, want %s", tc.seconds, got, tc.expected)
		}
	}
}

func TestFormatTimeIST(t *testing.T) {
	// 10:00 UTC is 15:30 IST regardless of whether tzdata is installed.
	at := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

	if got := FormatTime(at); got != "15:30:00" {
		t.Errorf("FormatTime = %s, want 15:30:00", got)
	}
	if got := FormatDateTime(at); got != "01-Mar-2024 15:30:00" {
		t.Errorf("FormatDateTime = %s, want 01-Mar-2024 15:30:00", got)
	}

	_, offset := at.In(istLocation()).Zone()
	if offset != 5*3600+30*60 {
		t.Errorf("IST offset = %d, want 19800", offset)
	}
}
