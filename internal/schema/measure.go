package schema

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var digitGroups = regexp.MustCompile(`\d+`)

// ParseMeasure converts a height or weight value in assorted upstream
// formats into a metric integer. Handles "185cm", "185 cm", "185", "6' 1\"",
// "72in", and "165 lb". Empty input returns (nil, nil); input with no usable
// number returns an error.
func ParseMeasure(value, unitLabel string) (*int, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return nil, nil
	}

	if strings.Contains(v, "'") || strings.Contains(v, "ft") {
		parts := digitGroups.FindAllString(v, -1)
		if len(parts) >= 2 {
			feet, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, fmt.Errorf("malformed imperial %s: %q", unitLabel, v)
			}
			inches, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("malformed imperial %s: %q", unitLabel, v)
			}
			return intPtr(math.Round(float64(feet*12+inches) * 2.54)), nil
		}
		if len(parts) == 1 {
			feet, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, fmt.Errorf("malformed imperial %s: %q", unitLabel, v)
			}
			return intPtr(math.Round(float64(feet) * 30.48)), nil
		}
		// No digits at all; fall through to the generic handling below
	}

	if strings.Contains(v, "in") {
		if digits := stripNonDigits(v); digits != "" {
			inches, err := strconv.Atoi(digits)
			if err != nil {
				return nil, fmt.Errorf("malformed %s: %q", unitLabel, v)
			}
			return intPtr(math.Round(float64(inches) * 2.54)), nil
		}
	}

	if strings.Contains(v, "lb") || strings.Contains(v, "pound") {
		if digits := stripNonDigits(v); digits != "" {
			pounds, err := strconv.Atoi(digits)
			if err != nil {
				return nil, fmt.Errorf("malformed %s: %q", unitLabel, v)
			}
			return intPtr(math.Round(float64(pounds) * 0.453592)), nil
		}
	}

	digits := stripNonDigits(v)
	if digits == "" {
		return nil, fmt.Errorf("no numeric data found for %s: %q", unitLabel, v)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil, fmt.Errorf("no numeric data found for %s: %q", unitLabel, v)
	}
	return &n, nil
}

func intPtr(f float64) *int {
	n := int(f)
	return &n
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
