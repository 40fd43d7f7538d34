package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	decimalPattern = regexp.MustCompile(`\d+(?:,\d{3})*\.\d+`)
	nonNumeric     = regexp.MustCompile(`[^\d.\-]`)
)

// CleanNumeric strips currency symbols, thousands separators and any other
// decoration from a vendor numeric string, leaving digits, dot and sign.
func CleanNumeric(input string) string {
	return nonNumeric.ReplaceAllString(input, "")
}

// ParseNumeric parses a vendor numeric string after cleaning. Returns false
// when nothing parseable remains.
func ParseNumeric(input string) (float64, bool) {
	cleaned := CleanNumeric(strings.TrimSpace(input))
	if cleaned == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// LargestDecimal finds every decimal-looking substring in a malformed vendor
// money string ("$12.50 USD 12.50" and worse) and returns the numerically
// largest one. Returns false when no decimal substring is present.
func LargestDecimal(input string) (float64, bool) {
	matches := decimalPattern.FindAllString(input, -1)
	if len(matches) == 0 {
		return ParseNumeric(input)
	}

	best := 0.0
	found := false
	for _, m := range matches {
		parsed, ok := ParseNumeric(m)
		if !ok {
			continue
		}
		if !found || parsed > best {
			best = parsed
			found = true
		}
	}
	return best, found
}

// Stringify renders a scalar the way vendor payloads expect: integers without
// a decimal point, everything else via the default format.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// IsEmptyValue reports whether a mapped scalar counts as unset: nil, empty
// string, numeric zero or false.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case float64:
		return t == 0
	case int:
		return t == 0
	case bool:
		return !t
	default:
		return false
	}
}
