package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reSpaceThousands = regexp.MustCompile(`^\d{1,3}(?: \d{3})+(?:[.,]\d+)?$`)
	reCommaThousands = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	reQuantityUnit   = regexp.MustCompile(`(?i)\s*(meters|metres|meter|metre|mtrs|mtr|m)\.?$`)
	reLeadingDecimal = regexp.MustCompile(`^[-+]?(?:\d+(?:[.,]\d+)?|[.,]\d+)`)
)

// ParseDecimal reads the leading non-negative decimal of input, so "3.4 dE"
// and "2.5*" give 3.4 and 2.5. A single comma is a decimal separator: "1,5"
// and "1,500" both give 1.5. When a comma is followed by another separator,
// as in "1,500.2", it is read as grouping and only "1" is taken. Input that
// does not start with a number is not parsed.
func ParseDecimal(input string) (float64, bool) {
	s := cleanNumeric(input)
	m := reLeadingDecimal.FindString(s)
	if m == "" {
		return 0, false
	}
	if i := strings.IndexByte(m, ','); i >= 0 {
		if rest := s[len(m):]; strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, ",") {
			m = m[:i]
		} else {
			m = m[:i] + "." + m[i+1:]
		}
	}
	if m == "" || m == "-" || m == "+" {
		return 0, false
	}
	return finiteNonNegative(m)
}

// ParseQuantity parses a roll length in meters. It accepts grouped thousands
// ("1 200", "1,200"), a decimal comma and a trailing meter unit.
func ParseQuantity(input string) (float64, bool) {
	s := cleanNumeric(input)
	s = strings.TrimSpace(reQuantityUnit.ReplaceAllString(s, ""))
	if s == "" {
		return 0, false
	}
	return finiteNonNegative(normalizeNumericToken(s))
}

// FormatNumber renders a float the shortest way that parses back to the same
// value.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func cleanNumeric(input string) string {
	s := strings.ReplaceAll(input, "\u00A0", " ")
	s = strings.TrimSpace(s)
	return strings.TrimPrefix(s, "+")
}

func normalizeNumericToken(token string) string {
	if reSpaceThousands.MatchString(token) {
		token = strings.ReplaceAll(token, " ", "")
		if strings.Contains(token, ",") {
			return strings.ReplaceAll(token, ",", ".")
		}
		return token
	}
	if reCommaThousands.MatchString(token) {
		return strings.ReplaceAll(token, ",", "")
	}
	if strings.Count(token, ",") == 1 && !strings.Contains(token, ".") {
		return strings.ReplaceAll(token, ",", ".")
	}
	return token
}

func finiteNonNegative(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	if v == 0 {
		v = 0
	}
	return v, true
}
