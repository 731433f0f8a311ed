package extract

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// multipliers maps abbreviated count suffixes to their scale.
var multipliers = map[string]float64{
	"K": 1e3,
	"M": 1e6,
}

// ParseCount converts a displayed engagement count such as "845", "1,204"
// or "1.2K" to an integer. Empty text is zero. Text that is not a
// recognizable count parses to zero with ok=false.
func ParseCount(s string) (n int64, ok bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, true
	}

	mult := 1.0
	last := strings.ToUpper(s[len(s)-1:])
	if m, found := multipliers[last]; found {
		mult = m
		s = strings.TrimSpace(s[:len(s)-1])
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	v := math.Round(f * mult)
	if v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// countFromLabel pulls the leading number out of an accessibility label
// such as "1234 Likes. Like".
func countFromLabel(label string) string {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	if first == "" || !unicode.IsDigit(rune(first[0])) {
		return ""
	}
	return first
}
