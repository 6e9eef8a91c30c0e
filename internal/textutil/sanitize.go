package textutil

import (
	"strings"
	"unicode/utf8"
)

// typographyReplacer folds typographic quotes and dashes into ASCII.
var typographyReplacer = strings.NewReplacer(
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2018", "'",
	"\u2019", "'",
	"\u2013", "-",
	"\u2014", "-",
	"\u00a0", " ",
)

// NormalizeTypography replaces smart quotes, en/em dashes and non-breaking
// spaces with their ASCII counterparts.
func NormalizeTypography(text string) string {
	return typographyReplacer.Replace(text)
}

// SanitizeToken converts a string to a filesystem and graph safe token.
// Letters and digits are kept with their case, hyphens and underscores are
// kept, everything else becomes an underscore. Returns "unknown" for empty
// input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}

// Truncate shortens text to at most limit runes, appending suffix when it
// cut anything.
func Truncate(text string, limit int, suffix string) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + suffix
}
