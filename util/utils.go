package util

import (
	"bytes"
	"strings"
	"time"
	"unicode"
)

// Layouts used by the event schema.
const (
	CalendarDayLayout = "2006-01-02"
	ClockTimeLayout   = "15:04"
)

func NotBlank(value string) bool {
	return strings.TrimSpace(value) != ""
}

func formatTime(format string, t time.Time) string {
	return t.Format(format)
}

// CalendarDay formats t as YYYY-MM-DD.
func CalendarDay(t time.Time) string {
	return formatTime(CalendarDayLayout, t)
}

// Slugify lowercases s, keeps ASCII letters, digits, '_' and '-', and turns
// whitespace into '-'. German umlauts are transliterated first.
func Slugify(s string) string {
	s = umlauts.Replace(s)

	var buf bytes.Buffer

	for _, r := range s {
		switch {
		case r > unicode.MaxASCII:
			continue
		case unicode.IsLetter(r):
			buf.WriteRune(unicode.ToLower(r))
		case unicode.IsDigit(r), r == '_', r == '-':
			buf.WriteRune(r)
		case unicode.IsSpace(r):
			buf.WriteRune('-')
		}
	}

	return buf.String()
}

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "Ä", "Ae", "Ö", "Oe", "Ü", "Ue", "ß", "ss")

// StringPtr returns a pointer to the given string, or nil when it is blank.
func StringPtr(s string) *string {
	if !NotBlank(s) {
		return nil
	}
	return &s
}
