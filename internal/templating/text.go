package templating

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeNewlines folds the double-escaped, escaped and literal newline
// encodings into '\n', trims every line and collapses runs of blank lines.
// It is idempotent.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, `\\n`, "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Elapsed describes the time since t in whole hours, whole minutes, or
// "quelques minutes" below two minutes.
func Elapsed(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	if h := int(d.Hours()); h > 0 {
		return fmt.Sprintf("%d heures", h)
	}
	if m := int(d.Minutes()); m > 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "quelques minutes"
}
