// Package display prepares user content for the terminal: profanity
// censoring, markup stripping and relative times.
package display

import (
	"html"
	"strings"
	"time"
	"unicode"

	goaway "github.com/TwiN/go-away"
	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Filter holds the viewer's display settings.
type Filter struct {
	ShowProfanity bool
}

// FilterText censors profanity unless the viewer opted to see it.
func (f Filter) FilterText(text string) string {
	if f.ShowProfanity || text == "" {
		return text
	}
	return goaway.Censor(text)
}

// IsProfane reports whether text would be censored.
func IsProfane(text string) bool {
	return goaway.IsProfane(text)
}

// Sanitize strips markup so user content cannot inject into the terminal
// layout. Entities are decoded back to plain text, then control characters
// other than newline and tab are dropped so escape sequences never reach
// the terminal.
func Sanitize(text string) string {
	return strings.Map(dropControl, html.UnescapeString(strict.Sanitize(text)))
}

func dropControl(r rune) rune {
	if r == '\n' || r == '\t' {
		return r
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

// Content is Sanitize followed by the profanity filter.
func (f Filter) Content(text string) string {
	return f.FilterText(Sanitize(text))
}

// TimeAgo renders t relative to now, e.g. "3 minutes ago".
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	if d < 5*time.Second && d > -5*time.Second {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Indent prefixes every line of text with depth levels of indentation.
func Indent(text string, depth int) string {
	if depth <= 0 {
		return text
	}
	pad := strings.Repeat("  ", depth)
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}
