package summary

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatHTML Format = "html"
)

func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatText, FormatHTML:
		return true
	}
	return false
}

// ParseFormat accepts json, text and html, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return f, nil
}

// Render renders an already built summary in f.
func Render(s Summary, f Format) (string, error) {
	switch f {
	case FormatJSON:
		b, err := json.Marshal(s)
		if err != nil {
			return "", fmt.Errorf("marshal summary: %w", err)
		}
		return string(b), nil
	case FormatText:
		return renderText(s), nil
	case FormatHTML:
		return renderHTML(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFormat, f)
}

func renderText(s Summary) string {
	var b strings.Builder
	for _, e := range s.Entries {
		b.WriteString("- ")
		b.WriteString(textLine(e.Title))
		if e.Count > 1 {
			b.WriteString(" (x")
			b.WriteString(strconv.Itoa(e.Count))
			b.WriteString(")")
		}
		b.WriteByte('\n')
		if msg := textLine(e.Message); msg != "" {
			b.WriteString("  ")
			b.WriteString(msg)
			b.WriteByte('\n')
		}
		if link := safeLink(e.Link); link != "" {
			b.WriteString("  ")
			b.WriteString(link)
			b.WriteByte('\n')
		}
	}
	if n := s.Remaining(); n > 0 {
		fmt.Fprintf(&b, "... and %d more\n", n)
	}
	return b.String()
}

func renderHTML(s Summary) string {
	var b strings.Builder
	b.WriteString(`<ul class="digest">`)
	for _, e := range s.Entries {
		b.WriteString("<li><strong>")
		b.WriteString(html.EscapeString(e.Title))
		b.WriteString("</strong>")
		if e.Count > 1 {
			b.WriteString(` <span class="count">x`)
			b.WriteString(strconv.Itoa(e.Count))
			b.WriteString("</span>")
		}
		if e.Message != "" {
			b.WriteString("<p>")
			b.WriteString(html.EscapeString(e.Message))
			b.WriteString("</p>")
		}
		if link := safeLink(e.Link); link != "" {
			b.WriteString(`<a href="`)
			b.WriteString(html.EscapeString(link))
			b.WriteString(`">`)
			b.WriteString(html.EscapeString(link))
			b.WriteString("</a>")
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	if n := s.Remaining(); n > 0 {
		fmt.Fprintf(&b, `<p class="more">and %d more</p>`, n)
	}
	return b.String()
}

// textLine collapses a field onto one line and drops control characters.
func textLine(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func safeLink(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return ""
		}
		return u.String()
	case "mailto":
		return u.String()
	}
	return ""
}
