package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage terminates every fallback chain.
const DefaultLanguage = "en"

// Canonical returns the canonical BCP 47 form of tag ("EN_us" -> "en-US").
// Unparseable tags are returned lower-cased and trimmed.
func Canonical(tag string) string {
	tag = strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	return t.String()
}

// base returns the language subtag of a regional tag, or "" if the tag
// already is a bare language.
func base(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	b, conf := t.Base()
	if conf == language.No || b.String() == tag {
		return ""
	}
	return b.String()
}

// Chain builds the ordered, de-duplicated list of languages to try:
// preferred and its fallbacks, then tenant languages, then DefaultLanguage.
// Base languages of regional tags follow the explicit tags of the same
// tier, so an explicit fallback wins over a derived base
// ("en-GB" with fallback "fr" tries "fr" before "en").
func Chain(preferred string, fallbacks []string, tenant []string) []string {
	out := make([]string, 0, 2+2*(len(fallbacks)+len(tenant)))
	seen := make(map[string]struct{}, cap(out))

	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	tier := func(tags ...string) {
		canon := make([]string, 0, len(tags))
		for _, t := range tags {
			if c := Canonical(t); c != "" {
				canon = append(canon, c)
				add(c)
			}
		}
		for _, c := range canon {
			add(base(c))
		}
	}

	tier(append([]string{preferred}, fallbacks...)...)
	tier(tenant...)
	add(DefaultLanguage)
	return out
}

// ParseAcceptLanguage returns the languages of an Accept-Language header in
// preference order, canonicalised. Malformed headers yield nil.
func ParseAcceptLanguage(header string) []string {
	if len(header) > 4096 {
		header = header[:4096]
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}
