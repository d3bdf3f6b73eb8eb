package i18n

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var paramRegex = regexp.MustCompile(`%\{([^}]+)\}`)

// Lookup walks a dotted path through nested maps.
func Lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for part := range strings.SplitSeq(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Interpolate replaces every %{path} in tmpl with the value found at path
// in data. With escape set, values are HTML-escaped; the template itself is
// trusted. The first missing value aborts with *MissingValueError.
func Interpolate(tmpl string, data map[string]any, escape bool) (string, error) {
	var missing error
	out := paramRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		if missing != nil {
			return match
		}
		path := strings.TrimSpace(match[2 : len(match)-1])
		v, ok := Lookup(data, path)
		if !ok {
			missing = &MissingValueError{Path: path}
			return match
		}
		s := fmt.Sprint(v)
		if escape {
			s = html.EscapeString(s)
		}
		return s
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}
