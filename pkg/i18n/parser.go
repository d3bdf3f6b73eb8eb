package i18n

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one translated template: the content for an event and template
// type in one language.
type Entry struct {
	Language     string `json:"language"`
	EventKey     string `json:"event_key"`
	TemplateType string `json:"template_type"`
	Title        string `json:"title"`
	Text         string `json:"text"`
	HTML         string `json:"html,omitempty"`
}

type entryBody struct {
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
	HTML  string `json:"html" yaml:"html"`
}

// file layout: language -> event key -> template type -> body
type fileDoc map[string]map[string]map[string]entryBody

// ParseFile parses a translation file. The format is chosen by extension
// (.json, .yaml, .yml):
//
//	en:
//	  order.shipped:
//	    email:
//	      title: "Order %{order.id} shipped"
//	      text: "Hi %{user.name}, it is on its way."
//
// Entries are returned sorted by language, event key and template type.
func ParseFile(name string, content []byte) ([]Entry, error) {
	var doc fileDoc
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, errors.Join(ErrFailedToParseJSON, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, errors.Join(ErrFailedToParseYAML, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	var out []Entry
	for lang, events := range doc {
		canon := Canonical(lang)
		if canon == "" {
			return nil, fmt.Errorf("%w: empty language in %s", ErrInvalidEntry, name)
		}
		for event, types := range events {
			for typ, body := range types {
				if body.Title == "" && body.Text == "" && body.HTML == "" {
					return nil, fmt.Errorf("%w: %s/%s/%s has no content", ErrInvalidEntry, canon, event, typ)
				}
				out = append(out, Entry{
					Language:     canon,
					EventKey:     strings.ToLower(strings.TrimSpace(event)),
					TemplateType: typ,
					Title:        body.Title,
					Text:         body.Text,
					HTML:         body.HTML,
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		if a.EventKey != b.EventKey {
			return a.EventKey < b.EventKey
		}
		return a.TemplateType < b.TemplateType
	})
	return out, nil
}
