package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only document version this package reads.
const CurrentVersion = 1

// Format is a configuration document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format by file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Document is the versioned configuration as written by operators. Values
// stay as raw strings so validation can report every bad label.
type Document struct {
	Version  int                 `json:"version" yaml:"version"`
	Defaults Defaults            `json:"defaults" yaml:"defaults"`
	Events   map[string]EventDoc `json:"events" yaml:"events"`
	Aliases  map[string]string   `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Defaults apply to unknown events and back the global channel policy.
type Defaults struct {
	Priority         string          `json:"priority,omitempty" yaml:"priority,omitempty"`
	Scope            string          `json:"scope,omitempty" yaml:"scope,omitempty"`
	Channels         map[string]bool `json:"channels,omitempty" yaml:"channels,omitempty"`
	DefaultChannels  []string        `json:"default_channels,omitempty" yaml:"default_channels,omitempty"`
	CriticalChannels []string        `json:"critical_channels,omitempty" yaml:"critical_channels,omitempty"`
}

type EventDoc struct {
	Description     string              `json:"description,omitempty" yaml:"description,omitempty"`
	Priority        string              `json:"priority,omitempty" yaml:"priority,omitempty"`
	Scope           string              `json:"scope,omitempty" yaml:"scope,omitempty"`
	Digest          *DigestDoc          `json:"digest,omitempty" yaml:"digest,omitempty"`
	ForcedChannels  []string            `json:"forced_channels,omitempty" yaml:"forced_channels,omitempty"`
	DefaultChannels []string            `json:"default_channels,omitempty" yaml:"default_channels,omitempty"`
	Filters         map[string][]string `json:"filters,omitempty" yaml:"filters,omitempty"`
}

type DigestDoc struct {
	DelayMinutes int    `json:"delay_minutes" yaml:"delay_minutes"`
	GroupBy      string `json:"group_by" yaml:"group_by"`
}

// Parse decodes a document. Unknown fields and unsupported versions are
// rejected as *InvalidConfigError.
func Parse(data []byte, format Format) (Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return Document{}, schemaError(err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return Document{}, schemaError(err)
		}
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if doc.Version != CurrentVersion {
		return Document{}, errors.Join(ErrUnsupportedVersion, &InvalidConfigError{Defects: []Defect{{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d, want %d", doc.Version, CurrentVersion),
		}}})
	}
	return doc, nil
}

func schemaError(err error) error {
	return &InvalidConfigError{Defects: []Defect{{Field: "document", Message: err.Error()}}}
}

// JSON returns the document as indented JSON.
func (d Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
