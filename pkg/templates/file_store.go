package templates

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/i18n"
)

// FileTranslationStore serves translations parsed from JSON and YAML files.
// Files under tenants/<tenant-id>/ hold that tenant's overrides; all other
// files are global. The store is read-only.
type FileTranslationStore struct {
	entries map[translationKey]Translation
}

// NewFileTranslationStore parses every .json, .yaml and .yml file in fsys.
func NewFileTranslationStore(fsys fs.FS) (*FileTranslationStore, error) {
	s := &FileTranslationStore{entries: make(map[translationKey]Translation)}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(path.Ext(p)) {
		case ".json", ".yaml", ".yml":
		default:
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		entries, err := i18n.ParseFile(p, data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		tenant := tenantFromPath(p)
		for _, e := range entries {
			t := Translation{
				EventKey:     e.EventKey,
				TemplateType: e.TemplateType,
				Language:     e.Language,
				TenantID:     tenant,
				Title:        e.Title,
				Text:         e.Text,
				HTML:         e.HTML,
			}
			s.entries[keyOf(t)] = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func tenantFromPath(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) >= 3 && parts[0] == "tenants" {
		return parts[1]
	}
	return ""
}

func (s *FileTranslationStore) FindTranslations(_ context.Context, eventKey, templateType string, languages []string) ([]Translation, error) {
	var out []Translation
	for k, t := range s.entries {
		if k.event == eventKey && k.tmpl == templateType && slices.Contains(languages, k.lang) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *FileTranslationStore) PutTranslation(context.Context, Translation) error {
	return ErrReadOnlyStore
}

// Len returns the number of loaded translations.
func (s *FileTranslationStore) Len() int { return len(s.entries) }
