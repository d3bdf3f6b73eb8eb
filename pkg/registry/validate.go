package registry

import (
	"errors"
	"slices"
)

// ValidateAll returns every defect found while building the registry. An
// empty result means the document is well formed.
func (r *Registry) ValidateAll() []Defect {
	return slices.Clone(r.defects)
}

// Validate parses and builds data without keeping the registry. Parse
// failures are returned as the single defect of the document.
func Validate(data []byte, format Format) []Defect {
	doc, err := Parse(data, format)
	if err != nil {
		var invalid *InvalidConfigError
		if errors.As(err, &invalid) {
			return invalid.Defects
		}
		return []Defect{{Field: "document", Message: err.Error()}}
	}
	return New(doc).ValidateAll()
}
