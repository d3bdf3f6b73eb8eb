package feature

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type fileFlag struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Enabled     bool              `yaml:"enabled"`
	Tags        []string          `yaml:"tags"`
	Target      *TargetedStrategy `yaml:"target"`
}

// ParseFlags reads flags from YAML:
//
//	flags:
//	  - name: notifications.kill.order.shipped
//	    enabled: true
//	  - name: notifications.kill.tenant.acme
//	    enabled: true
//	    target:
//	      percentage: 50
func ParseFlags(r io.Reader) ([]*Flag, error) {
	var doc struct {
		Flags []fileFlag `yaml:"flags"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidFlag, err)
	}

	out := make([]*Flag, 0, len(doc.Flags))
	for i, ff := range doc.Flags {
		if ff.Name == "" {
			return nil, fmt.Errorf("%w: flag #%d has no name", ErrInvalidFlag, i)
		}
		f := &Flag{Name: ff.Name, Description: ff.Description, Enabled: ff.Enabled, Tags: ff.Tags}
		if ff.Target != nil {
			f.Strategy = *ff.Target
		}
		out = append(out, f)
	}
	return out, nil
}
