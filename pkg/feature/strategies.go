package feature

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
)

// Bucket maps id and salt to a stable bucket in [0, 100).
// It is the FNV-1a 32-bit hash of id + ":" + salt, modulo 100.
func Bucket(id, salt string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	h.Write([]byte(":"))
	h.Write([]byte(salt))
	return int(h.Sum32() % 100)
}

// AlwaysStrategy returns the same value for everyone.
type AlwaysStrategy struct {
	Value bool
}

func (s AlwaysStrategy) Evaluate(context.Context, Subject) (bool, error) {
	return s.Value, nil
}

// TargetedStrategy enables a flag for listed recipients, tenants or groups,
// or for a stable percentage of recipients. DenyList wins over everything,
// AllowList over the remaining criteria.
type TargetedStrategy struct {
	RecipientIDs []string `json:"recipient_ids,omitempty" yaml:"recipient_ids,omitempty"`
	TenantIDs    []string `json:"tenant_ids,omitempty" yaml:"tenant_ids,omitempty"`
	Groups       []string `json:"groups,omitempty" yaml:"groups,omitempty"`
	Percentage   *int     `json:"percentage,omitempty" yaml:"percentage,omitempty"`
	AllowList    []string `json:"allow_list,omitempty" yaml:"allow_list,omitempty"`
	DenyList     []string `json:"deny_list,omitempty" yaml:"deny_list,omitempty"`
	Salt         string   `json:"salt,omitempty" yaml:"salt,omitempty"`
}

func (t TargetedStrategy) Evaluate(_ context.Context, s Subject) (bool, error) {
	if t.empty() {
		return false, ErrInvalidStrategy
	}
	if len(t.DenyList) > 0 && (s.RecipientID == "" || slices.Contains(t.DenyList, s.RecipientID)) {
		return false, nil
	}
	if s.RecipientID != "" && slices.Contains(t.AllowList, s.RecipientID) {
		return true, nil
	}
	if s.RecipientID != "" && slices.Contains(t.RecipientIDs, s.RecipientID) {
		return true, nil
	}
	if s.TenantID != "" && slices.Contains(t.TenantIDs, s.TenantID) {
		return true, nil
	}
	for _, g := range s.Groups {
		if slices.Contains(t.Groups, g) {
			return true, nil
		}
	}
	if t.Percentage == nil {
		return false, nil
	}

	p := *t.Percentage
	switch {
	case p < 0 || p > 100:
		return false, errors.Join(ErrInvalidStrategy, errors.New("percentage must be between 0 and 100"))
	case p == 0:
		return false, nil
	case p == 100:
		return true, nil
	case s.RecipientID == "":
		return false, nil
	}
	return Bucket(s.RecipientID, t.Salt) < p, nil
}

func (t TargetedStrategy) empty() bool {
	return t.RecipientIDs == nil && t.TenantIDs == nil && t.Groups == nil &&
		t.Percentage == nil && t.AllowList == nil && t.DenyList == nil
}

// CompositeStrategy combines strategies with "and" or "or".
type CompositeStrategy struct {
	Strategies []Strategy
	Operator   string
}

func (c CompositeStrategy) Evaluate(ctx context.Context, s Subject) (bool, error) {
	if len(c.Strategies) == 0 {
		return false, ErrInvalidStrategy
	}
	switch c.Operator {
	case "and":
		for _, st := range c.Strategies {
			ok, err := st.Evaluate(ctx, s)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "or":
		for _, st := range c.Strategies {
			ok, err := st.Evaluate(ctx, s)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, errors.Join(ErrInvalidStrategy, errors.New("composite operator must be 'and' or 'or'"))
}

func NewAndStrategy(strategies ...Strategy) Strategy {
	return CompositeStrategy{Strategies: strategies, Operator: "and"}
}

func NewOrStrategy(strategies ...Strategy) Strategy {
	return CompositeStrategy{Strategies: strategies, Operator: "or"}
}
