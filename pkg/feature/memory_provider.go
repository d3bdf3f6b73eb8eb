package feature

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryProvider is an in-memory Provider.
type MemoryProvider struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

// NewMemoryProvider creates a provider seeded with flags.
func NewMemoryProvider(initial ...*Flag) (*MemoryProvider, error) {
	p := &MemoryProvider{flags: make(map[string]*Flag, len(initial))}
	for _, f := range initial {
		if f == nil {
			continue
		}
		if err := p.SetFlag(context.Background(), f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (m *MemoryProvider) IsEnabled(ctx context.Context, name string, s Subject) (bool, error) {
	m.mu.RLock()
	flag, ok := m.flags[name]
	m.mu.RUnlock()

	if !ok {
		return false, ErrFlagNotFound
	}
	if !flag.Enabled {
		return false, nil
	}
	if flag.Strategy == nil {
		return true, nil
	}
	return flag.Strategy.Evaluate(ctx, s)
}

func (m *MemoryProvider) GetFlag(_ context.Context, name string) (*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flag, ok := m.flags[name]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return cloneFlag(flag), nil
}

// ListFlags returns flags sorted by name. With tags, only flags carrying
// at least one of them are returned.
func (m *MemoryProvider) ListFlags(_ context.Context, tags ...string) ([]*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Flag, 0, len(m.flags))
	for _, f := range m.flags {
		if len(tags) > 0 && !slices.ContainsFunc(tags, func(t string) bool { return slices.Contains(f.Tags, t) }) {
			continue
		}
		out = append(out, cloneFlag(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetFlag creates or replaces a flag.
func (m *MemoryProvider) SetFlag(_ context.Context, flag *Flag) error {
	if flag == nil || flag.Name == "" {
		return errors.Join(ErrInvalidFlag, errors.New("flag name cannot be empty"))
	}
	c := cloneFlag(flag)
	c.UpdatedAt = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[c.Name] = c
	return nil
}

func (m *MemoryProvider) DeleteFlag(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flags[name]; !ok {
		return ErrFlagNotFound
	}
	delete(m.flags, name)
	return nil
}

func cloneFlag(f *Flag) *Flag {
	c := *f
	c.Tags = slices.Clone(f.Tags)
	return &c
}
