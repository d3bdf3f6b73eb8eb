package registry

import (
	"context"
	"sync/atomic"
)

// Holder publishes the current registry to concurrent readers. Reloads swap
// the pointer only after the new document validated cleanly.
type Holder struct {
	current atomic.Pointer[Registry]
}

func NewHolder(r *Registry) *Holder {
	h := &Holder{}
	if r != nil {
		h.current.Store(r)
	}
	return h
}

// Current returns the active registry or nil before the first load.
func (h *Holder) Current() *Registry {
	return h.current.Load()
}

// Reload loads src and swaps it in. On error the previous registry stays.
func (h *Holder) Reload(ctx context.Context, src Source) (*Registry, error) {
	r, err := Load(ctx, src)
	if err != nil {
		return nil, err
	}
	h.current.Store(r)
	return r, nil
}

// Normalize canonicalizes key with the current registry. Before the first
// load it only lower-cases and trims.
func (h *Holder) Normalize(key string) string {
	if r := h.Current(); r != nil {
		return r.Normalize(key)
	}
	return canonicalKey(key)
}
