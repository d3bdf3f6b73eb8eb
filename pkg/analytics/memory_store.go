package analytics

import (
	"context"
	"sync"
	"time"
)

type hourKey struct {
	Key
	hour int64
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	usage  map[Key]*Counters
	hourly map[hourKey]*Counters
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usage:  make(map[Key]*Counters),
		hourly: make(map[hourKey]*Counters),
	}
}

func (s *MemoryStore) Increment(_ context.Context, inc Increment) error {
	hk := hourKey{Key: inc.Key, hour: inc.Hour.Truncate(time.Hour).Unix()}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range []*Counters{counter(s.usage, inc.Key), counter(s.hourly, hk)} {
		c.Add(inc.Counters)
	}
	return nil
}

func counter[K comparable](m map[K]*Counters, k K) *Counters {
	c, ok := m[k]
	if !ok {
		c = &Counters{}
		m[k] = c
	}
	return c
}

func (s *MemoryStore) Usage(_ context.Context, eventKey, tenantID string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Row
	for k, c := range s.usage {
		if matches(k, eventKey, tenantID) {
			out = append(out, Row{Key: k, Counters: *c})
		}
	}
	return out, nil
}

func (s *MemoryStore) Hourly(_ context.Context, eventKey, tenantID string, since time.Time) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Row
	for k, c := range s.hourly {
		hour := time.Unix(k.hour, 0).UTC()
		if matches(k.Key, eventKey, tenantID) && !hour.Before(since) {
			out = append(out, Row{Key: k.Key, Hour: hour, Counters: *c})
		}
	}
	return out, nil
}
