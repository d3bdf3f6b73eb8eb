package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/i18n"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/registry"
)

// FlushFunc receives a batch after it left the open index. Its error is
// logged; the batch is never reopened.
type FlushFunc func(ctx context.Context, b Batch) error

// Scheduler groups digestable notifications into time-windowed batches and
// flushes each batch exactly once, on deadline or on demand.
type Scheduler struct {
	mu     sync.Mutex
	open   map[Key]*batch
	byID   map[string]*batch
	closed bool

	flush       FlushFunc
	interval    time.Duration
	concurrency int
	drainOnStop bool
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// New creates a scheduler that hands flushed batches to flush.
func New(flush FlushFunc, opts ...Option) (*Scheduler, error) {
	if flush == nil {
		return nil, ErrNoFlushHandler
	}
	s := &Scheduler{
		open:        make(map[Key]*batch),
		byID:        make(map[string]*batch),
		flush:       flush,
		interval:    30 * time.Second,
		concurrency: 4,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GroupKey extracts the digest group from the payload. Only scalar values
// identify a group.
func GroupKey(def registry.EventDefinition, payload map[string]any) (string, error) {
	if def.Digest == nil {
		return "", ErrNotDigestable
	}
	v, ok := i18n.Lookup(payload, def.Digest.GroupBy)
	if !ok {
		return "", &MissingGroupByPathError{EventKey: def.Key, Path: def.Digest.GroupBy, Reason: "is missing"}
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return "", &MissingGroupByPathError{EventKey: def.Key, Path: def.Digest.GroupBy, Reason: "is empty"}
		}
		return val, nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, fmt.Stringer:
		return fmt.Sprint(val), nil
	}
	return "", &MissingGroupByPathError{EventKey: def.Key, Path: def.Digest.GroupBy, Reason: fmt.Sprintf("holds non-scalar %T", v)}
}

// Enqueue adds n to the open batch for its (tenant, group, event) key,
// opening one when none exists. Events without a digest rule return
// ErrNotDigestable and should be sent immediately. Once Start has returned
// Enqueue fails with ErrSchedulerClosed.
func (s *Scheduler) Enqueue(ctx context.Context, n notifications.Notification, def registry.EventDefinition) (Ticket, error) {
	group, err := GroupKey(def, n.Payload)
	if err != nil {
		return Ticket{}, err
	}
	key := Key{TenantID: n.TenantID, GroupKey: group, EventKey: def.Key}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Ticket{}, ErrSchedulerClosed
	}
	b := s.open[key]
	if b == nil || b.flushed.Load() {
		now := s.now()
		b = &batch{
			id:       s.newID(),
			key:      key,
			openedAt: now,
			deadline: now.Add(def.Digest.Delay),
		}
		s.open[key] = b
		s.byID[b.id] = b
	}
	b.members = append(b.members, n)
	ticket := Ticket{BatchID: b.id, Position: len(b.members), Deadline: b.deadline}
	s.mu.Unlock()

	if ticket.Position == 1 {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "digest batch opened",
			logger.BatchID(ticket.BatchID),
			logger.EventKey(def.Key),
			logger.TenantID(n.TenantID),
			slog.Time("deadline", ticket.Deadline),
		)
	}
	return ticket, nil
}

// Flush flushes one batch by ID. A batch that is already flushing or gone
// returns ErrAlreadyFlushed or ErrBatchNotFound.
func (s *Scheduler) Flush(ctx context.Context, batchID string) error {
	s.mu.Lock()
	b, ok := s.byID[batchID]
	s.mu.Unlock()
	if !ok {
		return ErrBatchNotFound
	}
	snap, ok := s.claim(b)
	if !ok {
		return ErrAlreadyFlushed
	}
	return s.deliver(ctx, snap)
}

// FlushDue flushes every batch whose deadline passed and returns how many
// were flushed by this call.
func (s *Scheduler) FlushDue(ctx context.Context) int {
	now := s.now()
	return s.flushWhere(ctx, func(b *batch) bool { return !b.deadline.After(now) })
}

// FlushAll flushes every open batch regardless of deadline.
func (s *Scheduler) FlushAll(ctx context.Context) int {
	return s.flushWhere(ctx, func(*batch) bool { return true })
}

func (s *Scheduler) flushWhere(ctx context.Context, due func(*batch) bool) int {
	s.mu.Lock()
	candidates := make([]*batch, 0, len(s.open))
	for _, b := range s.open {
		if due(b) {
			candidates = append(candidates, b)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(candidates, func(a, b *batch) int { return a.deadline.Compare(b.deadline) })

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	flushed := 0
	for _, b := range candidates {
		snap, ok := s.claim(b)
		if !ok {
			continue
		}
		flushed++
		g.Go(func() error {
			_ = s.deliver(ctx, snap)
			return nil
		})
	}
	_ = g.Wait()
	return flushed
}

// claim moves b from Open to Flushing. Only the first caller wins.
func (s *Scheduler) claim(b *batch) (Batch, bool) {
	if !b.flushed.CompareAndSwap(false, true) {
		return Batch{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open[b.key] == b {
		delete(s.open, b.key)
	}
	delete(s.byID, b.id)
	return b.snapshot(), true
}

func (s *Scheduler) deliver(ctx context.Context, b Batch) error {
	start := s.now()
	err := s.flush(ctx, b)
	attrs := []slog.Attr{
		logger.BatchID(b.ID),
		logger.EventKey(b.Key.EventKey),
		logger.TenantID(b.Key.TenantID),
		slog.Int("members", b.Len()),
		logger.Duration(s.now().Sub(start)),
	}
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "digest flush failed", append(attrs, logger.Error(err))...)
		return errors.Join(fmt.Errorf("flush batch %s", b.ID), err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "digest batch flushed", attrs...)
	return nil
}

// Open returns snapshots of open batches ordered by deadline.
func (s *Scheduler) Open() []Batch {
	s.mu.Lock()
	out := make([]Batch, 0, len(s.open))
	for _, b := range s.open {
		out = append(out, b.snapshot())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Batch) int {
		if c := a.Deadline.Compare(b.Deadline); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Get returns a snapshot of an open batch.
func (s *Scheduler) Get(batchID string) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[batchID]
	if !ok {
		return Batch{}, ErrBatchNotFound
	}
	return b.snapshot(), nil
}

// Start scans for due batches every interval until ctx is cancelled. The
// scheduler then stops accepting members; with drain enabled, open batches
// are flushed on the way out using a fresh context.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "digest scheduler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			if s.drainOnStop {
				n := s.FlushAll(context.WithoutCancel(ctx))
				s.logger.Info("digest scheduler drained", slog.Int("batches", n))
			}
			s.logger.Info("digest scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			if n := s.FlushDue(ctx); n > 0 {
				s.logger.DebugContext(ctx, "flushed due digest batches", slog.Int("batches", n))
			}
		}
	}
}
