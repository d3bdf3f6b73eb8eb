package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/policy"
	"github.com/dmitrymomot/notifykit/pkg/registry"
	"github.com/dmitrymomot/notifykit/pkg/summary"
	"github.com/dmitrymomot/notifykit/pkg/templates"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

// Renderer renders one notification. *templates.Resolver implements it.
type Renderer interface {
	Render(ctx context.Context, req templates.RenderRequest) (templates.Rendered, error)
}

// Deliverer hands a message to a transport. *notifications.Router
// implements it.
type Deliverer interface {
	Deliver(ctx context.Context, msg notifications.Message) (notifications.DeliveryResult, error)
}

// Dispatcher is the inbound entry point: it classifies an event, applies
// the kill switch, filters and channel policy, and then either batches the
// notification into a digest or renders and delivers it right away.
type Dispatcher struct {
	registry   *registry.Holder
	renderer   Renderer
	sender     Deliverer
	tenants    tenant.Provider
	kill       *policy.KillSwitch
	retries    RetryQueue
	usage      UsageEngagement
	versions   VersionEngagement
	digests    *digest.Scheduler
	digestOpts []digest.Option
	summary    summary.Options
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingMember
}

// pendingMember is what a digest flush needs about a queued notification
// beyond the notification itself.
type pendingMember struct {
	recipient    notifications.Recipient
	templateType string
}

// New builds a dispatcher and the digest scheduler it flushes through.
func New(reg *registry.Holder, renderer Renderer, sender Deliverer, opts ...Option) (*Dispatcher, error) {
	if reg == nil || renderer == nil || sender == nil {
		return nil, errors.New("dispatch: registry, renderer and sender are required")
	}
	d := &Dispatcher{
		registry: reg,
		renderer: renderer,
		sender:   sender,
		retries:  NewMemoryRetryQueue(),
		summary:  summary.Options{MaxItems: summary.DefaultMaxItems},
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
		pending:  make(map[string]pendingMember),
	}
	for _, opt := range opts {
		opt(d)
	}

	schedOpts := append([]digest.Option{
		digest.WithLogger(d.logger),
		digest.WithClock(d.now),
		digest.WithIDGenerator(d.newID),
	}, d.digestOpts...)
	sched, err := digest.New(d.flushBatch, schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("digest scheduler: %w", err)
	}
	d.digests = sched
	return d, nil
}

// Scheduler returns the digest scheduler. Run its Start loop to flush
// batches on their deadline.
func (d *Dispatcher) Scheduler() *digest.Scheduler { return d.digests }

// Outcome of one target channel.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDigested  Outcome = "digested"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Suppression explains why an event reached no channel.
type Suppression string

const (
	SuppressedKillSwitch     Suppression = "kill_switch"
	SuppressedFiltered       Suppression = "filtered"
	SuppressedInactiveTenant Suppression = "inactive_tenant"
	SuppressedNoChannels     Suppression = "no_channels"
)

// ChannelResult reports what happened on one channel.
type ChannelResult struct {
	Channel        notifications.Channel         `json:"channel"`
	Outcome        Outcome                       `json:"outcome"`
	NotificationID string                        `json:"notification_id"`
	Ticket         *digest.Ticket                `json:"ticket,omitempty"`
	Rendered       *templates.Rendered           `json:"rendered,omitempty"`
	Delivery       *notifications.DeliveryResult `json:"delivery,omitempty"`
	Error          string                        `json:"error,omitempty"`
	Err            error                         `json:"-"`
}

// Result of one Emit call.
type Result struct {
	EventKey   string                 `json:"event_key"`
	Known      bool                   `json:"known"`
	Priority   notifications.Priority `json:"priority"`
	Suppressed Suppression            `json:"suppressed,omitempty"`
	Channels   []ChannelResult        `json:"channels,omitempty"`
}

// Failed returns the channels that failed or were skipped.
func (r Result) Failed() []ChannelResult {
	var out []ChannelResult
	for _, c := range r.Channels {
		if c.Outcome == OutcomeFailed || c.Outcome == OutcomeSkipped {
			out = append(out, c)
		}
	}
	return out
}

// Emit processes one event for one recipient. Failures on individual
// channels are reported in the result; Emit only returns an error when the
// event could not be processed at all, or when every channel failed
// (ErrAllChannelsFailed, with the result still populated).
func (d *Dispatcher) Emit(ctx context.Context, eventKey string, payload map[string]any, recipient notifications.Recipient, tenantID string, opts ...EmitOption) (Result, error) {
	if strings.TrimSpace(recipient.ID) == "" {
		return Result{}, ErrInvalidRecipient
	}
	reg := d.registry.Current()
	if reg == nil {
		return Result{}, registry.ErrRegistryNotLoaded
	}
	o := emitOptions{templateType: templates.TypeDefault}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locale != "" {
		recipient.Locale = o.locale
	}

	def := reg.ResolveOrDefault(eventKey)
	res := Result{EventKey: def.Key, Known: reg.Has(def.Key), Priority: def.Priority}
	attrs := []slog.Attr{logger.EventKey(def.Key), logger.UserID(recipient.ID), logger.TenantID(tenantID)}

	if !d.kill.Allowed(ctx, def.Key, tenantID) {
		return d.suppress(ctx, res, SuppressedKillSwitch, attrs), nil
	}
	if !def.Allows(recipient.FilterAttributes()) {
		return d.suppress(ctx, res, SuppressedFiltered, attrs), nil
	}
	t, err := d.tenant(ctx, tenantID)
	if err != nil {
		return res, err
	}
	if t != nil && !t.Active {
		return d.suppress(ctx, res, SuppressedInactiveTenant, attrs), nil
	}

	targets := policy.New(reg).ResolveTargets(def, t, recipient.PreferredChannels)
	if targets.Len() == 0 {
		if def.Priority == notifications.PriorityCritical {
			d.logger.LogAttrs(ctx, slog.LevelError, "critical event has no deliverable channel", attrs...)
		}
		return d.suppress(ctx, res, SuppressedNoChannels, attrs), nil
	}

	baseID := o.id
	if baseID == "" {
		baseID = d.newID()
	}
	channels := targets.Sorted()
	res.Channels = make([]ChannelResult, len(channels))
	now := d.now().UTC()
	build := func(c notifications.Channel) notifications.Notification {
		return notifications.Notification{
			ID:          baseID + ":" + string(c),
			RecipientID: recipient.ID,
			TenantID:    tenantID,
			EventKey:    def.Key,
			Channel:     c,
			Priority:    def.Priority,
			Locale:      recipient.Locale,
			Payload:     payload,
			CreatedAt:   now,
		}
	}

	if def.IsDigestable() {
		for i, c := range channels {
			n := build(c)
			ticket, err := d.digests.Enqueue(ctx, n, def)
			if err != nil {
				d.logger.LogAttrs(ctx, slog.LevelWarn, "digest enqueue failed",
					logger.EventKey(def.Key), logger.Channel(string(c)), logger.Error(err))
				res.Channels[i] = ChannelResult{Channel: c, Outcome: OutcomeFailed, NotificationID: n.ID, Error: err.Error(), Err: err}
				continue
			}
			d.remember(n.ID, pendingMember{recipient: recipient, templateType: o.templateType})
			res.Channels[i] = ChannelResult{Channel: c, Outcome: OutcomeDigested, NotificationID: n.ID, Ticket: &ticket}
		}
		return res, channelErrors(res, OutcomeDigested)
	}

	langs := t.LanguageChain()
	var g errgroup.Group
	for i, c := range channels {
		g.Go(func() error {
			res.Channels[i] = d.sendNow(ctx, build(c), recipient, langs, o.templateType)
			return nil
		})
	}
	_ = g.Wait()

	return res, channelErrors(res, OutcomeDelivered)
}

// channelErrors returns nil when any channel reached ok, otherwise
// ErrAllChannelsFailed joined with every channel error.
func channelErrors(res Result, ok Outcome) error {
	var errs []error
	for _, c := range res.Channels {
		if c.Outcome == ok {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", c.Channel, c.Err))
	}
	return errors.Join(append([]error{ErrAllChannelsFailed}, errs...)...)
}

func (d *Dispatcher) suppress(ctx context.Context, res Result, why Suppression, attrs []slog.Attr) Result {
	res.Suppressed = why
	d.logger.LogAttrs(ctx, slog.LevelDebug, "notification suppressed", append(attrs, slog.String("reason", string(why)))...)
	return res
}

// tenant loads the tenant. An unknown tenant is treated as no tenant so the
// global defaults apply.
func (d *Dispatcher) tenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	if id == "" || d.tenants == nil {
		return nil, nil
	}
	t, err := d.tenants.Get(ctx, id)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "unknown tenant, using global channel defaults", logger.TenantID(id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", id, err)
	}
	return t, nil
}

func (d *Dispatcher) sendNow(ctx context.Context, n notifications.Notification, recipient notifications.Recipient, langs []string, templateType string) ChannelResult {
	out := ChannelResult{Channel: n.Channel, NotificationID: n.ID}
	fail := func(o Outcome, err error) ChannelResult {
		out.Outcome, out.Err, out.Error = o, err, err.Error()
		return out
	}

	address := recipient.Address(n.Channel)
	if address == "" {
		return fail(OutcomeSkipped, fmt.Errorf("%w: %s", notifications.ErrNoAddress, n.Channel))
	}

	rendered, err := d.renderer.Render(ctx, templates.RenderRequest{
		EventKey:        n.EventKey,
		Channel:         n.Channel,
		TemplateType:    templateType,
		Recipient:       recipient,
		TenantID:        n.TenantID,
		TenantLanguages: langs,
		Payload:         n.Payload,
	})
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "render failed",
			logger.EventKey(n.EventKey),
			logger.Channel(string(n.Channel)),
			logger.UserID(n.RecipientID),
			logger.Error(err),
		)
		return fail(OutcomeFailed, err)
	}
	out.Rendered = &rendered

	result, err := d.sender.Deliver(ctx, notifications.Message{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		TenantID:       n.TenantID,
		EventKey:       n.EventKey,
		Channel:        n.Channel,
		Address:        address,
		Content:        rendered.Content,
	})
	out.Delivery = &result
	if err != nil {
		if result.Status == notifications.StatusSkipped {
			return fail(OutcomeSkipped, err)
		}
		return fail(OutcomeFailed, err)
	}
	out.Outcome = OutcomeDelivered
	return out
}

func (d *Dispatcher) remember(id string, m pendingMember) {
	d.mu.Lock()
	d.pending[id] = m
	d.mu.Unlock()
}

// takePending removes and returns what Emit stored for the members. The
// last stored recipient wins.
func (d *Dispatcher) takePending(members []notifications.Notification) (pendingMember, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var last pendingMember
	found := false
	for _, n := range members {
		if m, ok := d.pending[n.ID]; ok {
			last, found = m, true
			delete(d.pending, n.ID)
		}
	}
	return last, found
}
