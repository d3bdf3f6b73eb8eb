package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/i18n"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/summary"
	"github.com/dmitrymomot/notifykit/pkg/templates"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

// linkPaths are the payload paths checked for a digest item link.
var linkPaths = []string{"link", "url"}

type memberGroup struct {
	recipientID string
	channel     notifications.Channel
	members     []notifications.Notification
}

// groupMembers splits a batch into one group per recipient and channel,
// keeping first-seen order of groups and enqueue order inside each group.
func groupMembers(members []notifications.Notification) []memberGroup {
	type gk struct {
		recipient string
		channel   notifications.Channel
	}
	index := make(map[gk]int)
	var groups []memberGroup
	for _, n := range members {
		k := gk{n.RecipientID, n.Channel}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, memberGroup{recipientID: n.RecipientID, channel: n.Channel})
		}
		groups[i].members = append(groups[i].members, n)
	}
	return groups
}

// flushBatch is the digest.FlushFunc. Each recipient and channel gets one
// combined message. Members that fail to render are left out of the
// message; failed members go to the retry queue. Groups whose recipient has
// no address for the channel are dropped.
func (d *Dispatcher) flushBatch(ctx context.Context, b digest.Batch) error {
	t, err := d.tenant(ctx, b.Key.TenantID)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "tenant lookup failed during digest flush",
			logger.BatchID(b.ID),
			logger.TenantID(b.Key.TenantID),
			logger.Error(err),
		)
	}

	var errs []error
	for _, g := range groupMembers(b.Members) {
		if err := d.flushGroup(ctx, b, g, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) flushGroup(ctx context.Context, b digest.Batch, g memberGroup, t *tenant.Tenant) error {
	pm, ok := d.takePending(g.members)
	if !ok {
		pm = pendingMember{
			recipient:    notifications.Recipient{ID: g.recipientID, Locale: g.members[0].Locale},
			templateType: templates.TypeDefault,
		}
	}
	recipient := pm.recipient
	if recipient.Address(g.channel) == "" {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "skipping digest members without address",
			logger.BatchID(b.ID),
			logger.UserID(recipient.ID),
			logger.Channel(string(g.channel)),
			slog.Int("members", len(g.members)),
		)
		return nil
	}
	langs := t.LanguageChain()

	items := make([]summary.Item, 0, len(g.members))
	rendered := make([]notifications.Notification, 0, len(g.members))
	var failed []RetryItem
	var errs []error
	for _, n := range g.members {
		out, err := d.renderer.Render(ctx, templates.RenderRequest{
			EventKey:        n.EventKey,
			Channel:         n.Channel,
			TemplateType:    pm.templateType,
			Recipient:       recipient,
			TenantID:        n.TenantID,
			TenantLanguages: langs,
			Payload:         n.Payload,
		})
		if err != nil {
			failed = append(failed, d.retryItem(b, n, StageRender, err))
			errs = append(errs, fmt.Errorf("render %s: %w", n.ID, err))
			continue
		}
		rendered = append(rendered, n)
		items = append(items, summary.Item{
			ID:        n.ID,
			EventKey:  n.EventKey,
			Title:     out.Content.Title,
			Message:   out.Content.Text,
			Link:      payloadLink(n.Payload),
			CreatedAt: n.CreatedAt,
		})
	}

	if len(items) > 0 {
		err := d.deliverDigest(ctx, b, g.channel, recipient, items)
		if err != nil {
			for _, n := range rendered {
				failed = append(failed, d.retryItem(b, n, StageDeliver, err))
			}
			errs = append(errs, err)
		}
	}

	if len(failed) > 0 {
		if err := d.retries.Push(ctx, failed...); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelError, "failed to queue digest members for retry",
				logger.BatchID(b.ID),
				slog.Int("members", len(failed)),
				logger.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) deliverDigest(ctx context.Context, b digest.Batch, c notifications.Channel, r notifications.Recipient, items []summary.Item) error {
	opts := d.summary
	opts.Format = summary.FormatText
	s, err := summary.Summarize(summary.Slice(items), opts)
	if err != nil {
		return fmt.Errorf("summarize batch %s: %w", b.ID, err)
	}
	htmlBody, err := summary.Render(s, summary.FormatHTML)
	if err != nil {
		return fmt.Errorf("summarize batch %s: %w", b.ID, err)
	}

	title := fmt.Sprintf("%d new notifications", s.Total)
	if s.Total == 1 {
		title = items[0].Title
	}
	_, err = d.sender.Deliver(ctx, notifications.Message{
		NotificationID: b.ID,
		RecipientID:    r.ID,
		TenantID:       b.Key.TenantID,
		EventKey:       b.Key.EventKey,
		Channel:        c,
		Address:        r.Address(c),
		Content:        notifications.Content{Title: title, Text: s.Body, HTML: htmlBody},
	})
	return err
}

func (d *Dispatcher) retryItem(b digest.Batch, n notifications.Notification, stage Stage, err error) RetryItem {
	return RetryItem{
		ID:             d.newID(),
		BatchID:        b.ID,
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		TenantID:       n.TenantID,
		EventKey:       n.EventKey,
		Channel:        n.Channel,
		Stage:          stage,
		Error:          err.Error(),
		FailedAt:       d.now().UTC(),
	}
}

func payloadLink(payload map[string]any) string {
	for _, p := range linkPaths {
		if v, ok := i18n.Lookup(payload, p); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
