package dispatch

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/policy"
	"github.com/dmitrymomot/notifykit/pkg/summary"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTenants sets the tenant directory. Without it every notification is
// treated as tenant-less.
func WithTenants(p tenant.Provider) Option {
	return func(d *Dispatcher) { d.tenants = p }
}

func WithKillSwitch(k *policy.KillSwitch) Option {
	return func(d *Dispatcher) { d.kill = k }
}

func WithRetryQueue(q RetryQueue) Option {
	return func(d *Dispatcher) {
		if q != nil {
			d.retries = q
		}
	}
}

// WithEngagement sets where TrackEngagement writes. Either may be nil.
func WithEngagement(usage UsageEngagement, versions VersionEngagement) Option {
	return func(d *Dispatcher) {
		d.usage = usage
		d.versions = versions
	}
}

// WithDigestOptions configures the digest scheduler the dispatcher owns.
func WithDigestOptions(opts ...digest.Option) Option {
	return func(d *Dispatcher) { d.digestOpts = append(d.digestOpts, opts...) }
}

// WithSummaryOptions sets how digest bodies are built. Format is ignored;
// both text and HTML are always produced.
func WithSummaryOptions(o summary.Options) Option {
	return func(d *Dispatcher) { d.summary = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		if gen != nil {
			d.newID = gen
		}
	}
}

// EmitOption adjusts a single Emit call.
type EmitOption func(*emitOptions)

type emitOptions struct {
	locale       string
	templateType string
	id           string
}

// WithLocale overrides the recipient's preferred locale for this event.
func WithLocale(tag string) EmitOption {
	return func(o *emitOptions) { o.locale = tag }
}

// WithTemplateType renders a template type other than "default".
func WithTemplateType(t string) EmitOption {
	return func(o *emitOptions) { o.templateType = t }
}

// WithNotificationID sets the ID prefix used for the per-channel
// notifications instead of a generated one.
func WithNotificationID(id string) EmitOption {
	return func(o *emitOptions) { o.id = id }
}
