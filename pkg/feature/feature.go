package feature

import (
	"context"
	"time"
)

// Flag is a named switch with an optional targeting strategy.
type Flag struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	Strategy    Strategy  `json:"-" yaml:"-"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero" yaml:"-"`
}

// Subject is who a flag is evaluated for.
type Subject struct {
	RecipientID string
	TenantID    string
	Groups      []string
}

// Strategy decides whether an enabled flag applies to a subject.
type Strategy interface {
	Evaluate(ctx context.Context, s Subject) (bool, error)
}

// Provider stores flags and evaluates them.
type Provider interface {
	// IsEnabled returns ErrFlagNotFound for unknown flags.
	IsEnabled(ctx context.Context, name string, s Subject) (bool, error)
	GetFlag(ctx context.Context, name string) (*Flag, error)
	ListFlags(ctx context.Context, tags ...string) ([]*Flag, error)
	SetFlag(ctx context.Context, flag *Flag) error
	DeleteFlag(ctx context.Context, name string) error
}
