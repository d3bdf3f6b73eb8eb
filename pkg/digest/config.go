package digest

import "time"

// Config holds scheduler settings loaded from the environment.
type Config struct {
	Interval         time.Duration `env:"DIGEST_INTERVAL" envDefault:"30s"`
	FlushConcurrency int           `env:"DIGEST_FLUSH_CONCURRENCY" envDefault:"4"`
	DrainOnStop      bool          `env:"DIGEST_DRAIN_ON_STOP" envDefault:"true"`
}

// Options converts the config into scheduler options.
func (c Config) Options() []Option {
	return []Option{
		WithInterval(c.Interval),
		WithFlushConcurrency(c.FlushConcurrency),
		WithDrainOnStop(c.DrainOnStop),
	}
}
