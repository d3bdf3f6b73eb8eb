package httpserver

import "time"

// Config is the environment form of the server options.
type Config struct {
	Addr            string        `env:"ADMIN_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"ADMIN_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"ADMIN_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"ADMIN_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"ADMIN_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Options converts the non-zero fields of c into options.
func (c Config) Options() []Option {
	var opts []Option
	if c.Addr != "" {
		opts = append(opts, WithAddr(c.Addr))
	}
	if c.ReadTimeout > 0 || c.WriteTimeout > 0 || c.IdleTimeout > 0 {
		opts = append(opts, WithTimeouts(c.ReadTimeout, c.WriteTimeout, c.IdleTimeout))
	}
	if c.ShutdownTimeout > 0 {
		opts = append(opts, WithShutdownTimeout(c.ShutdownTimeout))
	}
	return opts
}
