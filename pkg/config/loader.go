package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type configCache struct {
	mu     sync.RWMutex
	values map[string]any
	onces  map[string]*sync.Once
}

var (
	globalCache = &configCache{
		values: make(map[string]any),
		onces:  make(map[string]*sync.Once),
	}

	defaultEnvLoaded sync.Once
)

// Load parses environment variables into v. Each config type is parsed once
// per process; later calls return the cached copy. A .env file in the
// working directory is loaded on first use if present.
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	typeName := typeKey[T]()

	globalCache.mu.RLock()
	if cached, ok := globalCache.values[typeName]; ok {
		*v = cached.(T)
		globalCache.mu.RUnlock()
		return nil
	}
	globalCache.mu.RUnlock()

	globalCache.mu.Lock()
	once, exists := globalCache.onces[typeName]
	if !exists {
		once = new(sync.Once)
		globalCache.onces[typeName] = once
	}
	globalCache.mu.Unlock()

	var err error
	once.Do(func() {
		if parseErr := env.Parse(v); parseErr != nil {
			err = errors.Join(ErrParsingConfig, parseErr)
			// allow a retry after the environment is fixed
			globalCache.mu.Lock()
			delete(globalCache.onces, typeName)
			globalCache.mu.Unlock()
			return
		}
		globalCache.mu.Lock()
		globalCache.values[typeName] = *v
		globalCache.mu.Unlock()
	})
	if err != nil {
		return err
	}

	globalCache.mu.RLock()
	defer globalCache.mu.RUnlock()
	if cached, ok := globalCache.values[typeName]; ok {
		*v = cached.(T)
		return nil
	}
	return ErrConfigNotLoaded
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Option configures Parse.
type Option func(*parseOptions)

type parseOptions struct {
	prefix   string
	environ  map[string]string
	envFiles []string
}

// WithPrefix only reads variables starting with prefix.
func WithPrefix(prefix string) Option {
	return func(o *parseOptions) {
		o.prefix = prefix
	}
}

// WithEnviron parses from the given map instead of the process environment.
func WithEnviron(environ map[string]string) Option {
	return func(o *parseOptions) {
		o.environ = environ
	}
}

// WithEnvFiles merges the given dotenv files under the environment.
// Process variables take precedence over file values.
func WithEnvFiles(paths ...string) Option {
	return func(o *parseOptions) {
		o.envFiles = append(o.envFiles, paths...)
	}
}

// Parse builds a fresh T without touching the Load cache. Used by tools and
// tests that need several configurations of the same type.
func Parse[T any](opts ...Option) (T, error) {
	var (
		out T
		o   parseOptions
	)
	for _, opt := range opts {
		opt(&o)
	}

	environ := o.environ
	if len(o.envFiles) > 0 {
		fileVars, err := godotenv.Read(o.envFiles...)
		if err != nil {
			return out, errors.Join(ErrEnvFile, err)
		}
		base := environ
		if base == nil {
			base = env.ToMap(os.Environ())
		}
		environ = make(map[string]string, len(fileVars)+len(base))
		for k, v := range fileVars {
			environ[k] = v
		}
		for k, v := range base {
			environ[k] = v
		}
	}

	if err := env.ParseWithOptions(&out, env.Options{
		Prefix:      o.prefix,
		Environment: environ,
	}); err != nil {
		return out, errors.Join(ErrParsingConfig, err)
	}
	return out, nil
}

func typeKey[T any]() string {
	t := reflect.TypeFor[T]()
	return t.PkgPath() + "." + t.String()
}
