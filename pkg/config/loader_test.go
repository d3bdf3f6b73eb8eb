package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/config"
)

type digestConfig struct {
	Interval time.Duration `env:"DIGEST_CHECK_INTERVAL" envDefault:"30s"`
	Window   time.Duration `env:"DIGEST_WINDOW" envDefault:"15m"`
	Enabled  bool          `env:"DIGEST_ENABLED" envDefault:"true"`
}

type requiredConfig struct {
	Token string `env:"NOTIFYKIT_TEST_REQUIRED_TOKEN,required"`
}

type loadOnceConfig struct {
	Value string `env:"NOTIFYKIT_TEST_LOAD_ONCE" envDefault:"default"`
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Parse[digestConfig](config.WithEnviron(map[string]string{}))
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.Interval)
		assert.True(t, cfg.Enabled)
	})

	t.Run("overrides with prefix", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Parse[digestConfig](
			config.WithPrefix("APP_"),
			config.WithEnviron(map[string]string{"APP_DIGEST_CHECK_INTERVAL": "5s", "DIGEST_WINDOW": "1h"}),
		)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Interval)
		assert.Equal(t, 15*time.Minute, cfg.Window, "unprefixed variable is ignored")
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Parallel()
		_, err := config.Parse[digestConfig](config.WithEnviron(map[string]string{"DIGEST_WINDOW": "soon"}))
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("required missing", func(t *testing.T) {
		t.Parallel()
		_, err := config.Parse[requiredConfig](config.WithEnviron(map[string]string{}))
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("env file under environment", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("DIGEST_CHECK_INTERVAL=1m\nDIGEST_ENABLED=false\n"), 0o600))

		cfg, err := config.Parse[digestConfig](
			config.WithEnvFiles(path),
			config.WithEnviron(map[string]string{"DIGEST_ENABLED": "true"}),
		)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, cfg.Interval)
		assert.True(t, cfg.Enabled)
	})

	t.Run("missing env file", func(t *testing.T) {
		t.Parallel()
		_, err := config.Parse[digestConfig](config.WithEnvFiles("/nonexistent/.env"))
		assert.ErrorIs(t, err, config.ErrEnvFile)
	})
}

func TestLoad(t *testing.T) {
	t.Setenv("NOTIFYKIT_TEST_LOAD_ONCE", "first")

	var a loadOnceConfig
	require.NoError(t, config.Load(&a))
	assert.Equal(t, "first", a.Value)

	t.Setenv("NOTIFYKIT_TEST_LOAD_ONCE", "second")
	var b loadOnceConfig
	require.NoError(t, config.Load(&b))
	assert.Equal(t, "first", b.Value, "second load returns the cached value")

	assert.ErrorIs(t, config.Load[loadOnceConfig](nil), config.ErrNilPointer)
}
