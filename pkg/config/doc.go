// Package config loads typed configuration from environment variables using
// github.com/caarlos0/env struct tags, with optional .env files read through
// github.com/joho/godotenv.
//
// Load caches one value per type for the life of the process, which suits
// service startup:
//
//	var cfg AppConfig
//	config.MustLoad(&cfg)
//
// Parse is uncached and accepts options, which suits tools and tests:
//
//	cfg, err := config.Parse[AppConfig](config.WithEnviron(map[string]string{
//	    "DIGEST_CHECK_INTERVAL": "10s",
//	}))
package config
