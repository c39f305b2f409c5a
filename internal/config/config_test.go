package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Defaults(t *testing.T) {
	var c Config
	validate(&c)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "127.0.0.1:8081", c.Server.AdminAddr)
	assert.Equal(t, DefaultBaseURL, c.Upstream.BaseURL)
	assert.Equal(t, 2*time.Minute, c.Cache.PromotionsTTL)
	assert.Equal(t, 5*time.Minute, c.Cache.FeaturesTTL)
	assert.Equal(t, 5*time.Second, c.Rotation.Interval)
	assert.Equal(t, "memory", c.Settings.Backend)
	assert.Equal(t, 5*time.Second, c.Backoff())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_UPSTREAM_BASE_URL", "https://api.example.test")
	t.Setenv("APP_CACHE_PROMOTIONS_TTL", "45s")
	t.Setenv("APP_SETTINGS_BACKEND", "redis")

	c := Load()

	assert.Equal(t, "https://api.example.test", c.Upstream.BaseURL)
	assert.Equal(t, 45*time.Second, c.Cache.PromotionsTTL)
	assert.Equal(t, "redis", c.Settings.Backend)
}

func TestDSN(t *testing.T) {
	var c Config
	c.Postgres.User = "promo"
	c.Postgres.Password = "secret"
	c.Postgres.Host = "db"
	c.Postgres.DBName = "wallet"
	validate(&c)

	assert.Equal(t, "postgres://promo:secret@db:5432/wallet?sslmode=disable", c.DSN())
}
