package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, _ := Load()

	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Realtime.PresenceStaleAfter)
	assert.Equal(t, "memory", cfg.Realtime.PresenceBackend)
	assert.Equal(t, 256, cfg.Realtime.SendBuffer)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("PRESENCE_BACKEND", "redis")
	t.Setenv("PRESENCE_STALE_AFTER", "bogus")
	t.Setenv("CORS_ORIGINS", "http://a,http://b")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_NAME", "n")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_SSLMODE", "disable")

	cfg, _ := Load()

	assert.Equal(t, 5*time.Second, cfg.App.RequestTimeout)
	assert.Equal(t, "redis", cfg.Realtime.PresenceBackend)
	assert.Equal(t, 5*time.Second, cfg.Realtime.PresenceStaleAfter)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.CORS.Origins)
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", cfg.DB.URL())
}
