package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Worker.Total)
	assert.Equal(t, -1, cfg.Worker.Start)
	assert.Equal(t, "items.json", cfg.Catalog.Path)
	assert.Equal(t, "vivino", cfg.Site.Name)
	assert.Equal(t, "CA", cfg.Site.State, "US defaults to California")
	assert.Equal(t, "chromedp", cfg.Browser.Driver)
	assert.Len(t, cfg.Browser.UserAgents, 3)
	assert.Equal(t, 15*time.Second, cfg.Browser.NavTimeout)
	assert.Equal(t, 20, cfg.Enrich.ChunkSize)
	assert.Equal(t, 3, cfg.Enrich.Concurrency)
	assert.Equal(t, 5, cfg.Enrich.LongBreakEvery)
	assert.Equal(t, time.Second, cfg.Pacing.InterItem.Min)
	assert.Equal(t, 2*time.Second, cfg.Pacing.InterItem.Max)
	assert.Equal(t, 600, cfg.Pacing.ScrollDistance.Max)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "item_ratings", cfg.DB.Table)
	assert.Equal(t, 0, cfg.Server.Port)
	assert.True(t, cfg.Logging.Development)

	plan := cfg.Plan()
	assert.False(t, plan.Partitioned())
	assert.Equal(t, 3, cfg.RetryPolicy().MaxAttempts)
	assert.Equal(t, 1366, cfg.Identities().Width.Min)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
worker:
  id: 2
  total: 4
catalog:
  path: beers.json
  list_key: beers
  name_field: beer_name
site:
  name: untappd
  country: SE
browser:
  driver: colly
  user_agents: ["agent-a"]
enrich:
  concurrency: 5
  backoff_base: 250ms
pacing:
  inter_item:
    min: 100ms
    max: 300ms
  scroll_steps:
    min: 1
    max: 1
cache:
  backend: redis
  redis_addr: localhost:6379
  ttl: 1h
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Worker.ID)
	assert.Equal(t, "beers", cfg.Catalog.ListKey)
	assert.Equal(t, "untappd", cfg.Site.Name)
	assert.Empty(t, cfg.Site.State, "state default applies to US only")
	assert.Equal(t, "colly", cfg.Browser.Driver)
	assert.Equal(t, []string{"agent-a"}, cfg.Browser.UserAgents)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryPolicy().Base)
	assert.Equal(t, 300*time.Millisecond, cfg.PacingPolicy().InterItem.Max)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Logging.Development)
	assert.True(t, cfg.Plan().Partitioned())
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("ENRICHER_ENRICH_CHUNK_SIZE", "7")
	t.Setenv("ENRICHER_SITE_COUNTRY", "US")
	t.Setenv("ENRICHER_SITE_STATE", "FL")

	flags := pflag.NewFlagSet("enrich", pflag.ContinueOnError)
	flags.Int("worker-id", 0, "")
	flags.Int("total-workers", 1, "")
	flags.String("site", "", "")
	require.NoError(t, flags.Parse([]string{"--worker-id=1", "--total-workers=3", "--site=untappd"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Enrich.ChunkSize)
	assert.Equal(t, "FL", cfg.Site.State)
	assert.Equal(t, 1, cfg.Worker.ID)
	assert.Equal(t, 3, cfg.Worker.Total)
	assert.Equal(t, "untappd", cfg.Site.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Worker.Total = 0 }},
		{"worker id out of range", func(c *Config) { c.Worker.ID = 1 }},
		{"negative worker id", func(c *Config) { c.Worker.ID = -1 }},
		{"half explicit range", func(c *Config) { c.Worker.Start = 10 }},
		{"inverted explicit range", func(c *Config) { c.Worker.Start, c.Worker.End = 10, 5 }},
		{"empty catalog path", func(c *Config) { c.Catalog.Path = " " }},
		{"unknown site", func(c *Config) { c.Site.Name = "ratebeer" }},
		{"unknown driver", func(c *Config) { c.Browser.Driver = "selenium" }},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }},
		{"empty user agents", func(c *Config) { c.Browser.UserAgents = nil }},
		{"inverted viewport", func(c *Config) { c.Browser.Viewport.MaxWidth = 100 }},
		{"zero chunk size", func(c *Config) { c.Enrich.ChunkSize = 0 }},
		{"zero concurrency", func(c *Config) { c.Enrich.Concurrency = 0 }},
		{"zero attempts", func(c *Config) { c.Enrich.MaxAttempts = 0 }},
		{"inverted pacing", func(c *Config) { c.Pacing.LongBreak.Max = time.Millisecond }},
		{"inverted scroll range", func(c *Config) { c.Pacing.ScrollSteps.Max = 0 }},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "done" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.Browser.UserAgents = append([]string(nil), base.Browser.UserAgents...)
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("explicit range ok", func(t *testing.T) {
		cfg := base
		cfg.Worker.Start, cfg.Worker.End = 0, 10
		assert.NoError(t, cfg.Validate())
	})
}
