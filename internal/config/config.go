// Package config loads and validates enricher configuration via Viper.
//
// Values come, in increasing priority, from defaults, an optional config
// file, ENRICHER_* environment variables and bound command-line flags.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
	"github.com/JakeFAU/rating-enricher/internal/sites"
)

// EnvPrefix is prepended to every environment override, e.g. ENRICHER_WORKER_ID.
const EnvPrefix = "ENRICHER"

// Config captures all enricher configuration knobs loaded via Viper.
type Config struct {
	Worker  WorkerConfig  `mapstructure:"worker"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Site    SiteConfig    `mapstructure:"site"`
	Browser BrowserConfig `mapstructure:"browser"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Pacing  PacingConfig  `mapstructure:"pacing"`
	Output  OutputConfig  `mapstructure:"output"`
	Cache   CacheConfig   `mapstructure:"cache"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// WorkerConfig places this process within a multi-worker run.
type WorkerConfig struct {
	ID    int `mapstructure:"id"`
	Total int `mapstructure:"total"`
	// Start and End select an explicit half-open range; -1 leaves them unset.
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

// CatalogConfig locates the item list inside the catalog file.
type CatalogConfig struct {
	Path      string `mapstructure:"path"`
	ListKey   string `mapstructure:"list_key"`
	NameField string `mapstructure:"name_field"`
}

// SiteConfig selects the rating site and shipping destination.
type SiteConfig struct {
	Name    string `mapstructure:"name"`
	Country string `mapstructure:"country"`
	State   string `mapstructure:"state"`
}

// ViewportConfig bounds the randomized window size.
type ViewportConfig struct {
	MinWidth  int `mapstructure:"min_width"`
	MaxWidth  int `mapstructure:"max_width"`
	MinHeight int `mapstructure:"min_height"`
	MaxHeight int `mapstructure:"max_height"`
}

// BrowserConfig configures the automation driver and session identity.
type BrowserConfig struct {
	Driver           string         `mapstructure:"driver"`
	Headless         bool           `mapstructure:"headless"`
	ExecPath         string         `mapstructure:"exec_path"`
	NavTimeout       time.Duration  `mapstructure:"nav_timeout"`
	ReadyTimeout     time.Duration  `mapstructure:"ready_timeout"`
	AllowedResources []string       `mapstructure:"allowed_resources"`
	UserAgents       []string       `mapstructure:"user_agents"`
	Viewport         ViewportConfig `mapstructure:"viewport"`
	AcceptLanguage   string         `mapstructure:"accept_language"`
	DomainQPS        float64        `mapstructure:"domain_qps"`
	Scroll           bool           `mapstructure:"scroll"`
}

// EnrichConfig governs chunking, concurrency and retries.
type EnrichConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size"`
	Concurrency    int           `mapstructure:"concurrency"`
	LongBreakEvery int           `mapstructure:"long_break_every"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffJitter  bool          `mapstructure:"backoff_jitter"`
}

// PacingConfig holds the randomized delay windows.
type PacingConfig struct {
	InterItem      enrich.Window   `mapstructure:"inter_item"`
	LongBreak      enrich.Window   `mapstructure:"long_break"`
	InterChunk     enrich.Window   `mapstructure:"inter_chunk"`
	Fallback       enrich.Window   `mapstructure:"fallback"`
	ScrollDelay    enrich.Window   `mapstructure:"scroll_delay"`
	ScrollSteps    enrich.IntRange `mapstructure:"scroll_steps"`
	ScrollDistance enrich.IntRange `mapstructure:"scroll_distance"`
}

// OutputConfig selects where artifacts land.
type OutputConfig struct {
	// Dir defaults to the catalog's directory.
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// CacheConfig selects the lookup cache backend.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"`
	Size      int           `mapstructure:"size"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// DBConfig controls the optional Postgres result store.
type DBConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	RunsTable string `mapstructure:"runs_table"`
	MaxConns  int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds the completion notification target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status server; port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FlagKeys maps command-line flag names onto configuration keys.
var FlagKeys = map[string]string{
	"worker-id":     "worker.id",
	"total-workers": "worker.total",
	"start":         "worker.start",
	"end":           "worker.end",
	"catalog":       "catalog.path",
	"list-key":      "catalog.list_key",
	"name-field":    "catalog.name_field",
	"site":          "site.name",
	"country":       "site.country",
	"state":         "site.state",
	"driver":        "browser.driver",
	"concurrency":   "enrich.concurrency",
	"chunk-size":    "enrich.chunk_size",
	"port":          "server.port",
}

// DefaultUserAgents are desktop Chrome user agents drawn per session.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

var (
	drivers  = []string{"chromedp", "colly"}
	backends = []string{"none", "memory", "redis"}
)

// Load builds a Config from defaults, the file at path (optional), the
// environment and any flags in flags that appear in FlagKeys.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.id", 0)
	v.SetDefault("worker.total", 1)
	v.SetDefault("worker.start", -1)
	v.SetDefault("worker.end", -1)
	v.SetDefault("catalog.path", "items.json")
	v.SetDefault("catalog.list_key", "wines")
	v.SetDefault("catalog.name_field", "wine_name")
	v.SetDefault("site.name", "vivino")
	v.SetDefault("site.country", "US")
	v.SetDefault("site.state", "")
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.nav_timeout", 15*time.Second)
	v.SetDefault("browser.ready_timeout", 5*time.Second)
	v.SetDefault("browser.allowed_resources", []string{"document", "script", "stylesheet", "xhr", "fetch", "image"})
	v.SetDefault("browser.user_agents", DefaultUserAgents)
	v.SetDefault("browser.viewport.min_width", 1366)
	v.SetDefault("browser.viewport.max_width", 1920)
	v.SetDefault("browser.viewport.min_height", 768)
	v.SetDefault("browser.viewport.max_height", 1080)
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.domain_qps", 0.0)
	v.SetDefault("browser.scroll", true)
	v.SetDefault("enrich.chunk_size", 20)
	v.SetDefault("enrich.concurrency", 3)
	v.SetDefault("enrich.long_break_every", 5)
	v.SetDefault("enrich.max_attempts", 3)
	v.SetDefault("enrich.backoff_base", time.Second)
	v.SetDefault("enrich.backoff_jitter", false)

	p := enrich.DefaultPacing()
	setWindow(v, "pacing.inter_item", p.InterItem)
	setWindow(v, "pacing.long_break", p.LongBreak)
	setWindow(v, "pacing.inter_chunk", p.InterChunk)
	setWindow(v, "pacing.fallback", p.Fallback)
	setWindow(v, "pacing.scroll_delay", p.ScrollDelay)
	v.SetDefault("pacing.scroll_steps.min", p.ScrollSteps.Min)
	v.SetDefault("pacing.scroll_steps.max", p.ScrollSteps.Max)
	v.SetDefault("pacing.scroll_distance.min", p.ScrollDistance.Min)
	v.SetDefault("pacing.scroll_distance.max", p.ScrollDistance.Max)

	v.SetDefault("output.dir", "")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.prefix", "")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "item_ratings")
	v.SetDefault("db.runs_table", "enrichment_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
}

func setWindow(v *viper.Viper, key string, w enrich.Window) {
	v.SetDefault(key+".min", w.Min)
	v.SetDefault(key+".max", w.Max)
}

func (c *Config) applyDerived() {
	c.Site.Name = strings.ToLower(strings.TrimSpace(c.Site.Name))
	c.Browser.Driver = strings.ToLower(strings.TrimSpace(c.Browser.Driver))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if strings.EqualFold(c.Site.Country, "US") && c.Site.State == "" {
		c.Site.State = "CA"
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Worker.Total < 1 {
		return fmt.Errorf("worker.total must be >= 1")
	}
	if c.Worker.ID < 0 || c.Worker.ID >= c.Worker.Total {
		return fmt.Errorf("worker.id must be in [0,%d), got %d", c.Worker.Total, c.Worker.ID)
	}
	if (c.Worker.Start >= 0) != (c.Worker.End >= 0) {
		return fmt.Errorf("worker.start and worker.end must be set together")
	}
	if c.Worker.Start >= 0 && c.Worker.End < c.Worker.Start {
		return fmt.Errorf("worker.end must be >= worker.start")
	}
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Catalog.ListKey == "" || c.Catalog.NameField == "" {
		return fmt.Errorf("catalog.list_key and catalog.name_field are required")
	}
	if !slices.Contains(sites.Names(), c.Site.Name) {
		return fmt.Errorf("site.name must be one of %v, got %q", sites.Names(), c.Site.Name)
	}
	if !slices.Contains(drivers, c.Browser.Driver) {
		return fmt.Errorf("browser.driver must be one of %v, got %q", drivers, c.Browser.Driver)
	}
	if !slices.Contains(backends, c.Cache.Backend) {
		return fmt.Errorf("cache.backend must be one of %v, got %q", backends, c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr is required for the redis backend")
	}
	if len(c.Browser.UserAgents) == 0 {
		return fmt.Errorf("browser.user_agents must not be empty")
	}
	vp := c.Browser.Viewport
	if vp.MinWidth <= 0 || vp.MinHeight <= 0 || vp.MaxWidth < vp.MinWidth || vp.MaxHeight < vp.MinHeight {
		return fmt.Errorf("browser.viewport ranges are invalid: %+v", vp)
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	if c.Enrich.ChunkSize < 1 {
		return fmt.Errorf("enrich.chunk_size must be >= 1")
	}
	if c.Enrich.Concurrency < 1 {
		return fmt.Errorf("enrich.concurrency must be >= 1")
	}
	if c.Enrich.MaxAttempts < 1 {
		return fmt.Errorf("enrich.max_attempts must be >= 1")
	}
	if c.Enrich.LongBreakEvery < 0 {
		return fmt.Errorf("enrich.long_break_every must be >= 0")
	}
	if err := c.Pacing.validate(); err != nil {
		return err
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic is set")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

func (p PacingConfig) validate() error {
	windows := map[string]enrich.Window{
		"inter_item":   p.InterItem,
		"long_break":   p.LongBreak,
		"inter_chunk":  p.InterChunk,
		"fallback":     p.Fallback,
		"scroll_delay": p.ScrollDelay,
	}
	for name, w := range windows {
		if w.Min < 0 || w.Max < w.Min {
			return fmt.Errorf("pacing.%s window is inverted or negative: %v-%v", name, w.Min, w.Max)
		}
	}
	ranges := map[string]enrich.IntRange{
		"scroll_steps":    p.ScrollSteps,
		"scroll_distance": p.ScrollDistance,
	}
	for name, r := range ranges {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("pacing.%s range is inverted or negative: %d-%d", name, r.Min, r.Max)
		}
	}
	return nil
}

// Plan converts the worker settings into a run plan.
func (c Config) Plan() enrich.Plan {
	return enrich.Plan{
		WorkerID:     c.Worker.ID,
		TotalWorkers: c.Worker.Total,
		Start:        c.Worker.Start,
		End:          c.Worker.End,
		ChunkSize:    c.Enrich.ChunkSize,
	}
}

// PacingPolicy returns the configured delay windows.
func (c Config) PacingPolicy() enrich.Pacing {
	return enrich.Pacing{
		InterItem:      c.Pacing.InterItem,
		LongBreak:      c.Pacing.LongBreak,
		InterChunk:     c.Pacing.InterChunk,
		Fallback:       c.Pacing.Fallback,
		ScrollDelay:    c.Pacing.ScrollDelay,
		ScrollSteps:    c.Pacing.ScrollSteps,
		ScrollDistance: c.Pacing.ScrollDistance,
	}
}

// RetryPolicy returns the navigation retry policy.
func (c Config) RetryPolicy() enrich.Retry {
	return enrich.Retry{
		MaxAttempts: c.Enrich.MaxAttempts,
		Base:        c.Enrich.BackoffBase,
		Jitter:      c.Enrich.BackoffJitter,
	}
}

// Identities returns the per-session identity pool.
func (c Config) Identities() enrich.IdentityPool {
	vp := c.Browser.Viewport
	return enrich.IdentityPool{
		UserAgents:     append([]string(nil), c.Browser.UserAgents...),
		Width:          enrich.IntRange{Min: vp.MinWidth, Max: vp.MaxWidth},
		Height:         enrich.IntRange{Min: vp.MinHeight, Max: vp.MaxHeight},
		AcceptLanguage: c.Browser.AcceptLanguage,
	}
}

// Locale returns the shipping destination.
func (c Config) Locale() enrich.Locale {
	return enrich.Locale{Country: c.Site.Country, State: c.Site.State}
}
