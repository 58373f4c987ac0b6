// Package config defines the top-level configuration for the endgame sweep
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ENGAME_* environment
// variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Cadence    CadenceConfig    `toml:"cadence"`
	Retention  RetentionConfig  `toml:"retention"`
	Scoring    ScoringConfig    `toml:"scoring"`
	Store      StoreConfig      `toml:"store"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Health     HealthConfig     `toml:"health"`
	Metrics    MetricsConfig    `toml:"metrics"`
	LogLevel   string           `toml:"log_level" env:"LOG_LEVEL"`
}

// PolymarketConfig holds the Polymarket venue client's connection parameters.
type PolymarketConfig struct {
	Enabled    bool          `toml:"enabled" env:"POLYMARKET_ENABLED"`
	GammaHost  string        `toml:"gamma_host" env:"POLYMARKET_GAMMA_HOST"`
	BatchLimit int           `toml:"batch_limit" env:"POLYMARKET_BATCH_LIMIT"`
	TimeoutSec int           `toml:"timeout_sec" env:"POLYMARKET_TIMEOUT_SEC"`
	Breaker    BreakerConfig `toml:"breaker"`
}

// KalshiConfig holds the Kalshi venue client's connection parameters.
type KalshiConfig struct {
	Enabled        bool          `toml:"enabled" env:"KALSHI_ENABLED"`
	BaseURL        string        `toml:"base_url" env:"KALSHI_BASE_URL"`
	ApiKey         string        `toml:"api_key" env:"KALSHI_API_KEY"`
	PrivateKeyPath string        `toml:"private_key_path" env:"KALSHI_PRIVATE_KEY_PATH"`
	BatchLimit     int           `toml:"batch_limit" env:"KALSHI_BATCH_LIMIT"`
	TimeoutSec     int           `toml:"timeout_sec" env:"KALSHI_TIMEOUT_SEC"`
	Breaker        BreakerConfig `toml:"breaker"`
}

// BreakerConfig holds retry/backoff and circuit-breaker thresholds shared by
// every venue client (spec §4.A).
type BreakerConfig struct {
	MaxAttempts         int     `toml:"max_attempts" env:"BREAKER_MAX_ATTEMPTS"`
	BaseBackoff         duration `toml:"base_backoff" env:"BREAKER_BASE_BACKOFF"`
	MaxBackoff          duration `toml:"max_backoff" env:"BREAKER_MAX_BACKOFF"`
	JitterFraction      float64 `toml:"jitter_fraction" env:"BREAKER_JITTER_FRACTION"`
	FailureThreshold    int     `toml:"failure_threshold" env:"BREAKER_FAILURE_THRESHOLD"`
	CooldownPeriod      duration `toml:"cooldown_period" env:"BREAKER_COOLDOWN_PERIOD"`
}

// CadenceConfig holds the tick intervals of the three ingestion loops, the
// rule-refresh worker pool, and the scoring loop (spec §4.C, §4.E, §6).
type CadenceConfig struct {
	DiscoveryInterval      duration `toml:"discovery_interval" env:"CADENCE_DISCOVERY_INTERVAL"`
	QuotePollInterval      duration `toml:"quote_poll_interval" env:"CADENCE_QUOTE_POLL_INTERVAL"`
	RuleRefreshWorkers     int      `toml:"rule_refresh_workers" env:"CADENCE_RULE_REFRESH_WORKERS"`
	RuleFloorSweepInterval duration `toml:"rule_floor_sweep_interval" env:"CADENCE_RULE_FLOOR_SWEEP_INTERVAL"`
	RuleQueueCapacity      int      `toml:"rule_queue_capacity" env:"CADENCE_RULE_QUEUE_CAPACITY"`
	ScoringInterval        duration `toml:"scoring_interval" env:"CADENCE_SCORING_INTERVAL"`
	DiscoveryDeadline      duration `toml:"discovery_deadline" env:"CADENCE_DISCOVERY_DEADLINE"`
	QuoteDeadline          duration `toml:"quote_deadline" env:"CADENCE_QUOTE_DEADLINE"`
	RuleFetchDeadline      duration `toml:"rule_fetch_deadline" env:"CADENCE_RULE_FETCH_DEADLINE"`
}

// RetentionConfig holds the bounded-history retention window and sweep cadence.
type RetentionConfig struct {
	SamplesRetentionDays int      `toml:"samples_retention_days" env:"RETENTION_SAMPLES_DAYS"`
	SweepInterval        duration `toml:"sweep_interval" env:"RETENTION_SWEEP_INTERVAL"`
}

// ScoringConfig holds the Scoring Engine's eligibility gates, feature
// constants, weights, and normalization bounds (spec §4.E, §6). The
// normalization bounds are configuration rather than constants in the
// scoring code; Defaults supplies illustrative starting values that
// operators override.
type ScoringConfig struct {
	FeeBpsByVenue map[string]float64 `toml:"fee_bps_by_venue"`

	MinTRemainingSec int64 `toml:"min_t_remaining_sec" env:"SCORING_MIN_T_REMAINING_SEC"`
	MaxTRemainingSec int64 `toml:"max_t_remaining_sec" env:"SCORING_MAX_T_REMAINING_SEC"`
	QuoteStaleMaxSec int64 `toml:"quote_stale_max_sec" env:"SCORING_QUOTE_STALE_MAX_SEC"`
	SpreadTarget     float64 `toml:"spread_target" env:"SCORING_SPREAD_TARGET"`

	WeightYieldVelocity    float64 `toml:"weight_yield_velocity" env:"SCORING_WEIGHT_YIELD_VELOCITY"`
	WeightNetYield         float64 `toml:"weight_net_yield" env:"SCORING_WEIGHT_NET_YIELD"`
	WeightLiquidity        float64 `toml:"weight_liquidity" env:"SCORING_WEIGHT_LIQUIDITY"`
	WeightDefinitionRisk   float64 `toml:"weight_definition_risk" env:"SCORING_WEIGHT_DEFINITION_RISK"`
	WeightStalenessPenalty float64 `toml:"weight_staleness_penalty" env:"SCORING_WEIGHT_STALENESS_PENALTY"`

	// NormYieldVelocityBounds / NormNetYieldBounds are the [lo, hi] bounds
	// passed to norm(x, lo, hi) for yield_velocity and net_yield. Validate
	// rejects a pair whose hi does not exceed lo.
	NormYieldVelocityLo float64 `toml:"norm_yield_velocity_lo" env:"SCORING_NORM_YIELD_VELOCITY_LO"`
	NormYieldVelocityHi float64 `toml:"norm_yield_velocity_hi" env:"SCORING_NORM_YIELD_VELOCITY_HI"`
	NormNetYieldLo      float64 `toml:"norm_net_yield_lo" env:"SCORING_NORM_NET_YIELD_LO"`
	NormNetYieldHi      float64 `toml:"norm_net_yield_hi" env:"SCORING_NORM_NET_YIELD_HI"`

	MaxMarketsPerTick int `toml:"max_markets_per_tick" env:"SCORING_MAX_MARKETS_PER_TICK"`
	ChunkSize         int `toml:"chunk_size" env:"SCORING_CHUNK_SIZE"`

	// TieBreakPolicy resolves spec.md's second stated Open Question: which
	// side to recommend when both ask prices cluster near 0.5. One of
	// "prefer_no", "prefer_yes", "skip".
	TieBreakPolicy string  `toml:"tie_break_policy" env:"SCORING_TIE_BREAK_POLICY"`
	TieBreakBandHalfWidth float64 `toml:"tie_break_band_half_width" env:"SCORING_TIE_BREAK_BAND_HALF_WIDTH"`
}

// StoreConfig holds PostgreSQL connection parameters for the Persistence Gateway.
type StoreConfig struct {
	DSN           string `toml:"dsn" env:"STORE_DSN"`
	Host          string `toml:"host" env:"STORE_HOST"`
	Port          int    `toml:"port" env:"STORE_PORT"`
	Database      string `toml:"database" env:"STORE_DATABASE"`
	User          string `toml:"user" env:"STORE_USER"`
	Password      string `toml:"password" env:"STORE_PASSWORD"`
	SSLMode       string `toml:"ssl_mode" env:"STORE_SSL_MODE"`
	PoolMaxConns  int    `toml:"pool_max_conns" env:"STORE_POOL_MAX_CONNS"`
	PoolMinConns  int    `toml:"pool_min_conns" env:"STORE_POOL_MIN_CONNS"`
	RunMigrations bool   `toml:"run_migrations" env:"STORE_RUN_MIGRATIONS"`
}

// RedisConfig holds Redis connection parameters for the rule-fetch lock and
// the per-venue rate limiter.
type RedisConfig struct {
	Addr       string `toml:"addr" env:"REDIS_ADDR"`
	Password   string `toml:"password" env:"REDIS_PASSWORD"`
	DB         int    `toml:"db" env:"REDIS_DB"`
	PoolSize   int    `toml:"pool_size" env:"REDIS_POOL_SIZE"`
	MaxRetries int    `toml:"max_retries" env:"REDIS_MAX_RETRIES"`
	TLSEnabled bool   `toml:"tls_enabled" env:"REDIS_TLS_ENABLED"`

	RuleLockTTL        duration `toml:"rule_lock_ttl" env:"REDIS_RULE_LOCK_TTL"`
	VenueRateLimit     int      `toml:"venue_rate_limit" env:"REDIS_VENUE_RATE_LIMIT"`
	VenueRateWindowSec int      `toml:"venue_rate_window_sec" env:"REDIS_VENUE_RATE_WINDOW_SEC"`
}

// S3Config holds S3-compatible object storage parameters used to archive
// the quote samples deleted by the retention sweep.
type S3Config struct {
	Endpoint       string `toml:"endpoint" env:"S3_ENDPOINT"`
	Region         string `toml:"region" env:"S3_REGION"`
	Bucket         string `toml:"bucket" env:"S3_BUCKET"`
	Prefix         string `toml:"prefix" env:"S3_PREFIX"`
	AccessKey      string `toml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey      string `toml:"secret_key" env:"S3_SECRET_KEY"`
	UseSSL         bool   `toml:"use_ssl" env:"S3_USE_SSL"`
	ForcePathStyle bool   `toml:"force_path_style" env:"S3_FORCE_PATH_STYLE"`
}

// NotifyConfig holds best-effort notification fan-out credentials for
// high-value recommendation ticks.
type NotifyConfig struct {
	TelegramToken     string  `toml:"telegram_token" env:"NOTIFY_TELEGRAM_TOKEN"`
	TelegramChatID    string  `toml:"telegram_chat_id" env:"NOTIFY_TELEGRAM_CHAT_ID"`
	DiscordWebhookURL string  `toml:"discord_webhook_url" env:"NOTIFY_DISCORD_WEBHOOK_URL"`
	MinOverallScore   float64 `toml:"min_overall_score" env:"NOTIFY_MIN_OVERALL_SCORE"`
}

// HealthConfig holds the liveness/readiness HTTP endpoint parameters. This
// is ambient process-supervision plumbing, not the out-of-scope read surface.
type HealthConfig struct {
	Enabled bool `toml:"enabled" env:"HEALTH_ENABLED"`
	Port    int  `toml:"port" env:"HEALTH_PORT"`
}

// MetricsConfig holds the Prometheus exposition endpoint parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" env:"METRICS_ENABLED"`
	Port    int  `toml:"port" env:"METRICS_PORT"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// defaultBreaker returns the retry/backoff and circuit-breaker defaults
// named in spec §4.A: base backoff 250ms, cap 30s, 25% jitter, 5 attempts,
// breaker opens after 10 consecutive failures with a 60s cool-down.
func defaultBreaker() BreakerConfig {
	return BreakerConfig{
		MaxAttempts:      5,
		BaseBackoff:      duration{250 * time.Millisecond},
		MaxBackoff:       duration{30 * time.Second},
		JitterFraction:   0.25,
		FailureThreshold: 10,
		CooldownPeriod:   duration{60 * time.Second},
	}
}

// Defaults returns a Config populated with the defaults named in spec §6.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			Enabled:    true,
			GammaHost:  "https://gamma-api.polymarket.com",
			BatchLimit: 100,
			TimeoutSec: 15,
			Breaker:    defaultBreaker(),
		},
		Kalshi: KalshiConfig{
			Enabled:    false,
			BaseURL:    "https://api.elections.kalshi.com/trade-api/v2",
			BatchLimit: 100,
			TimeoutSec: 15,
			Breaker:    defaultBreaker(),
		},
		Cadence: CadenceConfig{
			DiscoveryInterval:      duration{30 * time.Minute},
			QuotePollInterval:      duration{60 * time.Second},
			RuleRefreshWorkers:     4,
			RuleFloorSweepInterval: duration{24 * time.Hour},
			RuleQueueCapacity:      10_000,
			ScoringInterval:        duration{120 * time.Second},
			DiscoveryDeadline:      duration{15 * time.Second},
			QuoteDeadline:          duration{15 * time.Second},
			RuleFetchDeadline:      duration{30 * time.Second},
		},
		Retention: RetentionConfig{
			SamplesRetentionDays: 7,
			SweepInterval:        duration{24 * time.Hour},
		},
		Scoring: ScoringConfig{
			FeeBpsByVenue: map[string]float64{
				"polymarket": 120,
				"kalshi":     120,
			},
			MinTRemainingSec:      3_600,
			MaxTRemainingSec:      1_209_600,
			QuoteStaleMaxSec:      180,
			SpreadTarget:          0.05,
			WeightYieldVelocity:   0.45,
			WeightNetYield:        0.25,
			WeightLiquidity:       0.15,
			WeightDefinitionRisk:  0.10,
			WeightStalenessPenalty: 0.05,
			// NormYieldVelocity/NormNetYield bounds: spec.md's stated Open
			// Question leaves these ambiguous; these defaults mirror the
			// illustrative bounds in the reference implementation's scoring
			// config and must be tuned per deployment.
			NormYieldVelocityLo: 0,
			NormYieldVelocityHi: 1.0,
			NormNetYieldLo:      0,
			NormNetYieldHi:      0.5,
			MaxMarketsPerTick:     10_000,
			ChunkSize:             1_000,
			TieBreakPolicy:        "prefer_no",
			TieBreakBandHalfWidth: 0.005,
		},
		Store: StoreConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  16,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:               "localhost:6379",
			DB:                 0,
			PoolSize:           20,
			MaxRetries:         3,
			RuleLockTTL:        duration{5 * time.Minute},
			VenueRateLimit:     5,
			VenueRateWindowSec: 1,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "endgamesweep-archive",
			Prefix:         "quote-samples/",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			MinOverallScore: 0.75,
		},
		Health: HealthConfig{
			Enabled: true,
			Port:    8090,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9100,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTieBreakPolicies = map[string]bool{
	"prefer_no":  true,
	"prefer_yes": true,
	"skip":       true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Per spec §7, a
// configuration error is the only failure class that is fatal at startup.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !c.Polymarket.Enabled && !c.Kalshi.Enabled {
		errs = append(errs, "at least one of polymarket.enabled or kalshi.enabled must be true")
	}
	if c.Polymarket.Enabled && c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty when enabled")
	}
	if c.Kalshi.Enabled {
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url must not be empty when enabled")
		}
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required when enabled")
		}
		if c.Kalshi.PrivateKeyPath == "" {
			errs = append(errs, "kalshi: private_key_path is required when enabled")
		}
	}

	if c.Cadence.DiscoveryInterval.Duration <= 0 {
		errs = append(errs, "cadence: discovery_interval must be > 0")
	}
	if c.Cadence.QuotePollInterval.Duration <= 0 {
		errs = append(errs, "cadence: quote_poll_interval must be > 0")
	}
	if c.Cadence.ScoringInterval.Duration <= 0 {
		errs = append(errs, "cadence: scoring_interval must be > 0")
	}
	if c.Cadence.RuleRefreshWorkers < 1 {
		errs = append(errs, "cadence: rule_refresh_workers must be >= 1")
	}
	if c.Cadence.RuleQueueCapacity < 1 {
		errs = append(errs, "cadence: rule_queue_capacity must be >= 1")
	}

	if c.Retention.SamplesRetentionDays < 1 {
		errs = append(errs, "retention: samples_retention_days must be >= 1")
	}

	if c.Scoring.MinTRemainingSec < 0 {
		errs = append(errs, "scoring: min_t_remaining_sec must be >= 0")
	}
	if c.Scoring.MaxTRemainingSec <= c.Scoring.MinTRemainingSec {
		errs = append(errs, "scoring: max_t_remaining_sec must exceed min_t_remaining_sec")
	}
	if c.Scoring.QuoteStaleMaxSec <= 0 {
		errs = append(errs, "scoring: quote_stale_max_sec must be > 0")
	}
	if c.Scoring.SpreadTarget <= 0 {
		errs = append(errs, "scoring: spread_target must be > 0")
	}
	if c.Scoring.NormYieldVelocityHi <= c.Scoring.NormYieldVelocityLo {
		errs = append(errs, "scoring: norm_yield_velocity_hi must exceed norm_yield_velocity_lo")
	}
	if c.Scoring.NormNetYieldHi <= c.Scoring.NormNetYieldLo {
		errs = append(errs, "scoring: norm_net_yield_hi must exceed norm_net_yield_lo")
	}
	if !validTieBreakPolicies[c.Scoring.TieBreakPolicy] {
		errs = append(errs, fmt.Sprintf("scoring: unknown tie_break_policy %q (valid: prefer_no, prefer_yes, skip)", c.Scoring.TieBreakPolicy))
	}
	if c.Scoring.MaxMarketsPerTick < 1 {
		errs = append(errs, "scoring: max_markets_per_tick must be >= 1")
	}
	if c.Scoring.ChunkSize < 1 || c.Scoring.ChunkSize > 1000 {
		errs = append(errs, "scoring: chunk_size must be in [1, 1000]")
	}

	if strings.TrimSpace(c.Store.DSN) == "" {
		if c.Store.Host == "" {
			errs = append(errs, "store: host must not be empty (or set store.dsn)")
		}
		if c.Store.Port <= 0 || c.Store.Port > 65535 {
			errs = append(errs, fmt.Sprintf("store: port must be 1-65535, got %d", c.Store.Port))
		}
		if c.Store.Database == "" {
			errs = append(errs, "store: database must not be empty")
		}
	}
	if c.Store.PoolMaxConns < 1 {
		errs = append(errs, "store: pool_max_conns must be >= 1")
	}
	if c.Store.PoolMinConns < 0 {
		errs = append(errs, "store: pool_min_conns must be >= 0")
	}
	if c.Store.PoolMinConns > c.Store.PoolMaxConns {
		errs = append(errs, "store: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.VenueRateLimit < 1 {
		errs = append(errs, "redis: venue_rate_limit must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Health.Enabled && (c.Health.Port <= 0 || c.Health.Port > 65535) {
		errs = append(errs, fmt.Sprintf("health: port must be 1-65535, got %d", c.Health.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
