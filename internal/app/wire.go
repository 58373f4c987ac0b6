package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	s3blob "github.com/endgamesweep/scanner/internal/blob/s3"
	"github.com/endgamesweep/scanner/internal/cache/redis"
	"github.com/endgamesweep/scanner/internal/config"
	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/health"
	"github.com/endgamesweep/scanner/internal/ingest/ruleq"
	"github.com/endgamesweep/scanner/internal/metrics"
	"github.com/endgamesweep/scanner/internal/notify"
	"github.com/endgamesweep/scanner/internal/scoring"
	"github.com/endgamesweep/scanner/internal/store/postgres"
	"github.com/endgamesweep/scanner/internal/venue"
	"github.com/endgamesweep/scanner/internal/venue/breaker"
	"github.com/endgamesweep/scanner/internal/venue/kalshi"
	"github.com/endgamesweep/scanner/internal/venue/polymarket"
)

// Dependencies bundles every concrete implementation the Ingestion
// Orchestrator, the Scoring Engine, and the retention sweep need to operate.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Venues      []venue.Client
	VenueByName map[string]venue.Client

	MarketStore       domain.MarketStore
	QuoteStore        domain.QuoteStore
	RuleStore         domain.RuleStore
	ScoringInputStore domain.ScoringInputStore
	ScoreWriter       domain.ScoreWriter
	AuditStore        domain.AuditStore

	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.SampleArchiver

	RuleQueue *ruleq.Queue

	Notifier    *notify.Notifier
	Alerter     *notify.RecommendationAlerter
	Metrics     *metrics.Metrics
	Health      *health.Server
	ScoreEngine *scoring.Engine
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{VenueByName: map[string]venue.Client{}}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Store.DSN,
		Host:     cfg.Store.Host,
		Port:     cfg.Store.Port,
		Database: cfg.Store.Database,
		User:     cfg.Store.User,
		Password: cfg.Store.Password,
		SSLMode:  cfg.Store.SSLMode,
		MaxConns: cfg.Store.PoolMaxConns,
		MinConns: cfg.Store.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Store.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.QuoteStore = postgres.NewQuoteStore(pool)
	deps.RuleStore = postgres.NewRuleStore(pool)
	deps.ScoringInputStore = postgres.NewScoringInputStore(pool)
	deps.ScoreWriter = postgres.NewScoreStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- S3-compatible blob storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })

	deps.BlobWriter = s3blob.NewWriter(s3Client)
	deps.BlobReader = s3blob.NewReader(s3Client)
	deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.AuditStore, cfg.S3.Prefix)

	// --- Venue clients, each wrapped in the shared breaker/retry decorator ---
	if cfg.Polymarket.Enabled {
		pm := polymarket.New(cfg.Polymarket.GammaHost, cfg.Polymarket.BatchLimit, time.Duration(cfg.Polymarket.TimeoutSec)*time.Second)
		wrapped := breaker.Wrap(pm, cfg.Polymarket.Breaker)
		deps.Venues = append(deps.Venues, wrapped)
		deps.VenueByName[wrapped.Name()] = wrapped
	}
	if cfg.Kalshi.Enabled {
		pem, err := os.ReadFile(cfg.Kalshi.PrivateKeyPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: read kalshi private key: %w", err)
		}
		ks, err := kalshi.New(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey, pem, cfg.Kalshi.BatchLimit, time.Duration(cfg.Kalshi.TimeoutSec)*time.Second)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kalshi client: %w", err)
		}
		wrapped := breaker.Wrap(ks, cfg.Kalshi.Breaker)
		deps.Venues = append(deps.Venues, wrapped)
		deps.VenueByName[wrapped.Name()] = wrapped
	}

	// --- Rule-fetch queue shared by discovery, the floor sweep, and the worker pool ---
	deps.RuleQueue = ruleq.New(cfg.Cadence.RuleQueueCapacity)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, nil, logger)
	deps.Alerter = notify.NewRecommendationAlerter(deps.Notifier, cfg.Notify.MinOverallScore)

	// --- Metrics and process supervision ---
	deps.Metrics = metrics.New()

	deps.Health = health.New()
	deps.Health.Register("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	deps.Health.Register("redis", redisClient.Ping)
	deps.Health.Register("s3", s3Client.Health)

	// --- Scoring Engine ---
	deps.ScoreEngine = scoring.New(deps.ScoringInputStore, deps.ScoreWriter, cfg.Scoring, logger)

	return deps, cleanup, nil
}
