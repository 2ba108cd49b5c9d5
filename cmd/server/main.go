package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/dm-dispatch/internal/api"
	"github.com/ignite/dm-dispatch/internal/config"
	"github.com/ignite/dm-dispatch/internal/events"
	"github.com/ignite/dm-dispatch/internal/pkg/distlock"
	"github.com/ignite/dm-dispatch/internal/pkg/logger"
	"github.com/ignite/dm-dispatch/internal/ratelimit"
	"github.com/ignite/dm-dispatch/internal/repository/postgres"
	"github.com/ignite/dm-dispatch/internal/service/campaign"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
	"github.com/ignite/dm-dispatch/internal/service/progression"
	"github.com/ignite/dm-dispatch/internal/storage"
)

const batchLockKey = "dm-dispatch:process-campaigns"

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("dm-dispatch server (cmd/server)")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		logger.SetLevel(logger.ParseLevel(lvl))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Database: %v", err)
	}
	defer db.Close()
	log.Printf("Database connected: %s", extractHost(cfg.Database.URL))

	redisClient := openRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	counters, err := newCounterStore(ctx, cfg, db, redisClient)
	if err != nil {
		log.Fatalf("Rate limiter: %v", err)
	}
	log.Printf("Daily counters backed by %s", cfg.RateLimit.Backend)

	archive, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize run archive: %v", err)
	}
	log.Printf("Run archive: %s", cfg.Storage.Type)

	var publisher dispatch.Publisher = events.Nop{}
	if cfg.Events.AMQPURL != "" {
		p, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			log.Printf("Warning: AMQP unavailable, events disabled: %v", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	repo := postgres.NewCampaignRepo(db)
	accounts := postgres.NewAccountRepo(db)
	engine := progression.NewEngine(repo)
	dispatcher := dispatch.NewService(
		repo,
		accounts,
		engine,
		ratelimit.New(counters),
		dispatch.Config{
			MaxJobsPerPull:  cfg.Dispatch.MaxJobsPerPull,
			BatchTimeout:    cfg.Dispatch.BatchTimeout(),
			CampaignTimeout: cfg.Dispatch.CampaignTimeout(),
		},
		dispatch.WithPublisher(publisher),
		dispatch.WithRunArchive(archive),
		dispatch.WithBatchLock(func() dispatch.Locker {
			return distlock.NewLock(redisClient, db, batchLockKey, cfg.Dispatch.LockTTL())
		}),
	)
	campaigns := campaign.NewService(repo, accounts)

	if cfg.Cron.Secret == "" {
		log.Println("Warning: CRON_SECRET not set, /api/cron endpoints will reject every call")
	}
	handlers := api.NewHandlers(dispatcher, campaigns, archive, cfg.Cron.Secret)
	health := api.NewHealthChecker(db, redisClient, archive)
	server := api.NewServer(cfg, handlers, health)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// openRedis returns nil when Redis is not configured or unreachable; the
// batch lock then falls back to a PostgreSQL advisory lock.
func openRedis(ctx context.Context, redisURL string) *redis.Client {
	if redisURL == "" {
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(redisURL); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v, falling back to PG advisory locks", err)
		client.Close()
		return nil
	}
	log.Println("Redis connected (distributed locking enabled)")
	return client
}

func newCounterStore(ctx context.Context, cfg *config.Config, db *sql.DB, redisClient *redis.Client) (ratelimit.CounterStore, error) {
	switch cfg.RateLimit.Backend {
	case "postgres", "":
		return postgres.NewCounterRepo(db), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("ratelimit backend redis needs a reachable REDIS_URL")
		}
		return ratelimit.NewRedisStore(redisClient), nil
	case "dynamodb":
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.RateLimit.DynamoDBTable), nil
	case "memory":
		log.Println("Warning: in-memory counters are per-process and reset on restart")
		return ratelimit.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown ratelimit backend %q", cfg.RateLimit.Backend)
	}
}
