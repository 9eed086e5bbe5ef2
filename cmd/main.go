/**
 * @description
 * This is the main entry point for the billing-service. It is responsible for
 * initializing all components of the service, including configuration,
 * database connection and migrations, the Stripe client, the analytics cache,
 * repositories, the core application service, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/pressly/goose/v3 (via internal/store): Schema migrations.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/stripeclient: Client for the Stripe API.
 */

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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/proptly/billing-service/internal/api"
	"github.com/proptly/billing-service/internal/app"
	"github.com/proptly/billing-service/internal/config"
	"github.com/proptly/billing-service/internal/store"
	"github.com/proptly/billing-service/pkg/stripeclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url must be configured\" env=DATABASE_URL")
	}
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"stripe secret key must be configured\" env=STRIPE_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		// The webhook endpoint fails closed without it; boot proceeds so the
		// rest of the API stays available.
		log.Printf("level=warn component=bootstrap msg=\"webhook secret missing; webhook endpoint will reject deliveries\" env=STRIPE_WEBHOOK_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting billing-service\" port=%s", cfg.ServerPort)

	// Apply schema migrations before opening the pool.
	migrationDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"migration connection failed\" err=%v", err)
	}
	if err := store.RunMigrations(migrationDB); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"migrations failed\" err=%v", err)
	}
	migrationDB.Close()
	log.Println("level=info component=bootstrap msg=\"migrations applied\"")

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the Stripe client and the data access layer.
	provider := stripeclient.NewClient(cfg.StripeSecretKey)
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the analytics result cache.
	cache := app.NewAnalyticsCache(
		time.Duration(cfg.AnalyticsCacheTTLSeconds)*time.Second,
		cfg.AnalyticsCacheMaxEntries,
	)

	// Initialize the core application service with its dependencies.
	billingService := app.NewService(repository, provider, cache, cfg.Currency)

	// Payment-creation rate limiting degrades to disabled without Redis.
	if cfg.PaymentRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; payment rate limiting disabled\" env=REDIS_URL")
		} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payment rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payment rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				billingService.SetRateLimiter(
					app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
					cfg.PaymentRateLimitPerMinute,
				)
				log.Println("level=info component=bootstrap msg=\"redis connected; payment rate limiting enabled\"")
			}
		}
	}

	// Initialize the API handlers.
	billingHandlers := api.NewBillingHandlers(billingService)
	webhookHandler := api.NewWebhookHandler(billingService, cfg.StripeWebhookSecret)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/billing", api.BillingRoutes(billingHandlers, webhookHandler, api.AuthOptions{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	}))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
