/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the reservation ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Configure logging
  3. Open the SQLite store (schema is migrated on open)
  4. Connect optional Redis cache and RabbitMQ publisher
  5. Build the reservation service with its notifiers
  6. Configure the HTTP router and start the server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DATABASE_PATH)
           Use ":memory:" for in-memory database
  -env     Extra .env file to load before the environment

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close broker, cache and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/mesalista.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cafeelangel/mesalista/api"
	"github.com/cafeelangel/mesalista/cache"
	"github.com/cafeelangel/mesalista/config"
	"github.com/cafeelangel/mesalista/events"
	"github.com/cafeelangel/mesalista/reservation"
	"github.com/cafeelangel/mesalista/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DATABASE_PATH)")
	envFile := flag.String("env", ".env", "dotenv file to load")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	setupLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid timezone")
	}
	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty; every token will be rejected")
	}

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to initialize database")
	}
	defer store.Close()

	ctx := context.Background()

	// Optional infrastructure
	rdb := cache.NewRedisClient(ctx, cfg.RedisURL, log.Logger)
	if rdb != nil {
		defer rdb.Close()
	}
	weekly := cache.NewWeeklyCache(rdb, cfg.UpcomingCacheTTL, log.Logger)

	notifiers := reservation.Notifiers{events.NewLogNotifier(log.Logger), weekly}
	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(cfg.AMQPURL, cfg.EventsQueue, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("rabbitmq unavailable, events will only be logged")
		} else {
			defer publisher.Close()
			notifiers = append(notifiers, publisher)
			log.Info().Str("queue", cfg.EventsQueue).Msg("publishing reservation events")
		}
	}

	svc := reservation.NewService(store,
		reservation.WithNotifier(notifiers),
		reservation.WithOverpaymentPolicy(cfg.Overpayment()),
		reservation.WithLocation(loc),
	)

	handler := api.NewHandler(api.Deps{
		Service:     svc,
		Weekly:      weekly,
		Users:       store,
		Seeder:      store,
		JWTSecret:   cfg.JWTSecret,
		Production:  cfg.IsProduction(),
		WindowDays:  cfg.UpcomingWindowDays,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log.Logger,
	})

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("env", cfg.Env).
			Str("db", cfg.DatabasePath).
			Str("overpayment", string(svc.OverpaymentPolicy())).
			Bool("cache", weekly.Enabled()).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// setupLogger configures the global logger: console output in development,
// JSON in production.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
