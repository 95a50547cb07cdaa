package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"match-lobby-system/handlers"
	"match-lobby-system/models"
	"match-lobby-system/services"
	"match-lobby-system/storage"
	"match-lobby-system/workers"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, reading environment variables directly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	store := storage.NewStore(client)
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("addr", redisAddr).Msg("failed to connect to redis")
	}

	statsService := services.NewStatsService(store)
	idemCache := services.NewIdempotencyCache(store)

	var notifier services.Notifier
	if webhookURL := os.Getenv("NOTIFY_WEBHOOK_URL"); webhookURL != "" {
		worker := workers.NewNotificationWorker(services.NewWebhookSink(webhookURL), 256)
		go worker.Start(ctx)
		notifier = worker
		log.Info().Str("url", webhookURL).Msg("✅ match notifications enabled")
	} else {
		log.Warn().Msg("NOTIFY_WEBHOOK_URL not set, match notifications disabled")
	}

	engine := services.NewMatchmakingService(store, statsService, idemCache, notifier)

	lobbyMaxAge := 30 * time.Minute
	if raw := os.Getenv("LOBBY_MAX_AGE"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatal().Err(err).Str("value", raw).Msg("invalid LOBBY_MAX_AGE")
		}
		lobbyMaxAge = parsed
	}
	sweeper, err := engine.StartLobbySweeper(ctx, time.Minute, lobbyMaxAge)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start lobby sweeper")
	}
	defer func() { _ = sweeper.Shutdown() }()

	// Postgres mirror is optional; the engine itself needs only redis.
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := db.AutoMigrate(&models.ArchivedMatch{}); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		archiver := workers.NewMatchArchiveWorker(db, store, time.Minute)
		go archiver.Start(ctx)
		log.Info().Msg("✅ match archive worker running")
	} else {
		log.Warn().Msg("DATABASE_URL not set, match archival disabled")
	}

	app := fiber.New(fiber.Config{
		AppName: "match-lobby-system",
	})
	app.Use(cors.New())
	handlers.SetupMatchmakingRoutes(app, engine)

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":5300"
	}
	go func() {
		if err := app.Listen(listenAddr); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	log.Info().Str("addr", listenAddr).Msg("✅ matchmaking server running")
	log.Info().Dur("max_age", lobbyMaxAge).Msg("✅ stale lobby sweeper running (every 1m)")

	<-ctx.Done()
	log.Info().Msg("shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
