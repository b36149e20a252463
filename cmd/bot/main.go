package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/booking"
	"github.com/Ilyushechek/secretar/internal/bot"
	"github.com/Ilyushechek/secretar/internal/chat"
	"github.com/Ilyushechek/secretar/internal/config"
	"github.com/Ilyushechek/secretar/internal/events"
	"github.com/Ilyushechek/secretar/internal/metrics"
	"github.com/Ilyushechek/secretar/internal/notify"
	"github.com/Ilyushechek/secretar/internal/requests"
	"github.com/Ilyushechek/secretar/internal/reviews"
	"github.com/Ilyushechek/secretar/internal/roles"
	"github.com/Ilyushechek/secretar/internal/session"
	"github.com/Ilyushechek/secretar/internal/storage"
)

func main() {
	_ = godotenv.Load()

	var logger zerolog.Logger
	if pretty, _ := strconv.ParseBool(os.Getenv("LOG_PRETTY")); pretty {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	cfg, err := config.Load(os.Getenv("SECRETARY_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}

	db, err := storage.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	// Sessions live in Redis when it is configured; the in-memory fallback
	// keeps the bot answering through Redis outages.
	var rdb *redis.Client
	var repo session.Repository = session.NewMemoryRepository()
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		repo = session.NewFailoverRepository(
			session.NewRedisRepository(rdb, cfg.SessionTTL()),
			session.NewMemoryRepository(),
			&logger,
		)
	}
	sessions := session.NewStore(repo, &logger)

	bus := events.NewBus()
	subscribeAudit(bus, &logger)

	queue := notify.NewQueue(db, &logger)
	chats := chat.NewService(db, bus, &logger)
	bookings := booking.NewWorkflow(db, queue, bus, &logger)
	repeats := requests.NewService(db, queue, bus, &logger)
	ratings := reviews.NewService(db, queue, &logger)
	resolver := roles.NewResolver(sessions, queue, &logger)

	b, err := bot.New(cfg.Telegram.BotToken, bot.Deps{
		Store:    db,
		Sessions: sessions,
		Queue:    queue,
		Chats:    chats,
		Bookings: bookings,
		Requests: repeats,
		Reviews:  ratings,
		Roles:    resolver,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		backups := storage.NewBackupService(cfg.Database.Path, cfg.Backup.Path, cfg.BackupInterval(), cfg.Backup.RetentionDays, &logger)
		go backups.Start(ctx)
	}

	logger.Info().Msg("secretar bot started")
	b.Start(ctx)
}

// subscribeAudit mirrors every domain event into the log and the metrics
// counter.
func subscribeAudit(bus *events.Bus, logger *zerolog.Logger) {
	types := []string{
		events.ChatAccepted,
		events.ChatClosed,
		events.BookingCreated,
		events.BookingCompleted,
		events.BookingCancelled,
		events.RequestAccepted,
	}
	for _, typ := range types {
		bus.Subscribe(typ, func(e events.Event) error {
			metrics.IncEvent(e.Type)
			logger.Info().
				Str("event", e.Type).
				Int64("actor_id", e.ActorID).
				Int64("subject_id", e.SubjectID).
				Time("created_at", e.CreatedAt).
				Msg("domain event")
			return nil
		})
	}
}

func startHealthServer(ctx context.Context, port int, db *storage.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
