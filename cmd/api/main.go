package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gprbooking/internal/api"
	"gprbooking/internal/availability"
	"gprbooking/internal/config"
	"gprbooking/internal/database"
	"gprbooking/internal/domain"
	"gprbooking/internal/events"
	"gprbooking/internal/google"
	"gprbooking/internal/logging"
	"gprbooking/internal/metrics"
	"gprbooking/internal/notify"
	"gprbooking/internal/repository"
	"gprbooking/internal/service"
	"gprbooking/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := loadCatalog(&logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	state := initStateRepository(redisClient, &logger)

	policy := availability.Policy{
		Mode:         availability.MatchMode(cfg.Availability.MatchMode),
		SlotDuration: time.Duration(cfg.Availability.SlotMinutes) * time.Minute,
	}
	finder := repository.NewCachedFinder(db, state, cfg.Availability.CacheDuration(), logging.Component(&logger, "day-cache"))
	checker := availability.NewChecker(finder, policy)

	eventBus := events.NewEventBus()
	eventBus.OnError(func(event *events.Event, err error) {
		logger.Error().Err(err).Str("event_type", event.Type).Msg("event handler failed")
	})
	if forwarder := initAMQP(cfg, &logger); forwarder != nil {
		forwarder.Attach(eventBus, cfg.AMQP.Events)
		defer func() { _ = forwarder.Close() }()
	}

	sheetsService := initGoogleSheets(ctx, cfg, &logger)
	var (
		sheetsWriter domain.SheetsWriter
		mirror       api.BookingsMirror
	)
	if sheetsService != nil {
		sheetsWriter = sheetsService
		mirror = sheetsService
	}

	var notifier domain.Notifier
	if n := initNotifier(cfg, &logger); n != nil {
		notifier = n
	}

	outbox := worker.NewOutboxWorker(db, sheetsWriter, notifier, redisClient, worker.RetryPolicy{Jitter: 0.2}, logging.Component(&logger, "outbox"))
	go outbox.Start(ctx)

	location := cfg.Location()
	services := api.Services{
		Booking: service.NewBookingService(db, checker, catalog, finder, eventBus, outbox,
			cfg.Availability.MaxBookingDays, location, logging.Component(&logger, "booking")),
		Admin: service.NewAdminService(db, policy, finder, eventBus, outbox, logging.Component(&logger, "admin")),
		Contact: service.NewContactService(db, state, eventBus, outbox,
			cfg.Contact.RateLimitMessages, time.Duration(cfg.Contact.RateLimitWindow)*time.Second,
			logging.Component(&logger, "contact")),
		Catalog: catalog,
		Mirror:  mirror,
		Ready: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup"))
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, api.NewAdminAuth(cfg.Admin), services, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, api.NewAvailabilityService(services.Booking, catalog), &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadCatalog(logger *zerolog.Logger) (*service.Catalog, error) {
	path := os.Getenv("SERVICES_PATH")
	if path == "" {
		path = "configs/services.yaml"
	}
	catalog, err := service.LoadCatalog(path)
	if err != nil {
		logger.Error().Err(err).Str("services_path", path).Msg("load services catalog")
		return nil, err
	}
	logger.Info().Int("services", len(catalog.Active())).Msg("Services catalog loaded")
	return catalog, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initStateRepository prefers Redis and falls back to process memory while it is down.
func initStateRepository(client *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository()
	if client == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(
		repository.NewRedisStateRepository(client),
		memory,
		logging.Component(logger, "state"),
	)
}

func initAMQP(cfg *config.Config, logger *zerolog.Logger) *events.AMQPForwarder {
	if cfg.AMQP.URL == "" {
		return nil
	}
	forwarder, err := events.DialAMQPForwarder(cfg.AMQP.URL, cfg.AMQP.Exchange, logging.Component(logger, "amqp"))
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable, events stay in-process")
		return nil
	}
	logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("rabbitmq forwarder attached")
	return forwarder
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(
		ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
		cfg.Google.ContactSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	go sheetsService.StartCacheRefresh(ctx, 10*time.Minute)

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) *notify.TelegramNotifier {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.AdminChatIDs) == 0 {
		return nil
	}
	bot, err := notify.NewBotAPI(cfg.Telegram)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, admin notifications disabled")
		return nil
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
	return notify.NewTelegramNotifier(bot, cfg.Telegram.AdminChatIDs, logging.Component(logger, "telegram"))
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
