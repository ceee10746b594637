// bot runs the registration and RSVP Telegram bot. Configure via .env or the environment
// (TELEGRAM_BOT_TOKEN, DATABASE_URL, CAPACITY, ADMIN_IDS, ...). Pass -migrate to apply the schema first.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	adminhandler "rsvp-bot/internal/admin/handler"
	"rsvp-bot/internal/admin/policy"
	"rsvp-bot/internal/bot"
	"rsvp-bot/internal/config"
	"rsvp-bot/internal/db"
	"rsvp-bot/internal/db/migrate"
	"rsvp-bot/internal/dialog"
	healthhandler "rsvp-bot/internal/health/handler"
	regrepo "rsvp-bot/internal/registration/repository"
	regservice "rsvp-bot/internal/registration/service"
	rsvprepo "rsvp-bot/internal/rsvp/repository"
	rsvpservice "rsvp-bot/internal/rsvp/service"
	"rsvp-bot/internal/server"
	"rsvp-bot/internal/telemetry"
	telemetryotel "rsvp-bot/internal/telemetry/otel"
)

const healthCheckInterval = 15 * time.Second

func main() {
	runMigrations := flag.Bool("migrate", false, "apply database migrations before starting (postgres storage only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger, *runMigrations); err != nil {
		logger.Error("bot stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, runMigrations bool) error {
	if cfg.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	adminIDs, err := cfg.AdminChatIDs()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown", "error", err)
		}
	}()
	events := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	regStore, rsvpStore, conn, err := openStorage(ctx, cfg, runMigrations, logger)
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}
	regs := regservice.NewService(regStore, regStore)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return err
	}
	logger.Info("telegram: authorized", "username", api.Self.UserName)
	if err := bot.RegisterCommands(api); err != nil {
		logger.Warn("telegram: command menu not set", "error", err)
	}

	ctrl := rsvpservice.NewController(rsvpStore, regs, bot.NewNotifier(api, logger), cfg.Capacity,
		rsvpservice.WithLogger(logger),
		rsvpservice.WithEventEmitter(events),
		rsvpservice.WithMeterProvider(providers.MeterProvider),
	)
	engine := dialog.NewEngine(dialog.NewCacheStore(cfg.StateTTL()), regs, cfg.AffiliationLabel, logger, events)
	auth, err := policy.NewAuthorizer(ctx, adminIDs)
	if err != nil {
		return err
	}
	if len(adminIDs) == 0 {
		logger.Warn("admin: ADMIN_IDS is empty; operator commands are disabled")
	}
	admin := adminhandler.NewHandler(auth, ctrl, regs, cfg.RSVPWindow(), logger)
	router := bot.NewRouter(api, engine, ctrl, admin, logger)

	var pinger healthhandler.Pinger
	if conn != nil {
		pinger = conn
	}
	health := healthhandler.NewServer(pinger, auth, logger)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HealthAddr != "" {
		grpcServer := server.New(health, logger)
		g.Go(func() error {
			health.Run(gctx, healthCheckInterval)
			return nil
		})
		g.Go(func() error { return server.Serve(gctx, cfg.HealthAddr, grpcServer, logger) })
	}
	g.Go(func() error {
		err := bot.NewPoller(api, router, cfg.UpdateWorkers, logger).Run(gctx)
		stop()
		return err
	})
	logger.Info("bot: started", "capacity", cfg.Capacity, "storage", cfg.StorageDriver, "workers", cfg.UpdateWorkers)

	err = g.Wait()
	logger.Info("bot: shutting down, draining telemetry", "drain", telemetry.ShutdownDrainDuration.String())
	time.Sleep(telemetry.ShutdownDrainDuration)
	return err
}

// openStorage builds the registration and RSVP stores for cfg.StorageDriver. conn is nil for memory storage.
func openStorage(ctx context.Context, cfg *config.Config, runMigrations bool, logger *slog.Logger) (*regStores, rsvprepo.Repository, *sql.DB, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("storage: using in-memory storage; data is lost on restart")
		mem := regrepo.NewMemoryRepository()
		return &regStores{Repository: mem, ConsentRepository: mem}, rsvprepo.NewMemoryRepository(), nil, nil
	}
	if runMigrations {
		if err := migrate.Run(cfg.DatabaseURL, migrate.DirectionUp); err != nil {
			return nil, nil, nil, err
		}
		logger.Info("storage: migrations applied")
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	pg := regrepo.NewPostgresRepository(conn)
	return &regStores{Repository: pg, ConsentRepository: pg}, rsvprepo.NewPostgresRepository(conn), conn, nil
}

// regStores pairs the registration and consent stores of one backend.
type regStores struct {
	regrepo.Repository
	regrepo.ConsentRepository
}
