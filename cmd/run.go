package cmd

import (
	"context"
	"fmt"
	"time"

	"scrimbet/bot"
	"scrimbet/config"
	"scrimbet/database"
	"scrimbet/events"
	"scrimbet/games"
	"scrimbet/models"
	"scrimbet/observability"
	"scrimbet/repository"
	"scrimbet/scheduler"
	"scrimbet/service"

	log "github.com/sirupsen/logrus"
)

const (
	pruneInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// App holds the services the chat front end calls into
type App struct {
	Bus     *events.Bus
	Ledger  service.LedgerService
	Economy service.EconomyService
	Wagers  service.WagerService
	Matches service.MatchService
	Stats   service.StatsService

	cfg       *config.Config
	db        *database.DB
	scheduler *scheduler.Scheduler
	metrics   *observability.MetricsProvider
	nats      *events.NATSPublisher
	bot       *bot.Bot
}

// Run initializes the application and blocks until ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	configureLogging(cfg)

	log.WithField("environment", cfg.Environment).Info("Starting scrimbet...")

	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	app.Start()

	log.Infof("Bot is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Shutdown(shutdownCtx)

	log.Info("Shutdown completed")
	return nil
}

// configureLogging applies the level and picks JSON output in production
func configureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// Build wires storage, the ledger and the game services. Optional outputs
// (NATS, metrics, the log channel) are connected when configured.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Bus: events.NewBus(), cfg: cfg}

	store, err := app.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app.Ledger = service.NewLedgerService(store, app.Bus)
	if err := app.Ledger.Load(ctx); err != nil {
		app.closeDB()
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	log.WithField("accounts", len(app.Ledger.Accounts(ctx))).Info("Ledger loaded")

	if err := app.buildServices(cfg); err != nil {
		app.closeDB()
		return nil, err
	}

	app.scheduler, err = scheduler.New(app.Ledger, app.Wagers, app.Matches, scheduler.Config{
		FlushInterval:     cfg.FlushInterval,
		PruneInterval:     pruneInterval,
		WagerRetention:    cfg.WagerRetention,
		FinishedRetention: cfg.FinishedRetention,
	})
	if err != nil {
		app.closeDB()
		return nil, err
	}

	app.connectOutputs(ctx, cfg)
	return app, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (service.AccountStore, error) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		url := cfg.GetDatabaseURL()
		if err := database.RunMigrationsWithURL(url); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		log.Info("Connecting to database...")
		db, err := database.NewConnection(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		service.SubscribeBalanceHistory(a.Bus, repository.NewBalanceHistoryRepository(db))
		return repository.NewPostgresAccountStore(db), nil

	default:
		log.WithField("path", cfg.DataFile).Info("Using file account store")
		return repository.NewFileAccountStore(cfg.DataFile), nil
	}
}

// Actor identifies a caller for match commands; configured admins may act
// on matches they do not host
func (a *App) Actor(userID int64) models.Actor {
	return models.Actor{ID: userID, Admin: a.cfg.IsAdmin(userID)}
}

func (a *App) buildServices(cfg *config.Config) error {
	location, err := cfg.AttendanceLocation()
	if err != nil {
		return err
	}
	mines, err := cfg.MinesConfig()
	if err != nil {
		return err
	}
	crash, err := cfg.CrashConfig()
	if err != nil {
		return err
	}
	rps, err := cfg.RPSConfig()
	if err != nil {
		return err
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := games.NewRandom(seed)

	a.Economy = service.NewEconomyService(a.Ledger, location, cfg.AttendanceReward)
	a.Stats = service.NewStatsService(a.Ledger, service.StatsConfig{
		MinMatchesForWinRate: cfg.LeaderboardMinMatches,
		LeaderboardSize:      cfg.LeaderboardSize,
	})

	a.Wagers, err = service.NewWagerService(a.Ledger, a.Bus, rng, service.WagerConfig{
		MinBet:       cfg.MinBet,
		Mines:        mines,
		MinesTimeout: cfg.MinesTimeout,
		Crash:        crash,
		RPS:          rps,
		RPSTimeout:   cfg.RPSTimeout,
		Cooldowns: map[models.GameType]time.Duration{
			models.GameTypeMines: cfg.MinesCooldown,
			models.GameTypeCrash: cfg.CrashCooldown,
			models.GameTypeRPS:   cfg.RPSCooldown,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create wager service: %w", err)
	}

	a.Matches = service.NewMatchService(a.Ledger, a.Bus, rng, service.MatchConfig{
		MinBet:          cfg.MinBet,
		DefaultCapacity: cfg.MatchCapacity,
		BettingWindow:   cfg.BettingWindow,
		ResultTimeout:   cfg.ResultTimeout,
	})
	return nil
}

// connectOutputs attaches the optional event consumers. A failure here is
// logged and the bot keeps running without that output.
func (a *App) connectOutputs(ctx context.Context, cfg *config.Config) {
	if cfg.NATSServers != "" {
		publisher := events.NewNATSPublisher(cfg.NATSServers)
		if err := publisher.Connect(ctx); err != nil {
			log.WithError(err).Error("Failed to connect to NATS, event forwarding disabled")
		} else {
			publisher.Attach(a.Bus)
			a.nats = publisher
		}
	}

	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		log.WithError(err).Error("Failed to initialize metrics")
	} else {
		metrics.Subscribe(a.Bus)
		a.metrics = metrics
	}

	if cfg.DiscordToken != "" && cfg.LogChannelID != "" {
		discordBot, err := bot.New(bot.Config{
			Token:        cfg.DiscordToken,
			LogChannelID: cfg.LogChannelID,
		}, a.Bus)
		if err != nil {
			log.WithError(err).Error("Failed to start Discord log channel")
		} else {
			a.bot = discordBot
		}
	}
}

// Start begins the maintenance jobs
func (a *App) Start() {
	a.scheduler.Start()
}

// Shutdown stops timers, refunds open wager sessions and flushes the ledger
func (a *App) Shutdown(ctx context.Context) {
	if err := a.scheduler.Shutdown(); err != nil {
		log.WithError(err).Warn("Error stopping scheduler")
	}

	a.Wagers.Close(ctx)
	a.Matches.Close()

	if err := a.Ledger.Flush(ctx); err != nil {
		log.WithError(err).Error("Final ledger flush failed")
	}

	if a.bot != nil {
		if err := a.bot.Close(); err != nil {
			log.WithError(err).Warn("Error closing Discord session")
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			log.WithError(err).Warn("Error closing NATS connection")
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Error shutting down metrics")
		}
	}

	a.closeDB()
}

func (a *App) closeDB() {
	if a.db != nil {
		log.Info("Closing database connection...")
		a.db.Close()
		a.db = nil
	}
}
