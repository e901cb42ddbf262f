package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/admin"
	"github.com/BatmanBruc/chat-earn-ledger/internal/chat"
	"github.com/BatmanBruc/chat-earn-ledger/internal/config"
	"github.com/BatmanBruc/chat-earn-ledger/internal/handlers"
	"github.com/BatmanBruc/chat-earn-ledger/internal/ledger"
	"github.com/BatmanBruc/chat-earn-ledger/internal/middleware"
	"github.com/BatmanBruc/chat-earn-ledger/internal/resolver"
	"github.com/BatmanBruc/chat-earn-ledger/internal/responder"
	"github.com/BatmanBruc/chat-earn-ledger/internal/scheduler"
	"github.com/BatmanBruc/chat-earn-ledger/internal/stats"
	"github.com/BatmanBruc/chat-earn-ledger/internal/utils"
	"github.com/BatmanBruc/chat-earn-ledger/internal/web"
	"github.com/BatmanBruc/chat-earn-ledger/store"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"golang.org/x/sync/errgroup"
)

const telegramWebhookPath = "/telegram/webhook"

type kvStores struct {
	sessions  types.SessionStore
	linkCodes types.SessionStore
	prefs     types.PreferenceStore
	stats     types.StatsCache
	close     func()
}

func main() {
	path := flag.String("config", "config.env", "path to env file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openLedgerStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (types.LedgerStore, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("Using in-memory ledger store, data is lost on restart", slog.String("type", "db"))
		return store.NewMemoryStore(), func() {}, nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN, cfg.DBTimeout, logger)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func openKVStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (kvStores, error) {
	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, sessions and preferences are kept in memory", slog.String("type", "db"))
		return kvStores{
			sessions:  store.NewMemorySessionStore(sessionTTL),
			linkCodes: store.NewMemorySessionStore(cfg.LinkCodeTTL),
			prefs:     store.NewMemoryPreferenceStore(),
			close:     func() {},
		}, nil
	}

	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	if err != nil {
		return kvStores{}, err
	}
	logger.Info("Connected to Redis", slog.String("type", "db"), slog.String("addr", cfg.RedisAddr))
	return kvStores{
		sessions:  store.NewRedisSessionStore(rdb, "session", sessionTTL),
		linkCodes: store.NewRedisSessionStore(rdb, "link_code", cfg.LinkCodeTTL),
		prefs:     store.NewRedisPreferenceStore(rdb, 0),
		stats:     store.NewRedisStatsCache(rdb, cfg.StatsCacheTTL),
		close:     func() { _ = rdb.Close() },
	}, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ledgerStore, closeStore, err := openLedgerStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	kv, err := openKVStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer kv.close()

	engine := ledger.NewEngine(ledgerStore, cfg.Policy, ledger.WithLogger(logger))
	accounts := resolver.New(ledgerStore, cfg.Policy.SignupBonus, resolver.WithLogger(logger))
	aggregator := stats.New(ledgerStore, kv.stats, logger)
	generator := responder.WithTimeout(responder.Keyword{}, cfg.GeneratorTimeout)
	chatSvc := chat.NewService(generator, engine, logger)

	app := fiber.New(fiber.Config{
		AppName:               "chat-earn-ledger",
		DisableStartupMessage: true,
	})
	app.Use(utils.RequestLogger(logger))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	web.NewServer(accounts, chatSvc, ledgerStore, kv.sessions, kv.linkCodes, logger).Mount(app)
	if cfg.AdminUser != "" {
		admin.Mount(app, admin.NewService(ledgerStore, engine, aggregator), cfg.AdminUser, cfg.AdminPass)
	} else {
		logger.Warn("ADMIN_USER not set, admin API disabled", slog.String("type", "http"))
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.BotToken != "" {
		b, err := newBot(gctx, cfg, logger, ledgerStore, chatSvc, accounts, engine, aggregator, kv)
		if err != nil {
			return err
		}
		if cfg.WebhookURL != "" {
			app.Post(telegramWebhookPath, adaptor.HTTPHandler(b.WebhookHandler()))
			if _, err := b.SetWebhook(gctx, &bot.SetWebhookParams{
				URL:         cfg.WebhookURL,
				SecretToken: cfg.WebhookSecret,
			}); err != nil {
				return err
			}
			logger.Info("Telegram webhook registered", slog.String("type", "telegram"), slog.String("url", cfg.WebhookURL))
			g.Go(func() error {
				b.StartWebhook(gctx)
				return nil
			})
		} else {
			if _, err := b.DeleteWebhook(gctx, &bot.DeleteWebhookParams{}); err != nil {
				logger.Warn("Failed to delete webhook", slog.String("type", "telegram"), slog.Any("error", err))
			}
			logger.Info("Telegram long polling started", slog.String("type", "telegram"))
			g.Go(func() error {
				b.Start(gctx)
				return nil
			})
		}
	} else {
		logger.Warn("BOT_TOKEN not set, Telegram front-end disabled", slog.String("type", "telegram"))
	}

	if cfg.StatsReconcileInterval > 0 {
		sched := scheduler.NewScheduler(aggregator, scheduler.Config{Interval: cfg.StatsReconcileInterval}, logger)
		sched.Start()
		defer sched.Stop()
	}

	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("type", "http"), slog.String("addr", cfg.HTTPAddr))
		if err := app.Listen(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	return g.Wait()
}

func newBot(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	ledgerStore types.LedgerStore,
	chatSvc *chat.Service,
	accounts *resolver.Resolver,
	engine *ledger.Engine,
	aggregator *stats.Aggregator,
	kv kvStores,
) (*bot.Bot, error) {
	opts := []bot.Option{
		bot.WithHTTPClient(50*time.Second, &http.Client{Timeout: time.Minute}),
	}
	if cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}
	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, err
	}

	username := ""
	if me, err := b.GetMe(ctx); err != nil {
		logger.Warn("Failed to fetch bot profile", slog.String("type", "telegram"), slog.Any("error", err))
	} else {
		username = me.Username
	}

	h := handlers.NewHandlers(
		ledgerStore,
		chatSvc,
		accounts,
		engine,
		aggregator,
		kv.prefs,
		kv.linkCodes,
		handlers.Settings{
			Policy:      cfg.Policy,
			BotUsername: username,
			IsAdmin:     cfg.IsAdminTelegramID,
		},
		logger,
	)
	mw := middleware.NewMiddlewares(accounts, kv.prefs, logger)
	handlerChain := mw.LangMiddleware(
		mw.AnalyzeMessageMiddleware(
			mw.ResolveAccountMiddleware(
				h.MainHandler,
			),
		),
	)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)
	return b, nil
}
