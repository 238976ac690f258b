package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"p2pcalc/config"
	"p2pcalc/logging"
	"p2pcalc/modules"
	"p2pcalc/modules/calculator"
	"p2pcalc/modules/diagnostics"
	"p2pcalc/modules/p2p"
	"p2pcalc/modules/state"
	"p2pcalc/modules/telegram"
)

const (
	requestTimeout       = 5 * time.Second // Overall request timeout
	shutdownTimeout      = 10 * time.Second
	defaultModuleIcon    = "https://img.icons8.com/badges/100/decision.png"
	noResultsIconPath    = "https://img.icons8.com/badges/100/decision.png"
	p2pModuleIcon        = "https://img.icons8.com/badges/100/exchange.png"
	calculatorModuleIcon = "https://img.icons8.com/badges/100/calculator.png"
)

type app struct {
	log            *zap.SugaredLogger
	sessions       *sessionManager
	modules        []modules.Module
	diag           *diagnostics.Recorder
	relay          http.Handler
	botToken       string
	initDataMaxAge time.Duration
	now            func() time.Time
}

func main() {
	envPath := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	storage, closeStorage, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer closeStorage()

	a := newApp(cfg, storage, logger)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      a.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("P2P calculator listening on %s (storage: %s)", cfg.HTTPAddr, cfg.Storage.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Could not listen on %s: %v", cfg.HTTPAddr, err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Graceful shutdown failed: %v", err)
	}
}

func openStorage(cfg *config.Config, logger *zap.SugaredLogger) (state.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Warnf("Using in-memory storage; state is lost on restart")
		return state.NewMemoryStorage(), func() {}, nil
	case "redis":
		rs := state.NewRedisStorage(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	default:
		return state.NewFileStorage(cfg.Storage.Path), func() {}, nil
	}
}

func newApp(cfg *config.Config, storage state.Storage, logger *zap.SugaredLogger) *app {
	calc := calculator.NewCalculatorModule(calculatorModuleIcon)

	botClient := telegram.NewBotClient(cfg.Telegram.BotToken, telegram.WithClientLogger(logger))
	relay := telegram.NewRelay(botClient, cfg.Telegram.BotToken, cfg.Relay.RateLimit, cfg.Relay.RateWindow,
		telegram.WithRelayLogger(logger),
		telegram.WithInitDataMaxAge(cfg.Telegram.InitDataMaxAge),
	)

	return &app{
		log:      logger,
		sessions: newSessionManager(storage, cfg.SessionTTL, logger),
		modules: []modules.Module{
			p2p.NewP2PModule(p2pModuleIcon, calc),
			calc,
		},
		diag:           diagnostics.NewRecorder(storage, logger),
		relay:          relay,
		botToken:       cfg.Telegram.BotToken,
		initDataMaxAge: cfg.Telegram.InitDataMaxAge,
		now:            time.Now,
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", a.handleQuery)

	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("PUT /api/inputs/{field}", a.handleSetInput)
	mux.HandleFunc("POST /api/reset", a.handleReset)

	mux.HandleFunc("GET /api/history", a.handleListHistory)
	mux.HandleFunc("POST /api/history", a.handleSaveHistory)
	mux.HandleFunc("DELETE /api/history", a.handleClearHistory)
	mux.HandleFunc("GET /api/history/export", a.handleExportHistory)
	mux.HandleFunc("POST /api/history/import", a.handleImportHistory)
	mux.HandleFunc("GET /api/stats", a.handleStats)

	mux.HandleFunc("GET /api/quick-buttons", a.handleListQuickButtons)
	mux.HandleFunc("POST /api/quick-buttons", a.handleAddQuickButton)
	mux.HandleFunc("PUT /api/quick-buttons", a.handleSetQuickButtons)
	mux.HandleFunc("PATCH /api/quick-buttons", a.handleUpdateQuickButton)
	mux.HandleFunc("DELETE /api/quick-buttons", a.handleRemoveQuickButton)

	mux.HandleFunc("PATCH /api/preferences", a.handlePreferences)

	mux.Handle("/api/sendMessage", a.trackRelay(a.relay))

	mux.HandleFunc("GET /api/diagnostics", a.handleDiagnostics)
	mux.HandleFunc("GET /api/diagnostics/export", a.handleExportDiagnostics)
	mux.HandleFunc("DELETE /api/diagnostics", a.handleClearDiagnostics)

	return a.recoverPanics(mux)
}
