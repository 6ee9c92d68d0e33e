// walletd is the device-side agent: it owns the local store, serves the
// loopback API the UI shell talks to, and keeps the store synchronized
// with the remote backend, checking budgets after each wave of ledger
// changes.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"walletcore/internal/analysis"
	"walletcore/internal/balance"
	"walletcore/internal/budget"
	"walletcore/internal/config"
	"walletcore/internal/database"
	"walletcore/internal/handler"
	"walletcore/internal/ledger"
	"walletcore/internal/store"
	"walletcore/internal/syncer"

	"github.com/gin-gonic/gin"
)

// logNotifier delivers budget alerts to the process log. The mobile shell
// replaces this with the platform notification bridge.
type logNotifier struct {
	logger *log.Logger
}

func (n *logNotifier) Notify(title, body string, metadata map[string]string) error {
	n.logger.Printf("notify [%s]: %s %s", metadata["dedupe_key"], title, body)
	return nil
}

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Sync.OwnerID == "" || cfg.Sync.Token == "" {
		log.Fatal("device not paired: sync.owner_id and sync.token required")
	}

	db, err := database.Init(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	logger := log.New(os.Stderr, "walletd ", log.LstdFlags)
	st := store.New(db, store.StaticOwner(cfg.Sync.OwnerID), logger)
	balances := balance.NewMaintainer(logger)
	remote := syncer.NewHTTPRemote(cfg.Sync.RemoteURL, cfg.Sync.Token)
	engine := syncer.NewEngine(st, remote, balances, logger)
	budgets := budget.NewChecker(st, &logNotifier{logger: logger}, logger)

	api := &handler.LocalAPI{
		Store:             st,
		Ledger:            ledger.NewService(st, balances, logger),
		Analyzer:          analysis.NewAnalyzer(st),
		Engine:            engine,
		Budgets:           budgets,
		RecurrenceHorizon: cfg.Sync.RecurrenceHorizon,
	}
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.Register(r)
	go func() {
		// loopback only: the UI shell is the single client
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
		if err := r.Run(addr); err != nil {
			logger.Printf("local api stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx, cfg.Sync.Interval())

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Print("shutting down")
			return
		case <-ticker.C:
			if _, err := budgets.Check(time.Now()); err != nil {
				logger.Printf("budget check failed: %v", err)
			}
		}
	}
}
