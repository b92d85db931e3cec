// Command marketd runs the commodity marketplace daemon.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/danielvanorman/commandeconomy-sub003/internal/account"
	"github.com/danielvanorman/commandeconomy-sub003/internal/api"
	"github.com/danielvanorman/commandeconomy-sub003/internal/catalog"
	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
	"github.com/danielvanorman/commandeconomy-sub003/internal/inventory"
	"github.com/danielvanorman/commandeconomy-sub003/internal/market"
	"github.com/danielvanorman/commandeconomy-sub003/internal/persistence"
	"github.com/danielvanorman/commandeconomy-sub003/internal/trader"
)

func main() {
	app := &cli.App{
		Name:  "marketd",
		Usage: "commodity marketplace daemon with AI traders",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "marketplace config file (YAML)",
				Value:   "data/marketd.yaml",
			},
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "ware catalog file (JSON)",
				Value: "data/wares.json",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database path",
				Value: "data/market.db",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP API port",
				Value:   8880,
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "AI randomness seed (0 = from clock)",
			},
			&cli.DurationFlag{
				Name:  "save-interval",
				Usage: "incremental save cadence",
				Value: 30 * time.Second,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// ── Config ────────────────────────────────────────────────────────
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		slog.Warn("config load failed, using defaults", "path", c.String("config"), "error", err)
		cfg = config.Default()
	}

	// ── Database ──────────────────────────────────────────────────────
	dbPath := c.String("db")
	os.MkdirAll("data", 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Ware Catalog ──────────────────────────────────────────────────
	reg, err := catalog.Load(c.String("catalog"), cfg)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	// ── Marketplace ───────────────────────────────────────────────────
	ledger := account.NewLedger(cfg)
	inv := inventory.NewStore()
	mkt := market.New(cfg, reg, inv, ledger, market.LogMessenger{})

	if err := db.RestoreMarketState(reg, ledger); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	// ── Trade Feed ────────────────────────────────────────────────────
	hub := api.NewHub()
	go hub.Run()
	mkt.SetOnTrade(func(ev market.TradeEvent) {
		hub.Broadcast(ev)
		if err := db.SaveTradeEvents([]market.TradeEvent{ev}); err != nil {
			slog.Error("trade log write failed", "error", err)
		}
	})

	// ── AI Traders ────────────────────────────────────────────────────
	var ais []*trader.AI
	if len(cfg.ActiveAIs) > 0 {
		profs, err := trader.LoadProfessions(cfg.AIProfessionsPath)
		if err != nil {
			return fmt.Errorf("load professions: %w", err)
		}
		ais = trader.BuildAIs(profs, cfg.ActiveAIs, reg)
	}
	traders := trader.NewHandler(mkt, ais, cfg, c.Int64("seed"))
	traders.Start()

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("MARKETD_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("MARKETD_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Mkt:         mkt,
		Traders:     traders,
		Ledger:      ledger,
		DB:          db,
		Hub:         hub,
		Cfg:         cfg,
		CatalogPath: c.String("catalog"),
		Port:        c.Int("port"),
		AdminKey:    adminKey,
	}
	apiServer.Start()

	// ── Incremental Saves ─────────────────────────────────────────────
	saveTicker := time.NewTicker(c.Duration("save-interval"))
	defer saveTicker.Stop()
	saveDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-saveDone:
				return
			case <-saveTicker.C:
				mkt.Locked(func() {
					if err := db.SaveChanged(mkt.Registry(), ledger); err != nil {
						slog.Error("incremental save failed", "error", err)
					}
				})
			}
		}
	}()

	fmt.Printf("Marketplace is open: %d wares, %d AI traders.\n", reg.Len(), traders.Traders())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", c.Int("port"))
	fmt.Println("Running... (Ctrl+C to stop)")

	// ── Shutdown ──────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	traders.Stop()
	close(saveDone)

	slog.Info("final save...")
	mkt.Locked(func() {
		if err := db.SaveMarketState(mkt.Registry(), ledger); err != nil {
			slog.Error("final save failed", "error", err)
		}
	})

	fmt.Println("Marketplace closed. State saved.")
	return nil
}
