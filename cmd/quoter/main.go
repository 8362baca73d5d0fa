package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"polymarket-maker-go/config"
	"polymarket-maker-go/engine"
	"polymarket-maker-go/gateway"
	"polymarket-maker-go/infrastructure/logger"
	"polymarket-maker-go/inventory"
	"polymarket-maker-go/market"
	"polymarket-maker-go/metrics"
	"polymarket-maker-go/order"
	"polymarket-maker-go/store"
	"polymarket-maker-go/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	metricsAddr := flag.String("metricsAddr", ":9100", "Prometheus metrics 监听地址，留空则关闭")
	dryRun := flag.Bool("dryRun", false, "仅计算报价并输出日志，不真正下单")
	liquidate := flag.Bool("liquidate", false, "退出时以地板价清算双向仓位")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("quoter starting",
		zap.String("env", cfg.Env),
		zap.String("condition_id", cfg.Market.ConditionID),
		zap.Bool("dry_run", *dryRun),
		zap.Bool("liquidate_on_exit", *liquidate))

	if *metricsAddr != "" {
		metrics.StartMetricsServer(*metricsAddr)
	}

	client := gateway.NewClient(cfg.Gateway, zlog.Named("gateway"))
	books := market.NewManager()
	ledger := inventory.NewLedger()
	pricer := strategy.NewPricer(cfg.Tick())

	// session resume: restore the ledger from the last persisted snapshot
	var journal order.Journal
	var sessionStore *store.Store
	if cfg.Store.DSN != "" {
		sessionStore, err = store.Open(cfg.Store.DSN, cfg.Market.ConditionID)
		if err != nil {
			zlog.Fatal("open session store", zap.Error(err))
		}
		defer sessionStore.Close()
		journal = sessionStore

		snap, err := sessionStore.LoadLatestSnapshot(context.Background())
		switch {
		case err == nil:
			ledger.Restore(snap)
			zlog.Info("session restored",
				zap.Float64("q_yes", snap.QYes),
				zap.Float64("q_no", snap.QNo),
				zap.Float64("realized_pnl", snap.RealizedPnL),
				zap.Time("updated_at", snap.UpdatedAt))
		case errors.Is(err, store.ErrNoSession):
			zlog.Info("no stored session, starting flat")
		default:
			zlog.Fatal("load session snapshot", zap.Error(err))
		}
	}

	feed := gateway.NewFillStream(cfg.Gateway, cfg.Market.ConditionID, zlog.Named("fills"))
	rec := order.NewReconciler(client, feed, ledger, cfg.OrderSize,
		pricer.HalfTick(), cfg.Market.TokenIDYes, cfg.Market.TokenIDNo,
		zlog.Named("reconciler"))
	rec.SetJournal(journal)
	feed.SetHandler(rec.OnFill)

	eng, err := engine.New(engine.Components{
		Config:     cfg,
		Exchange:   client,
		Books:      books,
		Ledger:     ledger,
		Pricer:     pricer,
		Reconciler: rec,
		Journal:    journal,
		Logger:     zlog.Named("engine"),
	}, *dryRun)
	if err != nil {
		zlog.Fatal("build engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go feed.Run(ctx)

	watcher := config.NewWatcher(*cfgPath, cfg, zlog.Named("config"))
	go func() {
		if err := watcher.Run(ctx); err != nil {
			zlog.Warn("config hot reload disabled", zap.Error(err))
		}
	}()

	eng.Start(ctx)
	notifySystemd(zlog, daemon.SdNotifyReady)
	go watchdogLoop(ctx, zlog)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zlog.Info("signal received, shutting down", zap.String("signal", sig.String()))

	notifySystemd(zlog, daemon.SdNotifyStopping)
	eng.Stop(*liquidate)
	cancel()

	zlog.Info("quoter exited")
}

func notifySystemd(zlog *zap.Logger, state string) {
	if ok, err := daemon.SdNotify(false, state); err != nil {
		zlog.Warn("sd_notify failed", zap.Error(err))
	} else if ok {
		zlog.Debug("sd_notify sent", zap.String("state", state))
	}
}

// watchdogLoop services the systemd watchdog when one is configured.
func watchdogLoop(ctx context.Context, zlog *zap.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notifySystemd(zlog, daemon.SdNotifyWatchdog)
		}
	}
}
