package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"rit-market-maker/config"
	"rit-market-maker/dashboard"
	"rit-market-maker/gateway"
	"rit-market-maker/infrastructure/logger"
	"rit-market-maker/internal/engine"
	"rit-market-maker/internal/ledger"
	"rit-market-maker/internal/quote"
	"rit-market-maker/internal/risk"
	"rit-market-maker/internal/store"
	"rit-market-maker/metrics"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正下单")
	autoStart := flag.Bool("autoStart", true, "进程启动后立即开始交易（false 则等待 dashboard 命令）")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		ErrorFile: cfg.Log.ErrorFile,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.Metrics.Addr != "" {
		metrics.StartMetricsServer(cfg.Metrics.Addr)
	}

	client := &gateway.Client{
		BaseURL:    cfg.Gateway.BaseURL,
		APIKey:     cfg.Gateway.APIKey,
		HTTPClient: gateway.NewDefaultHTTPClient(time.Duration(cfg.Gateway.TimeoutMs) * time.Millisecond),
		Limiter:    gateway.NewTokenBucketLimiter(cfg.Gateway.RestRate, cfg.Gateway.RestBurst),
	}

	model := quote.NewModel(toTunables(cfg.Strategy))
	st := store.New(cfg.Dashboard.LogBuffer)

	eng, err := engine.New(engine.Config{
		Instruments:     cfg.Instruments,
		TickInterval:    time.Duration(cfg.Loop.TickIntervalMs) * time.Millisecond,
		InstrumentDelay: time.Duration(cfg.Loop.InstrumentDelayMs) * time.Millisecond,
		TrimPoll:        time.Duration(cfg.Loop.TrimPollMs) * time.Millisecond,
		ChunkDelay:      time.Duration(cfg.Loop.ChunkDelayMs) * time.Millisecond,
		IdleRetry:       time.Duration(cfg.Loop.IdleRetryMs) * time.Millisecond,
		CrushOffset:     cfg.Strategy.CrushOffset,
		TrimOffset:      cfg.Strategy.TrimOffset,
		DryRun:          *dryRun,
	}, engine.Components{
		Exchange: client,
		Gate: risk.Gate{
			Caps: risk.Caps{
				MaxOrderSize:    cfg.Caps.MaxOrderSize,
				SafetyNetCap:    cfg.Caps.SafetyNetCap,
				SafetyGrossCap:  cfg.Caps.SafetyGrossCap,
				MaxSingleOrder:  cfg.Caps.MaxSingleOrder,
				DangerThreshold: cfg.Caps.DangerThreshold,
				TargetRatio:     cfg.Caps.TargetRatio,
			},
			Windows: risk.Windows{
				Modulo:      cfg.Session.Modulo,
				CrushClose:  cfg.Session.CrushClose,
				CrushOpen:   cfg.Session.CrushOpen,
				ReduceClose: cfg.Session.ReduceClose,
				ReduceOpen:  cfg.Session.ReduceOpen,
			},
			ConcentrationRatio: cfg.Strategy.ConcentrationRatio,
		},
		Model:  model,
		Ledger: ledger.New(cfg.Instruments),
		Store:  st,
		Logger: zlog,
	})
	if err != nil {
		zlog.Fatal("init engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 策略系数热更新
	watcher, err := config.NewWatcher(*cfgPath, 5*time.Second, func(s config.StrategyConfig) {
		model.SetTunables(toTunables(s))
		zlog.Info("strategy tunables reloaded")
	})
	if err != nil {
		zlog.Warn("config watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			zlog.Warn("config watcher start failed", zap.Error(err))
		}
		defer watcher.Close()
	}

	if cfg.Dashboard.Addr != "" {
		srv := dashboard.New(dashboard.Config{
			Addr:         cfg.Dashboard.Addr,
			PushInterval: time.Duration(cfg.Dashboard.PushIntervalMs) * time.Millisecond,
		}, st, eng, zlog)
		go func() {
			if err := srv.Run(ctx); err != nil {
				zlog.Warn("dashboard server exited", zap.Error(err))
			}
		}()
	}

	if *autoStart {
		if err := eng.Start(ctx); err != nil {
			zlog.Fatal("start engine", zap.Error(err))
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	zlog.Info("runner ready",
		zap.String("env", cfg.Env),
		zap.Strings("instruments", cfg.Instruments),
		zap.String("dashboard", cfg.Dashboard.Addr),
		zap.String("metrics", cfg.Metrics.Addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	zlog.Info("shutting down")
	if eng.State() == engine.StateRunning || eng.State() == engine.StateTrimming {
		if err := eng.Stop(); err != nil {
			zlog.Warn("engine stop", zap.Error(err))
		}
	}
	cancel()
}

func toTunables(s config.StrategyConfig) quote.Tunables {
	return quote.Tunables{
		BaseHalfSpread:  s.BaseHalfSpread,
		PushCoeff:       s.PushCoeff,
		PullCoeff:       s.PullCoeff,
		DefensivePull:   s.DefensivePull,
		MinMarketSpread: s.MinMarketSpread,
		VolCap:          s.VolCap,
		HistoryLen:      s.HistoryLen,
	}
}
