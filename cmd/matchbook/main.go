package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/efreitasn/matchbook/internal/cache/rediscache"
	"github.com/efreitasn/matchbook/internal/candle"
	"github.com/efreitasn/matchbook/internal/config"
	"github.com/efreitasn/matchbook/internal/engine"
	"github.com/efreitasn/matchbook/internal/fanout"
	"github.com/efreitasn/matchbook/internal/handler"
	"github.com/efreitasn/matchbook/internal/persist"
	"github.com/efreitasn/matchbook/internal/persist/pebblestore"
	"github.com/efreitasn/matchbook/internal/persist/pgstore"
	"github.com/efreitasn/matchbook/internal/service"
	"github.com/efreitasn/matchbook/internal/transport/kafka"
	"github.com/efreitasn/matchbook/internal/transport/webhook"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		if err := checkHealth(fmt.Sprintf("http://localhost:%s/healthz", port)); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With(slog.String("instrument", cfg.Instrument))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []io.Closer

	eng := engine.New(cfg.Instrument, engine.WithRetention(cfg.TradeRetention))

	// Persistence is optional. A failed restore is fatal so a bad store is
	// never silently overwritten with an empty book.
	var flusher *persist.Flusher
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if store != nil {
		closers = append(closers, store)
		flusher = persist.NewFlusher(eng, store, persist.FlusherConfig{
			Interval: cfg.Store.FlushInterval,
			Retries:  cfg.Store.FlushRetries,
		}, logger.With(slog.String("component", "flusher")))

		snap, err := persist.Restore(ctx, store, eng, flusher)
		if err != nil {
			logger.Error("failed to restore snapshot", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("snapshot restored",
			slog.String("backend", cfg.Store.Backend),
			slog.Int("orders", len(snap.Orders)),
			slog.Int("trades", len(snap.Trades)),
		)
		flusher.Start(ctx)
	}

	var candles candle.Cache
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rc := rediscache.New(rediscache.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Instrument + ":",
			TTL:      service.DefaultCandleLookback,
		})
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis candle cache unreachable, continuing", slog.String("error", err.Error()))
		}
		closers = append(closers, rc)
		candles = rc
	default:
		candles = candle.NewMemoryCache(0)
	}

	hub := fanout.NewHub(fanout.Config{
		DedupWindow:       cfg.DedupWindow,
		KeepaliveInterval: cfg.KeepaliveInterval,
		QueueSize:         cfg.EventQueueSize,
	}, logger.With(slog.String("component", "hub")))
	hub.Start(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		sink := kafka.NewSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.With(slog.String("component", "kafka")))
		if _, err := hub.Subscribe(ctx, sink); err != nil {
			logger.Error("failed to subscribe kafka sink", slog.String("error", err.Error()))
			os.Exit(1)
		}
		closers = append(closers, sink)
		logger.Info("kafka sink enabled", slog.String("topic", cfg.Kafka.Topic))
	}
	if cfg.Webhook.URL != "" {
		sink, err := webhook.NewSink(cfg.Webhook.URL, cfg.Webhook.Timeout, logger.With(slog.String("component", "webhook")))
		if err != nil {
			logger.Error("invalid webhook sink", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sink.Start(ctx)
		if _, err := hub.Subscribe(ctx, sink); err != nil {
			logger.Error("failed to subscribe webhook sink", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("webhook sink enabled")
	}

	orderSvc := service.NewOrderService(eng, hub, logger)
	marketSvc := service.NewMarketService(eng, candles, hub, service.MarketConfig{
		RefreshInterval: cfg.StatsInterval,
	}, logger)
	signalSvc := service.NewSignalService(hub)
	marketSvc.Start(ctx)

	router := handler.NewRouter(orderSvc, marketSvc, signalSvc, hub, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := newServer(ctx, cancel, addr, router, cfg)

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	if flusher != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := flusher.Flush(flushCtx); err != nil {
			logger.Error("final flush failed", slog.String("error", err.Error()))
		}
		flushCancel()
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Error("close failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// newServer builds the HTTP server. Request contexts derive from ctx, and
// cancel runs when Shutdown starts so open streams end instead of holding
// Shutdown until its deadline.
func newServer(ctx context.Context, cancel context.CancelFunc, addr string, h http.Handler, cfg *config.Config) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

func checkHealth(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: status %d", resp.StatusCode)
	}
	return nil
}

// openStore returns nil when persistence is disabled.
func openStore(ctx context.Context, cfg *config.Config) (persist.Store, error) {
	switch cfg.Store.Backend {
	case config.StorePebble:
		return pebblestore.Open(filepath.Join(cfg.Store.PebbleDir, cfg.Instrument), nil)
	case config.StorePostgres:
		return pgstore.Open(ctx, cfg.Store.PostgresDSN, cfg.Instrument)
	}
	return nil, nil
}
