package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjannette/trahn-treasury/internal/api"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/config"
	"github.com/kjannette/trahn-treasury/internal/db"
	"github.com/kjannette/trahn-treasury/internal/engine"
	"github.com/kjannette/trahn-treasury/internal/logging"
	"github.com/kjannette/trahn-treasury/internal/metrics"
	"github.com/kjannette/trahn-treasury/internal/notifications"
	"github.com/kjannette/trahn-treasury/internal/repository"
)

const banner = `
╔══════════════════════════════════════╗
║      TRAHN Treasury Relay v0.3       ║
║                                      ║
╚══════════════════════════════════════╝
`

// recentAuditRecords bounds the in-memory audit ring served without a DB.
const recentAuditRecords = 1000

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	log := logging.New(cfg.LogLevel)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audit sinks
	recorder := audit.NewRecorder(recentAuditRecords)
	sinks := audit.Multi{audit.NewLogSink(logging.Component(log, "audit")), recorder, metrics.Sink{}}

	notify := notifications.NewSender(cfg.WebhookURL, cfg.BotName, logging.Component(log, "notifications"))
	if notify.Enabled() {
		go notify.Run(ctx)
		sinks = append(sinks, notify)
	}

	var kafkaSink *audit.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = audit.NewKafkaSink(audit.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			WriteTimeout: 5 * time.Second,
		}, logging.Component(log, "kafka"))
		sinks = append(sinks, kafkaSink)
	}

	// Database (optional)
	opts := api.Options{
		Port:       cfg.APIPort,
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSAllowOrigin,
		Audit:      api.RecorderReader(recorder),
		Log:        logging.Component(log, "api"),
	}
	var trades engine.TradeLog
	if cfg.DBEnabled {
		log.Info().Str("host", cfg.DBHost).Int("port", cfg.DBPort).Str("db", cfg.DBName).Msg("connecting to database")
		pool, err := db.Connect(ctx, cfg.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer func() {
			pool.Close()
			log.Info().Msg("database pool closed")
		}()
		if err := db.TestConnection(ctx, pool, logging.Component(log, "db")); err != nil {
			log.Fatal().Err(err).Msg("database test query failed")
		}
		if err := db.Migrate(ctx, pool, logging.Component(log, "db")); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}

		tradeRepo := repository.NewTradeRepo(pool)
		auditRepo := repository.NewAuditRepo(pool, logging.Component(log, "audit-repo"))
		sinks = append(sinks, auditRepo)
		trades = tradeRepo
		opts.Trades = tradeRepo
		opts.Audit = auditRepo
		opts.DB = pool
	}

	// Engine
	ex, err := buildExecution(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("execution venue")
	}
	defer ex.close()

	svc, err := buildEngine(ctx, cfg, ex, sinks, trades, log)
	if err != nil {
		log.Fatal().Err(err).Msg("engine genesis")
	}
	st := svc.Status()
	log.Info().
		Str("treasury", st.Treasury.Hex()).
		Str("relay", st.Relay.Hex()).
		Str("params", st.Params.String()).
		Strs("validators", st.Validators).
		Int("pairs", len(svc.Pairs())).
		Msg("engine ready")

	// 1. API server
	srv := api.NewServer(svc, opts)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server error")
		}
	}()

	// 2. Metrics
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.Serve(cfg.MetricsAddr)
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint started")
	}

	log.Info().Msg("all services started")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API shutdown")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.Error().Err(err).Msg("kafka writer close")
		}
	}
	log.Info().Msg("shutdown complete")
}
