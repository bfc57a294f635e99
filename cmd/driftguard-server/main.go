package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/driftguard-ai/driftguard/internal/api"
	"github.com/driftguard-ai/driftguard/internal/baseline"
	"github.com/driftguard-ai/driftguard/internal/bus"
	"github.com/driftguard-ai/driftguard/internal/chread"
	"github.com/driftguard-ai/driftguard/internal/engine"
	"github.com/driftguard-ai/driftguard/internal/engine/methods"
	"github.com/driftguard-ai/driftguard/internal/storage"
	"github.com/driftguard-ai/driftguard/internal/store"
	"github.com/driftguard-ai/driftguard/internal/thresholds"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("DRIFTGUARD_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("DRIFTGUARD_HTTP_PORT", "8080")
	driftMode := envOrDefault("DRIFTGUARD_DRIFT_MODE", engine.DriftModeBaseline)
	driftThreshold := envOrDefaultFloat("DRIFTGUARD_DRIFT_THRESHOLD", engine.DefaultDriftThreshold)
	anomalyMethod := envOrDefault("DRIFTGUARD_ANOMALY_METHOD", "zscore")
	anomalyThreshold := envOrDefaultFloat("DRIFTGUARD_ANOMALY_THRESHOLD", engine.DefaultAnomalyThreshold)
	pipelineWorkers := envOrDefaultInt("DRIFTGUARD_PIPELINE_WORKERS", engine.DefaultPipelineWorkers)
	baselinePath := os.Getenv("DRIFTGUARD_BASELINE_PATH")
	thresholdsPath := os.Getenv("DRIFTGUARD_THRESHOLDS_PATH")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	natsURL := os.Getenv("NATS_URL")
	cacheTTL := envOrDefaultInt("DRIFTGUARD_AUTH_CACHE_TTL_S", 30)

	logger.Info("starting driftguard server",
		zap.String("http_port", httpPort),
		zap.String("drift_mode", driftMode),
		zap.Float64("drift_threshold", driftThreshold),
		zap.String("anomaly_method", anomalyMethod),
		zap.Int("pipeline_workers", pipelineWorkers),
	)

	// Baseline store — seeded from the last calculator output when present
	baselines := baseline.NewStore()
	if baselinePath != "" {
		snap, err := baseline.Load(baselinePath)
		if err != nil {
			logger.Warn("baseline file load failed, starting without baselines",
				zap.String("path", baselinePath),
				zap.Error(err),
			)
		} else {
			version := baselines.Swap(snap)
			logger.Info("baselines loaded",
				zap.String("path", baselinePath),
				zap.Int("models", snap.Len()),
				zap.Int64("version", version),
			)
		}
	}

	// Shared threshold table (per-project overrides are layered at auth time)
	var thresholdSource engine.ThresholdSource
	if thresholdsPath != "" {
		table, err := thresholds.LoadFile(thresholdsPath)
		if err != nil {
			logger.Warn("threshold table load failed, using defaults",
				zap.String("path", thresholdsPath),
				zap.Error(err),
			)
		} else {
			thresholdSource = table
			logger.Info("threshold table loaded",
				zap.String("path", thresholdsPath),
				zap.Int("metrics", table.Len()),
			)
		}
	}

	// Engine — detectors wired up here to avoid import cycle
	embedder := engine.NewLexicalEmbedder()

	drift, err := engine.NewDriftDetector(engine.DriftConfig{
		Mode:      driftMode,
		Threshold: driftThreshold,
	}, embedder, baselines)
	if err != nil {
		logger.Fatal("failed to build drift detector", zap.Error(err))
	}

	anomaly, err := engine.NewAnomalyDetector(engine.AnomalyConfig{
		Fields:    engine.CanonicalFields,
		Method:    anomalyMethod,
		Threshold: anomalyThreshold,
	}, methods.Registry(), baselines)
	if err != nil {
		logger.Fatal("failed to build anomaly detector", zap.Error(err))
	}

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres pool (required for HTTP API)
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	pgStore := store.NewStore(db)
	logger.Info("postgres connected")

	// ClickHouse reader (for events/analytics HTTP endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
			chReader = nil
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// NATS publisher (batch summaries for downstream alerting)
	var publisher *bus.Publisher
	if natsURL != "" {
		publisher, err = bus.NewPublisher(natsURL)
		if err != nil {
			logger.Warn("nats connection failed, summaries will not be published",
				zap.Error(err),
			)
			publisher = nil
		} else {
			defer publisher.Close()
			logger.Info("nats publisher connected")
		}
	}

	var trends *engine.TrendTracker
	if envOrDefault("DRIFTGUARD_INCLUDE_TRENDS", "false") == "true" {
		trends = engine.NewTrendTracker(envOrDefaultInt("DRIFTGUARD_TREND_WINDOW", 100))
	}

	deps := &api.Dependencies{
		Store:       pgStore,
		Metrics:     engine.NewMetricsCalculator(),
		Compare:     engine.NewComparator(embedder),
		Trends:      trends,
		Drift:       drift,
		Anomaly:     anomaly,
		Baselines:   baselines,
		Thresholds:  thresholdSource,
		PipelineCfg: engine.PipelineConfig{Workers: pipelineWorkers},
		Writer:      writer,
		Reader:      chReader,
		Bus:         publisher,
		Logger:      logger,
		CacheTTL:    time.Duration(cacheTTL) * time.Second,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("driftguard server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
