// baseline-calc recomputes per-model baselines from stored event history
// and writes them to a snapshot file. The server loads the file at startup
// (DRIFTGUARD_BASELINE_PATH) and publishes it via atomic swap; a failed
// run leaves the previous file untouched.
//
// Intended to run daily from cron or a scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/driftguard-ai/driftguard/internal/baseline"
	"github.com/driftguard-ai/driftguard/internal/chread"
	"github.com/driftguard-ai/driftguard/internal/engine"
)

func main() {
	var (
		projectID  = flag.String("project", "", "project id to recompute baselines for (required)")
		outPath    = flag.String("out", "baselines.csv", "output snapshot path")
		windowDays = flag.Int("window-days", baseline.DefaultWindowDays, "trailing full days of history to aggregate")
		timeout    = flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if *projectID == "" {
		logger.Fatal("-project is required")
	}
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	if clickhouseDSN == "" {
		logger.Fatal("CLICKHOUSE_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, logger, clickhouseDSN, *projectID, *outPath, *windowDays); err != nil {
		if errors.Is(err, baseline.ErrNoSamples) {
			logger.Warn("no history in window, previous snapshot kept", zap.Error(err))
			os.Exit(2)
		}
		logger.Fatal("baseline recalculation failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, dsn, projectID, outPath string, windowDays int) error {
	calc, err := baseline.NewCalculator(engine.NewLexicalEmbedder(), windowDays)
	if err != nil {
		return err
	}

	reader, err := chread.NewReader(dsn, logger)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	now := time.Now().UTC()
	start, end := calc.Window(now)
	logger.Info("fetching history",
		zap.String("project_id", projectID),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	records, err := reader.FetchHistory(ctx, projectID, start, end)
	if err != nil {
		return err
	}
	logger.Info("history fetched", zap.Int("records", len(records)))

	snap, err := calc.Compute(now, records)
	if err != nil {
		return err
	}

	if err := baseline.Save(outPath, snap); err != nil {
		return err
	}
	logger.Info("baselines written",
		zap.String("path", outPath),
		zap.Int("models", snap.Len()),
		zap.Time("computed_at", snap.ComputedAt),
	)
	return nil
}
