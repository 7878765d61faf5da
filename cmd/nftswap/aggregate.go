package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftSwap/internal/aggregate"
	"nftSwap/internal/config"
	"nftSwap/internal/storage"
	"nftSwap/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	windowSeconds, err := cfg.WindowSeconds()
	if err != nil {
		return err
	}
	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, state, closeSink, err := openActivitySink(ctx, cfg, windowSeconds)
	if err != nil {
		return err
	}
	defer closeSink()

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	return aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    state,
	}, sink, logger).Run(ctx, cfg.Input)
}

// openActivitySink picks where windows and the watermark go. With a DSN both
// live in Postgres unless a state file is named; without one, windows are
// appended to the output file and the watermark needs a state file to persist.
func openActivitySink(ctx context.Context, cfg config.AggregateConfig, windowSeconds uint64) (aggregate.WindowSink, aggregate.StateStore, func(), error) {
	var state aggregate.StateStore
	if cfg.StateFile != "" {
		state = &aggregate.FileStateStore{Path: cfg.StateFile, WindowSeconds: windowSeconds}
	}

	if cfg.PGDSN == "" {
		if cfg.Out == "" {
			return nil, nil, nil, fmt.Errorf("either pg dsn or output path is required")
		}
		return &storage.ActivityFile{WindowsPath: cfg.Out}, state, func() {}, nil
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	if state == nil {
		state = &aggregate.TableStateStore{Table: store, Name: cfg.StateName, WindowSeconds: windowSeconds}
	}
	return store, state, store.Close, nil
}
