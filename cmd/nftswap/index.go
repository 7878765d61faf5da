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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftSwap/internal/chain"
	"nftSwap/internal/config"
	"nftSwap/internal/contract"
	"nftSwap/internal/indexer"
	"nftSwap/internal/metrics"
	"nftSwap/internal/storage"
	"nftSwap/internal/storage/postgres"
)

func runIndex(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadIndex(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	filter, err := indexer.ParseFilter(cfg.Pools, cfg.Topic0)
	if err != nil {
		return err
	}
	if len(filter.Addresses) == 0 {
		return fmt.Errorf("pool address list is required")
	}
	if len(filter.Topic0) == 0 {
		decoder, err := contract.NewPoolDecoder(contract.DecoderConfig{})
		if err != nil {
			return err
		}
		filter.Topic0 = decoder.Topics()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{RequestsPerSecond: cfg.RPCRate, Burst: cfg.RPCBurst})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sink := storage.Multi{storage.NewJsonlStorage(cfg.Out)}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sink = append(sink, store.LogWriter(ctx))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		Filter:            filter,
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		Retry: indexer.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBackoff,
			MaxDelay:   cfg.MaxBackoff,
		},
	}, chainClient, sink, logger, m)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("pools", len(filter.Addresses)),
		zap.Int("topic0", len(filter.Topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	return runner.Run(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", addr))
	return srv
}
