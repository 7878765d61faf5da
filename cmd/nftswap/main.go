package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nftswap",
		Short:        "NFT swap pools, factory and pool event tooling",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newFactoryCmd())
	root.AddCommand(newPoolCmd())
	root.AddCommand(newExchangeCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newWalletCmd())

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index pool event logs from the chain",
		RunE:  runIndex,
	}

	indexCmd.Flags().String("rpc", "", "RPC URL")
	indexCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	indexCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	indexCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	indexCmd.Flags().StringSlice("topic0", nil, "topic0 hashes (comma-separated), defaults to all pool events")
	indexCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	indexCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	indexCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the pool_logs table")
	indexCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	indexCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	indexCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	indexCmd.Flags().Duration("max-backoff", 30*time.Second, "maximum retry backoff")
	indexCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")
	indexCmd.Flags().Float64("rpc-rate", 0, "max RPC requests per second, 0 means unlimited")
	indexCmd.Flags().Int("rpc-burst", 1, "RPC rate limiter burst")
	indexCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(indexCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode pool log records into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "RPC URL for pool metadata lookups")
	decodeCmd.Flags().String("in", "./data/logs.jsonl", "input log records JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("workspace", "", "local workspace to take pool metadata from")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().Float64("rpc-rate", 0, "max RPC requests per second, 0 means unlimited")
	decodeCmd.Flags().Int("rpc-burst", 1, "RPC rate limiter burst")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into pool activity windows",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "1h", "aggregation window (e.g. 5m, 1h)")
	aggregateCmd.Flags().String("out", "./data/pool_activity.jsonl", "output activity windows JSONL when no Postgres DSN is set")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN for pools and activity windows")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("state-name", "pool_activity", "state row name when progress is kept in Postgres")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check escrowed tokens of live exchanges against on-chain ownerOf",
		RunE:  runReconcile,
	}

	reconcileCmd.Flags().String("rpc", "", "RPC URL")
	reconcileCmd.Flags().String("workspace", "./data/workspace.json", "workspace snapshot path")
	reconcileCmd.Flags().Uint64("block", 0, "block to query, 0 means latest")
	reconcileCmd.Flags().Float64("rpc-rate", 0, "max RPC requests per second, 0 means unlimited")
	reconcileCmd.Flags().Int("rpc-burst", 1, "RPC rate limiter burst")
	reconcileCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reconcileCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
