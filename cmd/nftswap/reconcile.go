package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftSwap/internal/chain"
	"nftSwap/internal/config"
	"nftSwap/internal/reconcile"
	"nftSwap/internal/snapshot"
)

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
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

	snap, ok, err := snapshot.Read(cfg.Workspace)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("workspace not found: %s", cfg.Workspace)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{RequestsPerSecond: cfg.RPCRate, Burst: cfg.RPCBurst})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var block *big.Int
	if cfg.Block > 0 {
		block = new(big.Int).SetUint64(cfg.Block)
	}

	logger.Info("reconcile start",
		zap.String("workspace", cfg.Workspace),
		zap.Int("pools", len(snap.Factory.Pools)),
		zap.Uint64("block", cfg.Block),
	)

	report, err := reconcile.Run(ctx, chainClient, snap.Factory.Pools, block, logger)
	if err != nil {
		return err
	}

	logger.Info("reconcile complete",
		zap.Int("checked", report.Checked),
		zap.Int("mismatches", len(report.Mismatches)),
	)
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if len(report.Mismatches) > 0 {
		return fmt.Errorf("%d of %d escrowed tokens do not match the chain", len(report.Mismatches), report.Checked)
	}
	return nil
}
