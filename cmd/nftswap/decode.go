package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftSwap/internal/chain"
	"nftSwap/internal/config"
	"nftSwap/internal/contract"
	"nftSwap/internal/model"
	"nftSwap/internal/snapshot"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decoder, err := contract.NewPoolDecoder(contract.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	decodeCtx := contract.DecodeContext{
		Context:       ctx,
		PoolMetaCache: contract.NewPoolMetaCache(),
		Logger:        logger,
	}

	if cfg.Workspace != "" {
		metas, err := workspacePoolMetas(cfg.Workspace)
		if err != nil {
			return err
		}
		decodeCtx.PoolMetaCache.Load(metas)
		logger.Info("pool metadata loaded from workspace", zap.Int("pools", len(metas)))
	}

	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{RequestsPerSecond: cfg.RPCRate, Burst: cfg.RPCBurst})
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		decodeCtx.Chain = chainClient
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := newJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := newJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("workspace", cfg.Workspace),
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
	)

	stats, err := decodeLogs(inputFile, decoder, decodeCtx, outWriter, errWriter)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.total),
		zap.Int("decoded", stats.decoded),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
	)
	return nil
}

type decodeStats struct {
	total, decoded, skipped, failed int
}

// decodeLogs turns log record lines from r into typed events. Lines that are
// not pool events or were removed by a reorg are skipped; failures go to errs.
func decodeLogs(r io.Reader, decoder contract.Decoder, decodeCtx contract.DecodeContext, out, errs *jsonlWriter) (decodeStats, error) {
	var stats decodeStats

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	ctx := decodeCtx.Context
	if ctx == nil {
		ctx = context.Background()
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.failed++
			writeDecodeError(errs, model.DecodeError{Line: lineNo, Error: err.Error()})
			continue
		}
		if record.Topic0() == "" {
			stats.failed++
			writeDecodeError(errs, decodeErrorFromRecord(lineNo, record, fmt.Errorf("missing topic0")))
			continue
		}
		if record.Removed || !decoder.CanDecode(record.Topic0()) {
			stats.skipped++
			continue
		}

		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			stats.failed++
			writeDecodeError(errs, decodeErrorFromRecord(lineNo, record, err))
			continue
		}

		if err := out.Write(event); err != nil {
			return stats, err
		}
		stats.decoded++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

// workspacePoolMetas returns the collection pair of every pool in a local
// workspace so journaled events decode without a chain.
func workspacePoolMetas(path string) (map[string]model.PoolMeta, error) {
	snap, ok, err := snapshot.Read(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("workspace not found: %s", path)
	}
	ws, err := snapshot.Restore(snap, snapshot.Options{})
	if err != nil {
		return nil, fmt.Errorf("restore workspace: %w", err)
	}
	return ws.Factory.PoolMetas(), nil
}

func decodeErrorFromRecord(line int, record model.LogRecord, err error) model.DecodeError {
	return model.DecodeError{
		LogRef: record.Ref(),
		Line:   line,
		Topic0: record.Topic0(),
		Error:  err.Error(),
	}
}

func writeDecodeError(writer *jsonlWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
