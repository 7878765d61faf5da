// Package indexer copies pool event logs from a chain into the local log
// journal, one block batch at a time, resuming from a file checkpoint.
package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"nftSwap/internal/metrics"
	"nftSwap/internal/model"
	"nftSwap/internal/storage"
)

// LogSource is the chain access the runner needs. *chain.Client satisfies it.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the indexer. ToBlock 0 means the
// chain head at start.
type RunConfig struct {
	Filter
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	Retry             RetryPolicy
}

// logKey identifies a log across overlapping fetches.
type logKey struct {
	block uint64
	tx    common.Hash
	index uint
}

// Runner streams pool logs from the chain and writes them to storage.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	sink       storage.Storage
	logger     *zap.Logger
	metrics    *metrics.Metrics
	checkpoint *CheckpointStore
	seen       mapset.Set[logKey]
	now        func() time.Time
}

// NewRunner builds a Runner. logger and m may be nil.
func NewRunner(cfg RunConfig, source LogSource, sink storage.Storage, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		sink:       sink,
		logger:     logger,
		metrics:    m,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		seen:       mapset.NewThreadUnsafeSet[logKey](),
		now:        time.Now,
	}
}

// Run indexes every batch between the resume point and the target block.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	chainID, span, err := r.plan(ctx)
	if err != nil {
		return err
	}
	if span.From > span.To {
		r.logger.Info("nothing to sync", zap.Uint64("from", span.From), zap.Uint64("to", span.To))
		return nil
	}

	batches, err := NewBatches(span.From, span.To, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for batch, ok := batches.Next(); ok; batch, ok = batches.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.indexBatch(ctx, chainID, batch); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) validate() error {
	switch {
	case r.source == nil:
		return fmt.Errorf("chain client is nil")
	case r.sink == nil:
		return fmt.Errorf("storage is nil")
	case r.cfg.BatchSize == 0:
		return fmt.Errorf("batch size must be greater than zero")
	case len(r.cfg.Addresses) == 0:
		return fmt.Errorf("at least one pool address is required")
	}
	return nil
}

// plan resolves the chain ID and the block span left to index, taking the
// checkpoint into account.
func (r *Runner) plan(ctx context.Context) (uint64, BlockRange, error) {
	id, err := r.source.GetChainID(ctx)
	if err != nil {
		return 0, BlockRange{}, fmt.Errorf("get chain id: %w", err)
	}
	if !id.IsUint64() {
		return 0, BlockRange{}, fmt.Errorf("chain id does not fit in uint64: %s", id)
	}
	chainID := id.Uint64()

	span := BlockRange{From: r.cfg.FromBlock, To: r.cfg.ToBlock}
	if span.To == 0 {
		head, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return 0, BlockRange{}, fmt.Errorf("get latest block: %w", err)
		}
		span.To = head
	}

	cp, ok, err := r.checkpoint.Load(chainID)
	if err != nil {
		return 0, BlockRange{}, err
	}
	if ok && cp.LastProcessedBlock >= span.From {
		span.From = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", span.From))
	}
	return chainID, span, nil
}

// indexBatch fetches one batch, writes its new logs and advances the
// checkpoint. Removed and already written logs are dropped.
func (r *Runner) indexBatch(ctx context.Context, chainID uint64, batch BlockRange) error {
	log := r.logger.With(zap.Uint64("from", batch.From), zap.Uint64("to", batch.To))
	log.Info("fetch logs", zap.Uint64("blocks", batch.Blocks()))

	logs, err := retry(ctx, r.cfg.Retry, log, "filter logs", func(ctx context.Context) ([]types.Log, error) {
		return r.source.FilterLogs(ctx, batch.From, batch.To, r.cfg.Addresses, r.cfg.Topic0)
	})
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	ingestedAt := r.now().UTC().Format(time.RFC3339Nano)
	times := make(map[uint64]uint64)
	records := make([]model.LogRecord, 0, len(logs))
	for _, entry := range logs {
		if entry.Removed || !r.seen.Add(logKey{block: entry.BlockNumber, tx: entry.TxHash, index: entry.Index}) {
			continue
		}

		ts, ok := times[entry.BlockNumber]
		if !ok {
			number := entry.BlockNumber
			ts, err = retry(ctx, r.cfg.Retry, log, "block timestamp", func(ctx context.Context) (uint64, error) {
				return r.source.BlockTimestamp(ctx, number)
			})
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", number, err)
			}
			times[number] = ts
		}
		records = append(records, newLogRecord(chainID, entry, ts, ingestedAt))
	}

	if err := r.sink.PutLogBatch(records); err != nil {
		return fmt.Errorf("store logs: %w", err)
	}
	r.metrics.AddIndexedLogs(len(records))

	if err := r.checkpoint.Save(chainID, batch.To); err != nil {
		return err
	}
	r.metrics.SetIndexedBlock(batch.To)

	log.Info("batch complete", zap.Int("logs", len(records)))
	return nil
}

// newLogRecord renders a chain log in the journal shape shared with locally
// published pool events.
func newLogRecord(chainID uint64, entry types.Log, timestamp uint64, ingestedAt string) model.LogRecord {
	topics := make([]string, 0, len(entry.Topics))
	for _, topic := range entry.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: entry.BlockNumber,
		BlockHash:   entry.BlockHash.Hex(),
		TxHash:      entry.TxHash.Hex(),
		TxIndex:     uint64(entry.TxIndex),
		LogIndex:    uint64(entry.Index),
		Address:     entry.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(entry.Data),
		Removed:     entry.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt,
	}
}
