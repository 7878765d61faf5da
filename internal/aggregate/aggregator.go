package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"nftSwap/internal/model"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// WindowSink receives pool records and finished activity windows.
// *postgres.Store satisfies it.
type WindowSink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertActivityWindows(ctx context.Context, windows []model.PoolActivityWindow) error
}

// Aggregator folds typed pool events into fixed-size activity windows.
// Events of one pool are expected in time order; a pool's window is flushed
// when an event for a later window arrives.
type Aggregator struct {
	cfg    Config
	sink   WindowSink
	logger *zap.Logger

	open     map[string]*Accumulator
	poolSeen map[string]model.Pool
	windows  []model.PoolActivityWindow
	pools    []model.Pool
	stats    runStats
}

type runStats struct {
	total, windows, skipped, failed int
	maxTs                           uint64
}

func NewAggregator(cfg Config, sink WindowSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}

	return &Aggregator{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		open:     make(map[string]*Accumulator),
		poolSeen: make(map[string]model.Pool),
	}
}

// Run aggregates a typed events JSONL file and records the new watermark.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.sink == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}
	a.stats = runStats{maxTs: startTs}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	err = readEvents(ctx, file, func(ev model.TypedEvent) error {
		a.stats.total++
		if ev.Timestamp <= startTs {
			a.stats.skipped++
			return nil
		}
		return a.add(ctx, ev)
	}, func(line int, err error) {
		a.stats.total++
		a.stats.failed++
		a.logger.Warn("decode typed event", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return err
	}

	if err := a.finish(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", a.stats.total),
		zap.Int("windows", a.stats.windows),
		zap.Int("skipped", a.stats.skipped),
		zap.Int("failed", a.stats.failed),
		zap.Uint64("watermark", a.stats.maxTs),
	)
	return nil
}

// readEvents calls fn for every typed event line in r and bad for every line
// that does not parse.
func readEvents(ctx context.Context, r io.Reader, fn func(model.TypedEvent) error, bad func(line int, err error)) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev model.TypedEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			bad(lineNo, err)
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}

func (a *Aggregator) add(ctx context.Context, ev model.TypedEvent) error {
	start := windowStart(ev.Timestamp, a.cfg.WindowSeconds)

	key := poolKey(ev.Address)
	acc := a.open[key]
	if acc != nil && acc.WindowStart != start {
		a.close(acc)
		acc = nil
	}
	if acc == nil {
		acc = NewAccumulator(ev, start, start+a.cfg.WindowSeconds)
		a.open[key] = acc
	}

	if err := acc.AddEvent(ev); err != nil {
		a.stats.failed++
		a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", ev.Address), zap.String("event", ev.EventName))
		return nil
	}
	if ev.Timestamp > a.stats.maxTs {
		a.stats.maxTs = ev.Timestamp
	}

	if len(a.windows) < a.cfg.BatchSize {
		return nil
	}
	if err := a.flush(ctx); err != nil {
		return err
	}
	return a.saveState(ctx, a.stats.maxTs)
}

// finish closes every open window in pool order, flushes, and saves the
// watermark of the last event seen.
func (a *Aggregator) finish(ctx context.Context) error {
	keys := make([]string, 0, len(a.open))
	for key := range a.open {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		a.close(a.open[key])
	}

	if err := a.flush(ctx); err != nil {
		return err
	}
	return a.saveState(ctx, a.stats.maxTs)
}

// close moves acc to the pending batch. Windows without a counted event are
// dropped.
func (a *Aggregator) close(acc *Accumulator) {
	delete(a.open, poolKey(acc.PoolAddress))
	if acc.Events() == 0 {
		return
	}
	a.windows = append(a.windows, acc.Window(a.cfg.WindowSeconds))
	a.stats.windows++
	if pool := a.registerPool(acc); pool != nil {
		a.pools = append(a.pools, *pool)
	}
}

func (a *Aggregator) flush(ctx context.Context) error {
	if len(a.pools) > 0 {
		if err := a.sink.UpsertPools(ctx, a.pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
		a.pools = a.pools[:0]
	}
	if len(a.windows) > 0 {
		if err := a.sink.UpsertActivityWindows(ctx, a.windows); err != nil {
			return fmt.Errorf("upsert activity windows: %w", err)
		}
		a.windows = a.windows[:0]
	}
	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, _, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}
	return last, nil
}

// saveState records a watermark no later than the oldest open window, so a
// rerun rebuilds any window that was not flushed.
func (a *Aggregator) saveState(ctx context.Context, seen uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	watermark := seen
	if oldest := minOpenWindowStart(a.open); oldest > 0 && oldest-1 < watermark {
		watermark = oldest - 1
	}
	if err := a.cfg.StateStore.Save(ctx, watermark); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// registerPool returns a pool record the first time a pool is seen, or when
// an earlier first block turns up.
func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	if acc.PoolMeta.NFT0 == "" || acc.PoolMeta.NFT1 == "" {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil
	}

	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		NFT0:           acc.PoolMeta.NFT0,
		NFT1:           acc.PoolMeta.NFT1,
		FirstSeenBlock: acc.FirstBlock,
	}

	if existing, ok := a.poolSeen[key]; ok && existing.FirstSeenBlock <= pool.FirstSeenBlock {
		return nil
	}
	a.poolSeen[key] = pool
	return &pool
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func unixUTC(ts uint64) time.Time {
	return time.Unix(int64(ts), 0).UTC()
}

func minOpenWindowStart(open map[string]*Accumulator) uint64 {
	var min uint64
	for _, acc := range open {
		if min == 0 || acc.WindowStart < min {
			min = acc.WindowStart
		}
	}
	return min
}
