package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nftSwap/internal/model"
)

const (
	poolOne = "0x1111111111111111111111111111111111111111"
	poolTwo = "0x9999999999999999999999999999999999999999"
	alice   = "0xAAaaAaAaaaAAaaAaaaaAAAAaaAaaAAaAaaAaAaaA"
	bob     = "0xBbBBbBbBbbbBbBbBbBbBBbbbBBBbbbbBbbBBbBBB"
	zero    = "0x0000000000000000000000000000000000000000"
)

type memorySink struct {
	pools   []model.Pool
	windows []model.PoolActivityWindow
}

func (s *memorySink) UpsertPools(_ context.Context, pools []model.Pool) error {
	s.pools = append(s.pools, pools...)
	return nil
}

func (s *memorySink) UpsertActivityWindows(_ context.Context, windows []model.PoolActivityWindow) error {
	s.windows = append(s.windows, windows...)
	return nil
}

func typedEvent(t *testing.T, pool, name string, ts, block uint64, owner, trader string) []byte {
	t.Helper()
	ev := model.TypedEvent{
		LogRef:    model.LogRef{ChainID: 1, BlockNumber: block, Address: pool},
		EventName: name,
		Timestamp: ts,
		Exchange: model.ExchangeEventData{
			NFT0:     "0xa000000000000000000000000000000000000001",
			NFT1:     "0xb000000000000000000000000000000000000002",
			Owner:    owner,
			Trader:   trader,
			TokenID0: "5",
			TokenID1: "9",
		},
	}
	line, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return append(line, '\n')
}

func TestAggregatorWindows(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "typed.jsonl")

	var content []byte
	content = append(content, typedEvent(t, poolOne, model.EventExchangeCreated, 100, 10, alice, zero)...)
	content = append(content, typedEvent(t, poolTwo, model.EventExchangeCreated, 150, 11, bob, zero)...)
	content = append(content, []byte("not json\n")...)
	content = append(content, typedEvent(t, poolOne, model.EventTrade, 200, 12, alice, bob)...)
	content = append(content, typedEvent(t, poolOne, model.EventExchangeCancelled, 4000, 20, alice, zero)...)
	if err := os.WriteFile(input, content, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	sink := &memorySink{}
	state := &FileStateStore{Path: filepath.Join(dir, "state.json")}
	agg := NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, sink, nil)
	if err := agg.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(sink.windows))
	}

	first := sink.windows[0]
	if first.PoolAddress != poolOne || first.WindowStart.Unix() != 0 {
		t.Fatalf("first window mismatch: %+v", first)
	}
	if first.CreatedCount != 1 || first.TradeCount != 1 || first.UniqueOwners != 1 || first.UniqueTraders != 1 {
		t.Fatalf("first window counts mismatch: %+v", first)
	}

	var cancelled, other int
	for _, w := range sink.windows[1:] {
		switch {
		case w.PoolAddress == poolOne && w.WindowStart.Unix() == 3600 && w.CancelledCount == 1:
			cancelled++
		case w.PoolAddress == poolTwo && w.CreatedCount == 1 && w.UniqueTraders == 0:
			other++
		}
	}
	if cancelled != 1 || other != 1 {
		t.Fatalf("window set mismatch: %+v", sink.windows)
	}

	if len(sink.pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(sink.pools))
	}
	for _, p := range sink.pools {
		if p.Address == poolOne && p.FirstSeenBlock != 10 {
			t.Fatalf("first seen block mismatch: %+v", p)
		}
	}

	last, ok, err := state.Load(context.Background())
	if err != nil || !ok || last != 4000 {
		t.Fatalf("state mismatch: %d %v %v", last, ok, err)
	}

	// rerun resumes after the saved watermark
	rerun := &memorySink{}
	if err := NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, rerun, nil).Run(context.Background(), input); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(rerun.windows) != 0 {
		t.Fatalf("expected no windows on rerun, got %d", len(rerun.windows))
	}
}

func TestAggregatorRequiresWindow(t *testing.T) {
	agg := NewAggregator(Config{}, &memorySink{}, nil)
	if err := agg.Run(context.Background(), "unused"); err == nil {
		t.Fatalf("expected window size error")
	}
}

func TestFileStateStoreWindow(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	hourly := &FileStateStore{Path: path, WindowSeconds: 3600}
	if _, ok, err := hourly.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty state, got ok=%v err=%v", ok, err)
	}
	if err := hourly.Save(ctx, 7200); err != nil {
		t.Fatalf("save: %v", err)
	}

	ts, ok, err := hourly.Load(ctx)
	if err != nil || !ok || ts != 7200 {
		t.Fatalf("load: ts=%d ok=%v err=%v", ts, ok, err)
	}

	daily := &FileStateStore{Path: path, WindowSeconds: 86400}
	if _, _, err := daily.Load(ctx); !errors.Is(err, ErrWindowMismatch) {
		t.Fatalf("expected window mismatch, got %v", err)
	}

	// stores without a window accept any saved state
	if _, ok, err := (&FileStateStore{Path: path}).Load(ctx); err != nil || !ok {
		t.Fatalf("unbound load: ok=%v err=%v", ok, err)
	}
}

type recordingState struct {
	saves []uint64
}

func (s *recordingState) Load(context.Context) (uint64, bool, error) { return 0, false, nil }

func (s *recordingState) Save(_ context.Context, ts uint64) error {
	s.saves = append(s.saves, ts)
	return nil
}

func TestAggregatorBatchWatermarkStaysBeforeOpenWindow(t *testing.T) {
	input := filepath.Join(t.TempDir(), "typed.jsonl")
	var content []byte
	content = append(content, typedEvent(t, poolOne, model.EventExchangeCreated, 100, 10, alice, zero)...)
	content = append(content, typedEvent(t, poolOne, model.EventTrade, 4000, 11, alice, bob)...)
	if err := os.WriteFile(input, content, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	sink := &memorySink{}
	state := &recordingState{}
	agg := NewAggregator(Config{WindowSeconds: 3600, BatchSize: 1, StateStore: state}, sink, nil)
	if err := agg.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(sink.windows))
	}
	want := []uint64{3599, 4000}
	if len(state.saves) != len(want) || state.saves[0] != want[0] || state.saves[1] != want[1] {
		t.Fatalf("watermarks mismatch: %v != %v", state.saves, want)
	}
}

type memoryTable map[string]uint64

func (m memoryTable) LoadState(_ context.Context, name string) (uint64, bool, error) {
	ts, ok := m[name]
	return ts, ok, nil
}

func (m memoryTable) SaveState(_ context.Context, name string, ts uint64) error {
	m[name] = ts
	return nil
}

func TestTableStateStoreKeysByWindow(t *testing.T) {
	ctx := context.Background()
	table := memoryTable{}

	hourly := &TableStateStore{Table: table, Name: "pool_activity", WindowSeconds: 3600}
	if err := hourly.Save(ctx, 7199); err != nil {
		t.Fatalf("save: %v", err)
	}
	if table["pool_activity:3600"] != 7199 {
		t.Fatalf("row not keyed by window: %v", table)
	}

	daily := &TableStateStore{Table: table, Name: "pool_activity", WindowSeconds: 86400}
	if _, ok, err := daily.Load(ctx); err != nil || ok {
		t.Fatalf("daily run must not see hourly watermark: ok=%v err=%v", ok, err)
	}

	var unset *TableStateStore
	if err := unset.Save(ctx, 1); err != nil {
		t.Fatalf("nil store save: %v", err)
	}
}
