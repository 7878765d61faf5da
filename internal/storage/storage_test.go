package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftSwap/internal/contract"
	"nftSwap/internal/model"
)

type failingStorage struct{}

func (failingStorage) PutLogBatch([]model.LogRecord) error { return errors.New("disk full") }

func TestEventPublisherJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "events.jsonl")
	publisher := NewEventPublisher(NewJsonlStorage(path), 31337, 10, nil)
	publisher.now = func() time.Time { return time.Unix(1700000000, 0) }

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	for _, name := range []string{model.EventExchangeCreated, model.EventTrade} {
		err := publisher.Publish(context.Background(), model.SwapEvent{
			Name:     name,
			Pool:     pool,
			Owner:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
			TokenID0: *uint256.NewInt(5),
			TokenID1: *uint256.NewInt(9),
		})
		if err != nil {
			t.Fatalf("publish %s: %v", name, err)
		}
	}
	if publisher.Next() != 12 {
		t.Fatalf("next seq: %d", publisher.Next())
	}

	logs, err := ReadLogs(path)
	if err != nil {
		t.Fatalf("read logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].BlockNumber != 10 || logs[1].BlockNumber != 11 || logs[1].ChainID != 31337 {
		t.Fatalf("positions mismatch: %+v", logs)
	}
	if logs[0].Timestamp != 1700000000 {
		t.Fatalf("timestamp mismatch: %d", logs[0].Timestamp)
	}

	decoder, err := contract.NewPoolDecoder(contract.DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	event, err := decoder.Decode(logs[1], contract.DecodeContext{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.EventName != model.EventTrade {
		t.Fatalf("event name: %s", event.EventName)
	}
}

func TestEventPublisherKeepsSequenceOnFailure(t *testing.T) {
	publisher := NewEventPublisher(Multi{failingStorage{}}, 1, 3, nil)
	err := publisher.Publish(context.Background(), model.SwapEvent{Name: model.EventTrade})
	if err == nil {
		t.Fatalf("expected error")
	}
	if publisher.Next() != 3 {
		t.Fatalf("sequence advanced: %d", publisher.Next())
	}

	if err := publisher.Publish(context.Background(), model.SwapEvent{Name: "Swap"}); err == nil {
		t.Fatalf("expected unsupported event error")
	}
}

func TestReadLogsMissingFile(t *testing.T) {
	logs, err := ReadLogs(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil || logs != nil {
		t.Fatalf("expected empty result, got %v %v", logs, err)
	}
}

func TestActivityFileAppends(t *testing.T) {
	dir := t.TempDir()
	sink := &ActivityFile{WindowsPath: filepath.Join(dir, "out", "windows.jsonl")}

	if err := sink.UpsertPools(context.Background(), []model.Pool{{Address: "0xpool"}}); err != nil {
		t.Fatalf("pools without a path should be dropped: %v", err)
	}
	for _, trades := range []uint64{1, 4} {
		window := model.PoolActivityWindow{PoolAddress: "0xpool", TradeCount: trades, WindowStart: time.Unix(3600, 0).UTC()}
		if err := sink.UpsertActivityWindows(context.Background(), []model.PoolActivityWindow{window}); err != nil {
			t.Fatalf("append window: %v", err)
		}
	}

	windows, err := ReadJSONL[model.PoolActivityWindow](sink.WindowsPath)
	if err != nil {
		t.Fatalf("read windows: %v", err)
	}
	if len(windows) != 2 || windows[1].TradeCount != 4 || !windows[0].WindowStart.Equal(time.Unix(3600, 0)) {
		t.Fatalf("windows mismatch: %+v", windows)
	}
}

func TestBufferHoldsUntilFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	buffer := NewBuffer(NewJsonlStorage(path))

	if err := buffer.PutLogBatch([]model.LogRecord{{BlockNumber: 1}, {BlockNumber: 2}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if logs, err := ReadLogs(path); err == nil && len(logs) != 0 {
		t.Fatalf("records written before flush: %d", len(logs))
	}

	if err := buffer.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	logs, err := ReadLogs(path)
	if err != nil {
		t.Fatalf("read logs: %v", err)
	}
	if len(logs) != 2 || logs[1].BlockNumber != 2 {
		t.Fatalf("flushed logs mismatch: %+v", logs)
	}

	if err := buffer.PutLogBatch([]model.LogRecord{{BlockNumber: 3}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if n := buffer.Discard(); n != 1 {
		t.Fatalf("discarded %d records, want 1", n)
	}
	if err := buffer.Flush(); err != nil {
		t.Fatalf("flush after discard: %v", err)
	}
	if logs, _ := ReadLogs(path); len(logs) != 2 {
		t.Fatalf("discarded record reached the journal: %d logs", len(logs))
	}
}

func TestBufferFlushError(t *testing.T) {
	buffer := NewBuffer(failingStorage{})
	if err := buffer.PutLogBatch([]model.LogRecord{{BlockNumber: 1}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := buffer.Flush(); err == nil {
		t.Fatalf("expected sink error")
	}
	if n := buffer.Discard(); n != 0 {
		t.Fatalf("failed batch kept: %d", n)
	}
}
