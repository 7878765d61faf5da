package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nftSwap/internal/jsonfile"
)

// StateStore persists the end of the last flushed window.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// StateTable stores named watermarks. *postgres.Store satisfies it.
type StateTable interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// TableStateStore keeps the watermark in a StateTable row. The row name
// carries the window size, so runs with different windows never share a
// watermark.
type TableStateStore struct {
	Table         StateTable
	Name          string
	WindowSeconds uint64
}

func (s *TableStateStore) key() string {
	return fmt.Sprintf("%s:%d", s.Name, s.WindowSeconds)
}

func (s *TableStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Table == nil {
		return 0, false, nil
	}
	return s.Table.LoadState(ctx, s.key())
}

func (s *TableStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Table == nil {
		return nil
	}
	return s.Table.SaveState(ctx, s.key(), ts)
}

// ErrWindowMismatch is returned when a saved watermark was produced with a
// different window size.
var ErrWindowMismatch = errors.New("state was saved for a different window")

// FileStateStore keeps the watermark in a local JSON file. A non-zero
// WindowSeconds is written with the watermark and checked on load.
type FileStateStore struct {
	Path          string
	WindowSeconds uint64
}

type stateRecord struct {
	LastProcessed uint64 `json:"last_processed_ts"`
	WindowSeconds uint64 `json:"window_seconds,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

func (s *FileStateStore) Load(_ context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	var rec stateRecord
	ok, err := jsonfile.Read(s.Path, &rec)
	if err != nil || !ok {
		return 0, false, err
	}
	if s.WindowSeconds != 0 && rec.WindowSeconds != 0 && rec.WindowSeconds != s.WindowSeconds {
		return 0, false, fmt.Errorf("%w: have %ds, want %ds", ErrWindowMismatch, rec.WindowSeconds, s.WindowSeconds)
	}
	return rec.LastProcessed, true, nil
}

func (s *FileStateStore) Save(_ context.Context, ts uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	return jsonfile.Write(s.Path, stateRecord{
		LastProcessed: ts,
		WindowSeconds: s.WindowSeconds,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
}
