package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"nftSwap/internal/model"
)

// JsonlStorage writes log records to a JSONL file. It is the pool event
// journal for local runs and the output of the chain indexer.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONL(s.path, logs)
}

// ActivityFile appends aggregated pool windows, and optionally the pool
// records they reference, to JSONL files. It stands in for Postgres when the
// aggregator runs without a database.
type ActivityFile struct {
	WindowsPath string
	PoolsPath   string

	mu sync.Mutex
}

func (f *ActivityFile) UpsertPools(_ context.Context, pools []model.Pool) error {
	if f.PoolsPath == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return appendJSONL(f.PoolsPath, pools)
}

func (f *ActivityFile) UpsertActivityWindows(_ context.Context, windows []model.PoolActivityWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return appendJSONL(f.WindowsPath, windows)
}

func appendJSONL[T any](path string, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("write %s line: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// ReadLogs reads every log record from a JSONL file. A missing file yields no records.
func ReadLogs(path string) ([]model.LogRecord, error) {
	return ReadJSONL[model.LogRecord](path)
}

// ReadJSONL decodes every non-empty line of a JSONL file into T. A missing
// file yields nothing.
func ReadJSONL[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var out []T
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", path, line, err)
		}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
