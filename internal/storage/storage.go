package storage

import (
	"errors"
	"sync"

	"nftSwap/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// Multi writes every batch to each sink in order. All sinks are attempted;
// their errors are joined.
type Multi []Storage

func (m Multi) PutLogBatch(logs []model.LogRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.PutLogBatch(logs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Buffer holds log batches in memory until Flush hands them to the wrapped
// sink in one batch.
type Buffer struct {
	sink Storage

	mu      sync.Mutex
	pending []model.LogRecord
}

func NewBuffer(sink Storage) *Buffer {
	return &Buffer{sink: sink}
}

func (b *Buffer) PutLogBatch(logs []model.LogRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, logs...)
	return nil
}

// Flush writes the pending records. They are dropped even when the sink
// fails, so a record is never written twice.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return b.sink.PutLogBatch(pending)
}

// Discard drops the pending records and returns how many there were.
func (b *Buffer) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.pending)
	b.pending = nil
	return n
}
