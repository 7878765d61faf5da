package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"nftSwap/internal/contract"
	"nftSwap/internal/model"
)

// EventPublisher journals committed pool events as ABI-encoded log records.
// Each event gets its own sequence number, recorded as the block number so
// local journals sort and decode like chain logs.
type EventPublisher struct {
	storage Storage
	chainID uint64
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	next uint64
}

// NewEventPublisher returns a publisher writing to storage. next is the
// sequence number assigned to the first event.
func NewEventPublisher(storage Storage, chainID, next uint64, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{
		storage: storage,
		chainID: chainID,
		logger:  logger,
		now:     time.Now,
		next:    next,
	}
}

// Publish encodes ev and appends it to the journal.
func (p *EventPublisher) Publish(_ context.Context, ev model.SwapEvent) error {
	record, err := contract.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	record.ChainID = p.chainID
	record.BlockNumber = p.next
	record.Timestamp = uint64(now.Unix())
	record.IngestedAt = now.Format(time.RFC3339)

	if err := p.storage.PutLogBatch([]model.LogRecord{record}); err != nil {
		return fmt.Errorf("journal %s: %w", ev.Name, err)
	}
	p.next++
	p.logger.Debug("event journaled",
		zap.String("event", ev.Name),
		zap.Uint64("seq", record.BlockNumber),
		zap.String("pool", record.Address),
	)
	return nil
}

// Next returns the sequence number the next event will get.
func (p *EventPublisher) Next() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}
