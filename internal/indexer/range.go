package indexer

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Blocks returns the number of blocks covered.
func (r BlockRange) Blocks() uint64 {
	return r.To - r.From + 1
}

// Batches walks [from, to] in consecutive ranges of at most size blocks
// without materializing them.
type Batches struct {
	next uint64
	to   uint64
	size uint64
	done bool
}

func NewBatches(from, to, size uint64) (*Batches, error) {
	if size == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}
	return &Batches{next: from, to: to, size: size}, nil
}

// Next returns the following range, or false once to has been covered.
func (b *Batches) Next() (BlockRange, bool) {
	if b.done {
		return BlockRange{}, false
	}
	end := b.to
	if b.to-b.next >= b.size {
		end = b.next + b.size - 1
	}
	r := BlockRange{From: b.next, To: end}
	if end == b.to {
		b.done = true
	} else {
		b.next = end + 1
	}
	return r, true
}

// SplitRange returns every batch of [from, to].
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	batches, err := NewBatches(from, to, batchSize)
	if err != nil {
		return nil, err
	}
	var ranges []BlockRange
	for r, ok := batches.Next(); ok; r, ok = batches.Next() {
		ranges = append(ranges, r)
	}
	return ranges, nil
}
