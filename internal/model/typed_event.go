package model

// TypedEvent is a decoded pool event with the collection pair of its pool.
type TypedEvent struct {
	LogRef
	BlockHash string            `json:"block_hash,omitempty"`
	EventName string            `json:"event_name"`
	Timestamp uint64            `json:"timestamp"`
	Topic0    string            `json:"topic0"`
	Exchange  ExchangeEventData `json:"exchange"`
	PoolMeta  PoolMeta          `json:"pool_meta"`
}

// Pair returns the collection pair of the event's pool, falling back to the
// pair carried in the event payload.
func (e TypedEvent) Pair() PoolMeta {
	if e.PoolMeta.NFT0 != "" && e.PoolMeta.NFT1 != "" {
		return e.PoolMeta
	}
	return PoolMeta{NFT0: e.Exchange.NFT0, NFT1: e.Exchange.NFT1}
}
