package model

import "time"

// PoolActivityWindow stores aggregated exchange activity for a pool window.
type PoolActivityWindow struct {
	ChainID        uint64    `json:"chain_id"`
	PoolAddress    string    `json:"pool_address"`
	NFT0           string    `json:"nft0"`
	NFT1           string    `json:"nft1"`
	WindowSizeSecs int64     `json:"window_size_secs"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	CreatedCount   uint64    `json:"created_count"`
	UpdatedCount   uint64    `json:"updated_count"`
	CancelledCount uint64    `json:"cancelled_count"`
	TradeCount     uint64    `json:"trade_count"`
	UniqueOwners   uint64    `json:"unique_owners"`
	UniqueTraders  uint64    `json:"unique_traders"`
}
