package model

// Pool is a pool registry record for storage.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	Factory        string `json:"factory"`
	NFT0           string `json:"nft0"`
	NFT1           string `json:"nft1"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}

// PoolMeta carries the collection pair a pool is bound to.
type PoolMeta struct {
	NFT0 string `json:"nft0"`
	NFT1 string `json:"nft1"`
}
