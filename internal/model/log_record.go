package model

// LogRecord is the normalized representation of a pool event log, either
// fetched from a chain or produced by a local pool commit.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash,omitempty"`
	TxHash      string   `json:"tx_hash,omitempty"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
	IngestedAt  string   `json:"ingested_at"`
}

// LogRef locates a log. For journaled pool commits BlockNumber is the
// journal sequence number and TxHash is empty.
type LogRef struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
}

// Topic0 returns the event signature topic, or "" when the record has none.
func (lr LogRecord) Topic0() string {
	if len(lr.Topics) == 0 {
		return ""
	}
	return lr.Topics[0]
}

// Ref returns the location of the record.
func (lr LogRecord) Ref() LogRef {
	return LogRef{
		ChainID:     lr.ChainID,
		BlockNumber: lr.BlockNumber,
		TxHash:      lr.TxHash,
		LogIndex:    lr.LogIndex,
		Address:     lr.Address,
	}
}
