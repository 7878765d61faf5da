package indexer

import (
	"fmt"
	"time"

	"nftSwap/internal/jsonfile"
)

// Checkpoint tracks the last block whose pool logs were written.
type Checkpoint struct {
	ChainID            uint64 `json:"chain_id"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// CheckpointStore keeps the checkpoint in a JSON file. A disabled store, or
// one without a path, never resumes and never writes.
type CheckpointStore struct {
	path    string
	enabled bool
	now     func() time.Time
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != "", now: time.Now}
}

// Load returns the checkpoint for chainID. A checkpoint written for another
// chain is an error rather than a silent restart.
func (c *CheckpointStore) Load(chainID uint64) (Checkpoint, bool, error) {
	var cp Checkpoint
	if !c.enabled {
		return cp, false, nil
	}
	ok, err := jsonfile.Read(c.path, &cp)
	if err != nil || !ok {
		return Checkpoint{}, false, err
	}
	if cp.ChainID != 0 && cp.ChainID != chainID {
		return Checkpoint{}, false, fmt.Errorf("checkpoint %s belongs to chain %d, connected to %d", c.path, cp.ChainID, chainID)
	}
	return cp, true, nil
}

// Save records block as fully written for chainID.
func (c *CheckpointStore) Save(chainID, block uint64) error {
	if !c.enabled {
		return nil
	}
	return jsonfile.Write(c.path, Checkpoint{
		ChainID:            chainID,
		LastProcessedBlock: block,
		UpdatedAt:          c.now().UTC().Format(time.RFC3339Nano),
	})
}
