// Package snapshot persists a local swap workspace: the factory with its pools
// and exchanges, the token custody book and the value ledger.
package snapshot

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"nftSwap/internal/custody"
	"nftSwap/internal/jsonfile"
	"nftSwap/internal/metrics"
	"nftSwap/internal/storage"
	"nftSwap/internal/swap"
)

// Snapshot is the on-disk form of a workspace.
type Snapshot struct {
	ChainID   uint64            `json:"chain_id"`
	NextSeq   uint64            `json:"next_seq"`
	Factory   swap.FactoryState `json:"factory"`
	Holdings  []custody.Holding `json:"holdings"`
	Balances  []custody.Balance `json:"balances"`
	UpdatedAt string            `json:"updated_at"`
}

// Options configures Open. FactoryAddress and Creator are only used when no
// snapshot exists yet. A nil Journal disables event publishing.
type Options struct {
	ChainID        uint64
	FactoryAddress common.Address
	Creator        common.Address
	Journal        storage.Storage
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// Workspace is a loaded, mutable swap ledger.
type Workspace struct {
	ChainID   uint64
	Book      *custody.Book
	Wallets   *custody.Wallets
	Factory   *swap.Factory
	Publisher *storage.EventPublisher

	nextSeq uint64
}

// Open loads the workspace at path, or starts an empty one when the file does not exist.
func Open(path string, opts Options) (*Workspace, error) {
	snap, ok, err := Read(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		if opts.FactoryAddress == (common.Address{}) || opts.Creator == (common.Address{}) {
			return nil, fmt.Errorf("new workspace needs factory and creator addresses: %w", swap.ErrZeroAddress)
		}
		snap = Snapshot{
			ChainID: opts.ChainID,
			Factory: swap.FactoryState{
				Address:           opts.FactoryAddress,
				FeeReceiver:       opts.Creator,
				FeeReceiverSetter: opts.Creator,
			},
		}
	}
	return Restore(snap, opts)
}

// Restore builds a workspace from a snapshot.
func Restore(snap Snapshot, opts Options) (*Workspace, error) {
	book, err := custody.RestoreBook(snap.Holdings)
	if err != nil {
		return nil, fmt.Errorf("restore book: %w", err)
	}
	wallets, err := custody.RestoreWallets(snap.Balances)
	if err != nil {
		return nil, fmt.Errorf("restore wallets: %w", err)
	}

	ws := &Workspace{
		ChainID: snap.ChainID,
		Book:    book,
		Wallets: wallets,
		nextSeq: snap.NextSeq,
	}

	cfg := swap.FactoryConfig{
		Custody: book,
		Fees:    wallets,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	}
	if opts.Journal != nil {
		ws.Publisher = storage.NewEventPublisher(opts.Journal, snap.ChainID, snap.NextSeq, opts.Logger)
		cfg.Publisher = ws.Publisher
	}

	factory, err := swap.RestoreFactory(cfg, snap.Factory)
	if err != nil {
		return nil, fmt.Errorf("restore factory: %w", err)
	}
	ws.Factory = factory
	return ws, nil
}

// Snapshot captures the current workspace.
func (w *Workspace) Snapshot() Snapshot {
	next := w.nextSeq
	if w.Publisher != nil {
		next = w.Publisher.Next()
	}
	return Snapshot{
		ChainID:   w.ChainID,
		NextSeq:   next,
		Factory:   w.Factory.State(),
		Holdings:  w.Book.Holdings(),
		Balances:  w.Wallets.Balances(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Save writes the workspace to path atomically.
func (w *Workspace) Save(path string) error {
	return Write(path, w.Snapshot())
}

// Read loads a snapshot file. A missing file reports ok == false.
func Read(path string) (Snapshot, bool, error) {
	var snap Snapshot
	ok, err := jsonfile.Read(path, &snap)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot: %w", err)
	}
	return snap, ok, nil
}

// Write stores snap at path, replacing any previous snapshot atomically.
func Write(path string, snap Snapshot) error {
	if err := jsonfile.Write(path, snap); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}
