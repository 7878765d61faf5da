package swap

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"nftSwap/internal/custody"
	"nftSwap/internal/metrics"
	"nftSwap/internal/model"
)

const factoryComponent = "factory"

var poolInitCodeHash = crypto.Keccak256([]byte("NFTSwapPool"))

// PoolAddress derives the address of the pool the factory creates for the
// unordered pair (a, b).
func PoolAddress(factory, a, b common.Address) common.Address {
	key := pairKey(a, b)
	var salt [32]byte
	copy(salt[:], crypto.Keccak256(key[0].Bytes(), key[1].Bytes()))
	return crypto.CreateAddress2(factory, salt, poolInitCodeHash)
}

func pairKey(a, b common.Address) [2]common.Address {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return [2]common.Address{a, b}
}

// FactoryConfig holds the dependencies of a factory. Creator becomes both the
// fee receiver and the fee receiver setter. Fees is called with the factory
// lock held and must not call back into the factory.
type FactoryConfig struct {
	Address   common.Address
	Creator   common.Address
	Custody   custody.Custody
	Fees      custody.FeeTransferer
	Publisher Publisher
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Factory creates at most one pool per unordered collection pair and owns the
// fee receiver role.
type Factory struct {
	address   common.Address
	custody   custody.Custody
	fees      custody.FeeTransferer
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu                sync.Mutex
	byPair            map[[2]common.Address]*Pool
	byAddress         map[common.Address]*Pool
	pools             []*Pool
	feeReceiver       common.Address
	feeReceiverSetter common.Address
}

// NewFactory builds a factory with no pools.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Custody == nil {
		return nil, fmt.Errorf("custody is nil")
	}
	if cfg.Address == (common.Address{}) || cfg.Creator == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Factory{
		address:           cfg.Address,
		custody:           cfg.Custody,
		fees:              cfg.Fees,
		publisher:         cfg.Publisher,
		logger:            logger,
		metrics:           cfg.Metrics,
		byPair:            make(map[[2]common.Address]*Pool),
		byAddress:         make(map[common.Address]*Pool),
		feeReceiver:       cfg.Creator,
		feeReceiverSetter: cfg.Creator,
	}, nil
}

// Address returns the factory address.
func (f *Factory) Address() common.Address { return f.address }

// CreatePool registers a pool for (a, b) and charges fee from caller to the
// fee receiver. The pool is bound to (a, b) in call order.
func (f *Factory) CreatePool(ctx context.Context, caller, a, b common.Address, fee *big.Int) (*Pool, error) {
	started := time.Now()
	pool, err := f.createPool(ctx, caller, a, b, fee)
	f.metrics.ObserveOp(factoryComponent, "createPool", started, ErrorKind(err))
	return pool, err
}

func (f *Factory) createPool(ctx context.Context, caller, a, b common.Address, fee *big.Int) (*Pool, error) {
	if a == (common.Address{}) || b == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if fee != nil && fee.Sign() < 0 {
		return nil, fmt.Errorf("negative fee %s", fee)
	}

	key := pairKey(a, b)
	pool, err := NewPool(PoolConfig{
		Address:   PoolAddress(f.address, a, b),
		Factory:   f.address,
		NFT0:      a,
		NFT1:      b,
		Custody:   f.custody,
		Publisher: f.publisher,
		Logger:    f.logger,
		Metrics:   f.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	// charge and registration share one hold of mu
	f.mu.Lock()
	if _, ok := f.byPair[key]; ok {
		f.mu.Unlock()
		return nil, ErrPoolAlreadyExists
	}
	if err := f.chargeFee(ctx, caller, f.feeReceiver, fee); err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("charge pool fee: %w: %w", ErrFeeTransferFailed, err)
	}
	f.byPair[key] = pool
	f.byAddress[pool.Address()] = pool
	f.pools = append(f.pools, pool)
	count := len(f.pools)
	f.mu.Unlock()

	f.metrics.SetPools(count)
	f.logger.Info("pool created",
		zap.String("pool", pool.Address().Hex()),
		zap.String("nft0", a.Hex()),
		zap.String("nft1", b.Hex()),
		zap.String("creator", caller.Hex()),
	)
	return pool, nil
}

func (f *Factory) chargeFee(ctx context.Context, from, to common.Address, fee *big.Int) error {
	if fee == nil || fee.Sign() == 0 {
		return nil
	}
	if f.fees == nil {
		return fmt.Errorf("no value ledger configured")
	}
	return f.fees.TransferValue(ctx, from, to, fee)
}

// GetPool returns the pool address for the unordered pair, or the null
// address when none exists.
func (f *Factory) GetPool(a, b common.Address) common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()

	pool, ok := f.byPair[pairKey(a, b)]
	if !ok {
		return common.Address{}
	}
	return pool.Address()
}

// Pool returns the handle for a pool address.
func (f *Factory) Pool(addr common.Address) (*Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pool, ok := f.byAddress[addr]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", addr.Hex(), ErrUnknownPool)
	}
	return pool, nil
}

// GetAllPools returns pool addresses in creation order.
func (f *Factory) GetAllPools() []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]common.Address, len(f.pools))
	for i, p := range f.pools {
		out[i] = p.Address()
	}
	return out
}

// Pools returns pool handles in creation order.
func (f *Factory) Pools() []*Pool {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*Pool, len(f.pools))
	copy(out, f.pools)
	return out
}

func (f *Factory) GetFeeReceiver() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeReceiver
}

func (f *Factory) GetFeeReceiverSetter() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeReceiverSetter
}

// SetFeeReceiver changes where pool creation fees are paid.
func (f *Factory) SetFeeReceiver(caller, receiver common.Address) error {
	started := time.Now()
	err := f.setRole(caller, func() { f.feeReceiver = receiver })
	f.metrics.ObserveOp(factoryComponent, "setFeeReceiver", started, ErrorKind(err))
	if err == nil {
		f.logger.Info("fee receiver updated", zap.String("receiver", receiver.Hex()))
	}
	return err
}

// SetFeeReceiverSetter hands the fee role to a new setter.
func (f *Factory) SetFeeReceiverSetter(caller, setter common.Address) error {
	started := time.Now()
	err := f.setRole(caller, func() { f.feeReceiverSetter = setter })
	f.metrics.ObserveOp(factoryComponent, "setFeeReceiverSetter", started, ErrorKind(err))
	if err == nil {
		f.logger.Info("fee receiver setter updated", zap.String("setter", setter.Hex()))
	}
	return err
}

func (f *Factory) setRole(caller common.Address, apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.feeReceiverSetter {
		return ErrNotFeeSetter
	}
	apply()
	return nil
}

// FactoryState is the persisted form of a factory and its pools.
type FactoryState struct {
	Address           common.Address `json:"address"`
	FeeReceiver       common.Address `json:"fee_receiver"`
	FeeReceiverSetter common.Address `json:"fee_receiver_setter"`
	Pools             []PoolState    `json:"pools"`
}

// State captures the factory and every pool ledger.
func (f *Factory) State() FactoryState {
	f.mu.Lock()
	state := FactoryState{
		Address:           f.address,
		FeeReceiver:       f.feeReceiver,
		FeeReceiverSetter: f.feeReceiverSetter,
	}
	pools := make([]*Pool, len(f.pools))
	copy(pools, f.pools)
	f.mu.Unlock()

	state.Pools = make([]PoolState, 0, len(pools))
	for _, p := range pools {
		state.Pools = append(state.Pools, p.State())
	}
	return state
}

// RestoreFactory rebuilds a factory from its persisted state. cfg.Address and
// cfg.Creator are taken from state.
func RestoreFactory(cfg FactoryConfig, state FactoryState) (*Factory, error) {
	cfg.Address = state.Address
	cfg.Creator = state.FeeReceiverSetter
	f, err := NewFactory(cfg)
	if err != nil {
		return nil, err
	}
	if state.FeeReceiver == (common.Address{}) {
		return nil, fmt.Errorf("restore factory: fee receiver: %w", ErrZeroAddress)
	}
	f.feeReceiver = state.FeeReceiver

	for _, ps := range state.Pools {
		if ps.Factory != f.address {
			return nil, fmt.Errorf("restore pool %s: factory %s does not match %s", ps.Address.Hex(), ps.Factory.Hex(), f.address.Hex())
		}
		pool, err := RestorePool(PoolConfig{
			Custody:   f.custody,
			Publisher: f.publisher,
			Logger:    f.logger,
			Metrics:   f.metrics,
		}, ps)
		if err != nil {
			return nil, fmt.Errorf("restore pool %s: %w", ps.Address.Hex(), err)
		}
		key := pairKey(ps.NFT0, ps.NFT1)
		if _, ok := f.byPair[key]; ok {
			return nil, fmt.Errorf("restore pool %s: %w", ps.Address.Hex(), ErrPoolAlreadyExists)
		}
		f.byPair[key] = pool
		f.byAddress[pool.Address()] = pool
		f.pools = append(f.pools, pool)
		f.metrics.SetLiveExchanges(pool.Address().Hex(), len(ps.Exchanges))
	}
	f.metrics.SetPools(len(f.pools))
	return f, nil
}

// PoolMetas returns the collection pair of every pool keyed by address.
func (f *Factory) PoolMetas() map[string]model.PoolMeta {
	pools := f.Pools()
	out := make(map[string]model.PoolMeta, len(pools))
	for _, p := range pools {
		nft0, nft1 := p.GetNFTPair()
		out[p.Address().Hex()] = model.PoolMeta{NFT0: nft0.Hex(), NFT1: nft1.Hex()}
	}
	return out
}
