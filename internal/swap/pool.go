package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"nftSwap/internal/custody"
	"nftSwap/internal/metrics"
	"nftSwap/internal/model"
)

const poolComponent = "pool"

// Publisher receives committed pool events.
type Publisher interface {
	Publish(ctx context.Context, ev model.SwapEvent) error
}

// PoolConfig holds the bindings and dependencies of a pool.
type PoolConfig struct {
	Address   common.Address
	Factory   common.Address
	NFT0      common.Address
	NFT1      common.Address
	Custody   custody.Custody
	Publisher Publisher
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Pool is the exchange ledger for one (nft0, nft1) collection pair.
//
// Every state-changing operation runs its checks under mu and reserves the key
// before releasing mu to call custody. While a key is reserved it has no live
// record: a custody call that re-enters the pool cannot trade, cancel or update
// it and cannot create a new exchange on it. On custody failure the previous
// record is restored only if the pool still holds the escrowed token.
type Pool struct {
	address   common.Address
	factory   common.Address
	nft0      common.Address
	nft1      common.Address
	custody   custody.Custody
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	exchanges map[model.TokenPair]model.Exchange
	pairs     []model.TokenPair
	seen      map[model.TokenPair]struct{}
	settling  map[model.TokenPair]struct{}
}

// NewPool builds an empty pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Custody == nil {
		return nil, fmt.Errorf("custody is nil")
	}
	if cfg.Address == (common.Address{}) || cfg.NFT0 == (common.Address{}) || cfg.NFT1 == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		address:   cfg.Address,
		factory:   cfg.Factory,
		nft0:      cfg.NFT0,
		nft1:      cfg.NFT1,
		custody:   cfg.Custody,
		publisher: cfg.Publisher,
		logger:    logger.With(zap.String("pool", cfg.Address.Hex())),
		metrics:   cfg.Metrics,
		exchanges: make(map[model.TokenPair]model.Exchange),
		seen:      make(map[model.TokenPair]struct{}),
		settling:  make(map[model.TokenPair]struct{}),
	}, nil
}

// Address returns the custody address of the pool.
func (p *Pool) Address() common.Address { return p.address }

// Factory returns the factory that created the pool.
func (p *Pool) Factory() common.Address { return p.factory }

// GetNFTPair returns the collections the pool is bound to, in binding order.
func (p *Pool) GetNFTPair() (common.Address, common.Address) {
	return p.nft0, p.nft1
}

// CreateExchange escrows tokenID0 from caller and offers it for tokenID1.
func (p *Pool) CreateExchange(ctx context.Context, caller common.Address, tokenID0, tokenID1 uint256.Int) error {
	started := time.Now()
	err := p.createExchange(ctx, caller, nil, model.TokenPair{TokenID0: tokenID0, TokenID1: tokenID1})
	p.observe("createExchange", started, err)
	return err
}

// CreateExchangeFor is CreateExchange restricted to a single trader.
func (p *Pool) CreateExchangeFor(ctx context.Context, caller, trader common.Address, tokenID0, tokenID1 uint256.Int) error {
	started := time.Now()
	err := p.createExchange(ctx, caller, &trader, model.TokenPair{TokenID0: tokenID0, TokenID1: tokenID1})
	p.observe("createExchangeFor", started, err)
	return err
}

func (p *Pool) createExchange(ctx context.Context, caller common.Address, trader *common.Address, key model.TokenPair) error {
	if trader != nil {
		if *trader == (common.Address{}) {
			return ErrZeroAddress
		}
		if *trader == caller {
			return ErrInvalidTrader
		}
	}

	wantedHolder, err := p.custody.HolderOf(ctx, p.nft1, key.TokenID1)
	if err != nil {
		return fmt.Errorf("holder of wanted token %s: %w", model.FormatTokenID(key.TokenID1), err)
	}
	if wantedHolder == caller {
		return ErrAlreadyOwnedToken
	}

	if p.inUse(key) {
		return ErrExchangeExists
	}

	offeredHolder, err := p.custody.HolderOf(ctx, p.nft0, key.TokenID0)
	if err != nil {
		return fmt.Errorf("holder of offered token %s: %w", model.FormatTokenID(key.TokenID0), err)
	}
	if offeredHolder != caller {
		return ErrNotTokenHolder
	}

	ex := model.Exchange{Owner: caller, TokenID0: key.TokenID0, TokenID1: key.TokenID1}
	if trader != nil {
		t := *trader
		ex.Trader = &t
	}

	if !p.reserve(key) {
		return ErrExchangeExists
	}

	if err := p.custody.Transfer(ctx, p.nft0, caller, p.address, key.TokenID0); err != nil {
		transferErr := fmt.Errorf("escrow %s: %w: %w", model.FormatTokenID(key.TokenID0), ErrTransferFailed, err)
		if p.holds(ctx, key.TokenID0) {
			// the record follows the token
			p.logger.Error("custody kept escrow after failed transfer",
				zap.String("owner", caller.Hex()),
				zap.Stringer("pair", key),
				zap.Error(err),
			)
			p.commit(ex)
			return transferErr
		}
		p.release(key)
		return transferErr
	}

	live := p.commit(ex)
	p.metrics.SetLiveExchanges(p.address.Hex(), live)
	p.logger.Debug("exchange created",
		zap.String("owner", caller.Hex()),
		zap.String("trader", ex.TraderOrZero().Hex()),
		zap.Stringer("pair", key),
	)
	p.publish(ctx, p.event(model.EventExchangeCreated, ex, ex.TraderOrZero(), common.Address{}))
	return nil
}

// Trade fulfills the exchange: tokenID0 moves from the pool to caller and
// tokenID1 moves from caller to the exchange owner.
func (p *Pool) Trade(ctx context.Context, caller common.Address, tokenID0, tokenID1 uint256.Int) error {
	started := time.Now()
	err := p.trade(ctx, caller, model.TokenPair{TokenID0: tokenID0, TokenID1: tokenID1})
	p.observe("trade", started, err)
	return err
}

func (p *Pool) trade(ctx context.Context, caller common.Address, key model.TokenPair) error {
	p.mu.Lock()
	ex, ok := p.exchanges[key]
	if !ok {
		p.mu.Unlock()
		return ErrNonexistentExchange
	}
	if caller == ex.Owner {
		p.mu.Unlock()
		return ErrInvalidTrader
	}
	if ex.Trader != nil && *ex.Trader != caller {
		p.mu.Unlock()
		return ErrInvalidTokenReceiver
	}
	delete(p.exchanges, key)
	p.settling[key] = struct{}{}
	p.mu.Unlock()

	// the caller must be able to pay before the escrow leaves the pool
	payer, err := p.custody.HolderOf(ctx, p.nft1, key.TokenID1)
	if err != nil {
		return p.revert(ctx, ex, fmt.Errorf("pay %s: %w: %w", model.FormatTokenID(key.TokenID1), ErrTransferFailed, err))
	}
	if payer != caller {
		return p.revert(ctx, ex, fmt.Errorf("pay %s: %w: held by %s: %w",
			model.FormatTokenID(key.TokenID1), ErrTransferFailed, payer.Hex(), custody.ErrNotHolder))
	}

	if err := p.custody.Transfer(ctx, p.nft0, p.address, caller, key.TokenID0); err != nil {
		transferErr := fmt.Errorf("release %s: %w: %w", model.FormatTokenID(key.TokenID0), ErrTransferFailed, err)
		return p.revert(ctx, ex, transferErr)
	}

	if err := p.custody.Transfer(ctx, p.nft1, caller, ex.Owner, key.TokenID1); err != nil {
		transferErr := fmt.Errorf("pay %s: %w: %w", model.FormatTokenID(key.TokenID1), ErrTransferFailed, err)
		if backErr := p.custody.Transfer(ctx, p.nft0, caller, p.address, key.TokenID0); backErr != nil {
			p.release(key)
			p.logger.Error("escrow not returned after failed trade",
				zap.Stringer("pair", key),
				zap.String("owner", ex.Owner.Hex()),
				zap.String("trader", caller.Hex()),
				zap.Error(backErr),
			)
			return errors.Join(transferErr, fmt.Errorf("return escrow: %w: %w", ErrEscrowLost, backErr))
		}
		return p.revert(ctx, ex, transferErr)
	}
	p.release(key)

	p.metrics.SetLiveExchanges(p.address.Hex(), p.liveCount())
	p.logger.Debug("trade",
		zap.String("owner", ex.Owner.Hex()),
		zap.String("trader", caller.Hex()),
		zap.Stringer("pair", key),
	)
	p.publish(ctx, p.event(model.EventTrade, ex, caller, common.Address{}))
	return nil
}

// UpdateExchangeOwner reassigns the exchange to newOwner. The escrowed token stays in the pool.
func (p *Pool) UpdateExchangeOwner(ctx context.Context, caller, newOwner common.Address, tokenID0, tokenID1 uint256.Int) error {
	started := time.Now()
	ex, err := p.updateExchange(model.TokenPair{TokenID0: tokenID0, TokenID1: tokenID1}, func(ex *model.Exchange) error {
		if newOwner == (common.Address{}) {
			return ErrZeroAddress
		}
		if ex == nil || caller != ex.Owner {
			return ErrNotOwner
		}
		ex.Owner = newOwner
		return nil
	})
	p.observe("updateExchangeOwner", started, err)
	if err != nil {
		return err
	}

	p.logger.Debug("exchange owner updated", zap.String("owner", newOwner.Hex()), zap.Stringer("pair", ex.Key()))
	p.publish(ctx, p.event(model.EventExchangeUpdated, ex, ex.TraderOrZero(), common.Address{}))
	return nil
}

// UpdateExchangeTrader restricts fulfillment to newTrader. The null address
// lifts the restriction.
func (p *Pool) UpdateExchangeTrader(ctx context.Context, caller, newTrader common.Address, tokenID0, tokenID1 uint256.Int) error {
	started := time.Now()
	ex, err := p.updateExchange(model.TokenPair{TokenID0: tokenID0, TokenID1: tokenID1}, func(ex *model.Exchange) error {
		if ex == nil || caller != ex.Owner {
			return ErrNotOwner
		}
		if newTrader == ex.Owner {
			return ErrInvalidTrader
		}
		if newTrader == (common.Address{}) {
			ex.Trader = nil
			return nil
		}
		t := newTrader
		ex.Trader = &t
		return nil
	})
	p.observe("updateExchangeTrader", started, err)
	if err != nil {
		return err
	}

	p.logger.Debug("exchange trader updated", zap.String("trader", newTrader.Hex()), zap.Stringer("pair", ex.Key()))
	p.publish(ctx, p.event(model.EventExchangeUpdated, ex, ex.TraderOrZero(), common.Address{}))
	return nil
}

// updateExchange applies fn to a copy of the record under the lock and stores
// it when fn succeeds. fn receives nil for absent keys.
func (p *Pool) updateExchange(key model.TokenPair, fn func(ex *model.Exchange) error) (model.Exchange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var target *model.Exchange
	if ex, ok := p.exchanges[key]; ok {
		updated := ex.Clone()
		target = &updated
	}
	if err := fn(target); err != nil {
		return model.Exchange{}, err
	}
	p.exchanges[key] = *target
	return target.Clone(), nil
}

// CancelExchange returns the escrowed token to `to` and deletes the exchange.
func (p *Pool) CancelExchange(ctx context.Context, caller common.Address, tokenID0, tokenID1 uint256.Int, to common.Address) error {
	started := time.Now()
	err := p.cancelExchange(ctx, caller, model.TokenPair{TokenID0: tokenID0, TokenID1: tokenID1}, to)
	p.observe("cancelExchange", started, err)
	return err
}

func (p *Pool) cancelExchange(ctx context.Context, caller common.Address, key model.TokenPair, to common.Address) error {
	p.mu.Lock()
	ex, ok := p.exchanges[key]
	if !ok || caller != ex.Owner {
		p.mu.Unlock()
		return ErrNotOwner
	}
	if to == (common.Address{}) || to == p.nft0 || to == p.nft1 {
		p.mu.Unlock()
		return ErrInvalidTo
	}
	delete(p.exchanges, key)
	p.settling[key] = struct{}{}
	p.mu.Unlock()

	if err := p.custody.Transfer(ctx, p.nft0, p.address, to, key.TokenID0); err != nil {
		transferErr := fmt.Errorf("refund %s: %w: %w", model.FormatTokenID(key.TokenID0), ErrTransferFailed, err)
		return p.revert(ctx, ex, transferErr)
	}
	p.release(key)

	p.metrics.SetLiveExchanges(p.address.Hex(), p.liveCount())
	p.logger.Debug("exchange cancelled",
		zap.String("owner", ex.Owner.Hex()),
		zap.String("receiver", to.Hex()),
		zap.Stringer("pair", key),
	)
	p.publish(ctx, p.event(model.EventExchangeCancelled, ex, ex.TraderOrZero(), to))
	return nil
}

// revert puts a reserved exchange back after a failed custody call and returns
// cause. An exchange whose token left the pool is not restored.
func (p *Pool) revert(ctx context.Context, ex model.Exchange, cause error) error {
	key := ex.Key()
	if !p.holds(ctx, key.TokenID0) {
		p.release(key)
		p.logger.Error("escrow left the pool, exchange not restored",
			zap.String("owner", ex.Owner.Hex()),
			zap.Stringer("pair", key),
			zap.Error(cause),
		)
		return errors.Join(cause, ErrEscrowLost)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.settling, key)
	p.exchanges[key] = ex
	return cause
}

// reserve marks key as settling unless it is live or already settling.
func (p *Pool) reserve(key model.TokenPair) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.exchanges[key]; ok {
		return false
	}
	if _, ok := p.settling[key]; ok {
		return false
	}
	p.settling[key] = struct{}{}
	return true
}

// commit turns a reserved key into a live exchange and logs the pair. It
// returns the live count.
func (p *Pool) commit(ex model.Exchange) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := ex.Key()
	delete(p.settling, key)
	p.exchanges[key] = ex
	if _, ok := p.seen[key]; !ok {
		p.seen[key] = struct{}{}
		p.pairs = append(p.pairs, key)
	}
	return len(p.exchanges)
}

func (p *Pool) release(key model.TokenPair) {
	p.mu.Lock()
	delete(p.settling, key)
	p.mu.Unlock()
}

// holds reports whether the pool holds offered token tokenID.
func (p *Pool) holds(ctx context.Context, tokenID uint256.Int) bool {
	h, err := p.custody.HolderOf(ctx, p.nft0, tokenID)
	return err == nil && h == p.address
}

// GetExchange returns the live exchange for the key. Absent keys yield the
// zero record, whose owner is the null address, and false.
func (p *Pool) GetExchange(tokenID0, tokenID1 uint256.Int) (model.Exchange, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ex, ok := p.exchanges[model.TokenPair{TokenID0: tokenID0, TokenID1: tokenID1}]
	if !ok {
		return model.Exchange{}, false
	}
	return ex.Clone(), true
}

// GetAllPairs returns every key that ever had an exchange, in first-use order.
// Keys stay listed after their exchange terminates.
func (p *Pool) GetAllPairs() []model.TokenPair {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.TokenPair, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// LiveExchanges returns the live exchanges in pair-log order.
func (p *Pool) LiveExchanges() []model.Exchange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveExchangesLocked()
}

// liveExchangesLocked relies on every live key being in the pair log, which
// commit and RestorePool guarantee.
func (p *Pool) liveExchangesLocked() []model.Exchange {
	out := make([]model.Exchange, 0, len(p.exchanges))
	for _, key := range p.pairs {
		if ex, ok := p.exchanges[key]; ok {
			out = append(out, ex.Clone())
		}
	}
	return out
}

// inUse reports whether key is live or settling.
func (p *Pool) inUse(key model.TokenPair) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.exchanges[key]; ok {
		return true
	}
	_, ok := p.settling[key]
	return ok
}

func (p *Pool) liveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.exchanges)
}

func (p *Pool) event(name string, ex model.Exchange, trader, receiver common.Address) model.SwapEvent {
	return model.SwapEvent{
		Name:     name,
		Pool:     p.address,
		NFT0:     p.nft0,
		NFT1:     p.nft1,
		Owner:    ex.Owner,
		Trader:   trader,
		Receiver: receiver,
		TokenID0: ex.TokenID0,
		TokenID1: ex.TokenID1,
	}
}

func (p *Pool) publish(ctx context.Context, ev model.SwapEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.Warn("publish event failed", zap.String("event", ev.Name), zap.Error(err))
	}
}

func (p *Pool) observe(op string, started time.Time, err error) {
	p.metrics.ObserveOp(poolComponent, op, started, ErrorKind(err))
	if err != nil {
		p.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
	}
}

// PoolState is the persisted form of a pool.
type PoolState struct {
	Address   common.Address    `json:"address"`
	Factory   common.Address    `json:"factory"`
	NFT0      common.Address    `json:"nft0"`
	NFT1      common.Address    `json:"nft1"`
	Exchanges []model.Exchange  `json:"exchanges"`
	Pairs     []model.TokenPair `json:"pairs"`
}

// State captures the pool ledger.
func (p *Pool) State() PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()

	pairs := make([]model.TokenPair, len(p.pairs))
	copy(pairs, p.pairs)
	return PoolState{
		Address:   p.address,
		Factory:   p.factory,
		NFT0:      p.nft0,
		NFT1:      p.nft1,
		Exchanges: p.liveExchangesLocked(),
		Pairs:     pairs,
	}
}

// RestorePool rebuilds a pool from its persisted state. Bindings in state
// override those in cfg.
func RestorePool(cfg PoolConfig, state PoolState) (*Pool, error) {
	cfg.Address = state.Address
	cfg.Factory = state.Factory
	cfg.NFT0 = state.NFT0
	cfg.NFT1 = state.NFT1
	p, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}

	for _, key := range state.Pairs {
		if _, ok := p.seen[key]; ok {
			return nil, fmt.Errorf("duplicate pair %s in pool %s", key, state.Address.Hex())
		}
		p.seen[key] = struct{}{}
		p.pairs = append(p.pairs, key)
	}
	for _, ex := range state.Exchanges {
		key := ex.Key()
		if !ex.Live() {
			return nil, fmt.Errorf("exchange %s has no owner", key)
		}
		if _, ok := p.exchanges[key]; ok {
			return nil, fmt.Errorf("duplicate exchange %s in pool %s", key, state.Address.Hex())
		}
		if _, ok := p.seen[key]; !ok {
			p.seen[key] = struct{}{}
			p.pairs = append(p.pairs, key)
		}
		p.exchanges[key] = ex.Clone()
	}
	return p, nil
}
