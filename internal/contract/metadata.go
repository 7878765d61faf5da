package contract

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftSwap/internal/model"
)

// Caller performs eth_call requests. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolMetaCache caches pool metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Load seeds the cache from metas keyed by hex address.
func (c *PoolMetaCache) Load(metas map[string]model.PoolMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, meta := range metas {
		c.data[common.HexToAddress(addr)] = meta
	}
}

// FetchPoolMeta loads the collection pair a pool is bound to.
func FetchPoolMeta(ctx context.Context, caller Caller, pool common.Address) (model.PoolMeta, error) {
	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}

	parsed, err := PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, caller, pool, parsed, nil, "getNFTPair")
	if err != nil {
		return model.PoolMeta{}, err
	}
	if len(values) != 2 {
		return model.PoolMeta{}, fmt.Errorf("unexpected getNFTPair values: %d", len(values))
	}
	nft0, err := asAddress(values[0])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("nft0: %w", err)
	}
	nft1, err := asAddress(values[1])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("nft1: %w", err)
	}

	return model.PoolMeta{NFT0: nft0.Hex(), NFT1: nft1.Hex()}, nil
}

// OwnerOf returns the holder of tokenID in an ERC721 collection. A nil block
// queries the latest state.
func OwnerOf(ctx context.Context, caller Caller, collection common.Address, tokenID uint256.Int, block *big.Int) (common.Address, error) {
	if caller == nil {
		return common.Address{}, fmt.Errorf("chain client is nil")
	}

	parsed, err := erc721ABIInstance()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse erc721 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, collection, parsed, block, "ownerOf", tokenID.ToBig())
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected ownerOf values: %d", len(values))
	}
	return asAddress(values[0])
}

func callMethod(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
