// Package chain reads pool logs, block headers and contract state over JSON-RPC.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// DefaultHeaderCacheSize bounds the block timestamp cache.
const DefaultHeaderCacheSize = 4096

// Options tunes a Client. Zero values mean no rate limit and the default
// cache size.
type Options struct {
	// RequestsPerSecond caps outgoing RPC calls; 0 disables the limit.
	RequestsPerSecond float64
	// Burst is the limiter bucket size, at least 1.
	Burst int
	// HeaderCacheSize bounds how many block timestamps are remembered.
	HeaderCacheSize int
}

// Client wraps go-ethereum RPC for pool log indexing and contract reads.
type Client struct {
	rpcClient *rpc.Client
	eth       *ethclient.Client
	limiter   *rate.Limiter

	mu        sync.Mutex
	times     map[uint64]uint64
	timeOrder []uint64
	cacheSize int
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return newClient(rpcClient, opts), nil
}

func newClient(rpcClient *rpc.Client, opts Options) *Client {
	c := &Client{
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
		times:     make(map[uint64]uint64),
		cacheSize: opts.HeaderCacheSize,
	}
	if c.cacheSize <= 0 {
		c.cacheSize = DefaultHeaderCacheSize
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// wait blocks until the limiter admits one more call or ctx ends.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.ChainID(ctx)
}

// LatestBlockNumber returns the head block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return c.eth.BlockNumber(ctx)
}

// BlockTimestamp returns the timestamp of block number. Recently used blocks
// are served from a bounded cache, evicted oldest first.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.cachedTime(number); ok {
		return ts, nil
	}

	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}
	c.rememberTime(number, header.Time)
	return header.Time, nil
}

func (c *Client) cachedTime(number uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.times[number]
	return ts, ok
}

func (c *Client) rememberTime(number, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.times[number]; ok {
		return
	}
	for len(c.timeOrder) >= c.cacheSize {
		delete(c.times, c.timeOrder[0])
		c.timeOrder = c.timeOrder[1:]
	}
	c.times[number] = ts
	c.timeOrder = append(c.timeOrder, number)
}

// FilterLogs returns logs emitted by addresses in [fromBlock, toBlock] whose
// first topic is one of topic0. An empty topic0 matches every event.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.FilterLogs(ctx, query)
}

// CallContract performs an eth_call at blockNumber, or at the head when nil.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.CallContract(ctx, msg, blockNumber)
}
