package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ethService struct {
	calls int
}

func (s *ethService) ChainId() *hexutil.Big {
	s.calls++
	return (*hexutil.Big)(big.NewInt(31337))
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	s.calls++
	return 42
}

func newTestClient(t *testing.T, opts Options) (*Client, *ethService) {
	t.Helper()
	svc := &ethService{}
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	t.Cleanup(server.Stop)

	client := newClient(rpc.DialInProc(server), opts)
	t.Cleanup(client.Close)
	return client, svc
}

func TestClientCalls(t *testing.T) {
	client, svc := newTestClient(t, Options{RequestsPerSecond: 1000, Burst: 10})
	ctx := context.Background()

	id, err := client.GetChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(31337), id.Int64())

	head, err := client.LatestBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), head)
	assert.Equal(t, 2, svc.calls)
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	client, svc := newTestClient(t, Options{RequestsPerSecond: 0.001, Burst: 1})

	_, err := client.LatestBlockNumber(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.LatestBlockNumber(ctx)
	assert.ErrorContains(t, err, "rate limit")
	assert.Equal(t, 1, svc.calls)
}

func TestBlockTimestampCacheEvictsOldest(t *testing.T) {
	client := newClient(nil, Options{HeaderCacheSize: 2})

	client.rememberTime(1, 100)
	client.rememberTime(2, 200)
	client.rememberTime(2, 999)
	client.rememberTime(3, 300)

	_, ok := client.cachedTime(1)
	assert.False(t, ok)

	ts, ok := client.cachedTime(2)
	require.True(t, ok)
	assert.Equal(t, uint64(200), ts)

	ts, err := client.BlockTimestamp(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), ts)
}
