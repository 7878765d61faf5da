package reconcile

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftSwap/internal/model"
	"nftSwap/internal/swap"
)

const ownerOfABI = `[{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

var (
	poolAddr = common.HexToAddress("0xc000000000000000000000000000000000000003")
	nftA     = common.HexToAddress("0xa000000000000000000000000000000000000001")
	stranger = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

// chainOwners answers ownerOf from a token id to holder map.
type chainOwners struct {
	parsed abi.ABI
	owners map[uint64]common.Address
}

func (c chainOwners) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method := c.parsed.Methods["ownerOf"]
	if !bytes.HasPrefix(msg.Data, method.ID) {
		return nil, errors.New("unknown selector")
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	id := args[0].(*big.Int).Uint64()
	owner, ok := c.owners[id]
	if !ok {
		return nil, errors.New("execution reverted: invalid token ID")
	}
	return method.Outputs.Pack(owner)
}

func TestRunReportsMismatches(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ownerOfABI))
	require.NoError(t, err)

	caller := chainOwners{parsed: parsed, owners: map[uint64]common.Address{
		1: poolAddr,
		2: stranger,
	}}

	exchange := func(id0 uint64) model.Exchange {
		return model.Exchange{Owner: stranger, TokenID0: *uint256.NewInt(id0), TokenID1: *uint256.NewInt(100)}
	}
	pools := []swap.PoolState{{
		Address:   poolAddr,
		NFT0:      nftA,
		Exchanges: []model.Exchange{exchange(1), exchange(2), exchange(3)},
	}}

	report, err := Run(context.Background(), caller, pools, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	require.Len(t, report.Mismatches, 2)

	assert.Equal(t, stranger, report.Mismatches[0].Holder)
	assert.Equal(t, model.NewTokenPair(2, 100), report.Mismatches[0].Pair)
	assert.Contains(t, report.Mismatches[1].Error, "invalid token ID")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pools := []swap.PoolState{{Address: poolAddr, NFT0: nftA, Exchanges: []model.Exchange{{Owner: stranger}}}}
	_, err := Run(ctx, chainOwners{}, pools, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
