package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nftSwap/internal/config"
	"nftSwap/internal/contract"
	"nftSwap/internal/model"
	"nftSwap/internal/snapshot"
	"nftSwap/internal/storage"
	"nftSwap/internal/swap"
)

const (
	factoryHex = "0xf000000000000000000000000000000000000001"
	creatorHex = "0xc000000000000000000000000000000000000002"
	aliceHex   = "0xa11ce00000000000000000000000000000000003"
	bobHex     = "0xb0b0000000000000000000000000000000000004"
	nftAHex    = "0xaaaa000000000000000000000000000000000005"
	nftBHex    = "0xbbbb000000000000000000000000000000000006"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) (*cli, string, string) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace.json")
	journal := filepath.Join(dir, "events.jsonl")
	return &cli{t: t, base: []string{
		"--workspace", workspace,
		"--journal", journal,
		"--factory", factoryHex,
		"--creator", creatorHex,
		"--log-level", "error",
	}}, workspace, journal
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, c.base...))
	err := root.Execute()
	return out.String(), err
}

func (c *cli) must(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "nftswap %v", args)
	return out
}

func TestLedgerCommands(t *testing.T) {
	c, workspace, journal := newCLI(t)

	c.must("token", "mint", nftAHex, "5", aliceHex)
	c.must("token", "mint", nftBHex, "9", bobHex)

	var pool poolView
	require.NoError(t, json.Unmarshal([]byte(c.must("pool", "create", nftAHex, nftBHex, "--caller", aliceHex)), &pool))
	factory := common.HexToAddress(factoryHex)
	nftA, nftB := common.HexToAddress(nftAHex), common.HexToAddress(nftBHex)
	assert.Equal(t, swap.PoolAddress(factory, nftA, nftB), pool.Address)
	poolHex := pool.Address.Hex()

	var got common.Address
	require.NoError(t, json.Unmarshal([]byte(c.must("pool", "get", nftBHex, nftAHex)), &got))
	assert.Equal(t, pool.Address, got)

	var view exchangeView
	require.NoError(t, json.Unmarshal([]byte(c.must("exchange", "create", poolHex, "5", "9", "--caller", aliceHex)), &view))
	require.True(t, view.Live)
	assert.Equal(t, common.HexToAddress(aliceHex), view.Exchange.Owner)

	require.NoError(t, json.Unmarshal([]byte(c.must("token", "holder", nftAHex, "5")), &got))
	assert.Equal(t, pool.Address, got)

	_, err := c.run("exchange", "trade", poolHex, "5", "9", "--caller", aliceHex)
	assert.ErrorIs(t, err, swap.ErrInvalidTrader)

	c.must("exchange", "trade", poolHex, "5", "9", "--caller", bobHex)

	require.NoError(t, json.Unmarshal([]byte(c.must("token", "holder", nftAHex, "5")), &got))
	assert.Equal(t, common.HexToAddress(bobHex), got)
	require.NoError(t, json.Unmarshal([]byte(c.must("token", "holder", nftBHex, "9")), &got))
	assert.Equal(t, common.HexToAddress(aliceHex), got)

	_, err = c.run("exchange", "trade", poolHex, "5", "9", "--caller", bobHex)
	assert.ErrorIs(t, err, swap.ErrNonexistentExchange)

	var pairs []model.TokenPair
	require.NoError(t, json.Unmarshal([]byte(c.must("pool", "pairs", poolHex)), &pairs))
	assert.Equal(t, []model.TokenPair{model.NewTokenPair(5, 9)}, pairs)

	t.Run("DecodeJournal", func(t *testing.T) {
		metas, err := workspacePoolMetas(workspace)
		require.NoError(t, err)

		decoder, err := contract.NewPoolDecoder(contract.DecoderConfig{})
		require.NoError(t, err)
		decodeCtx := contract.DecodeContext{Context: context.Background(), PoolMetaCache: contract.NewPoolMetaCache()}
		decodeCtx.PoolMetaCache.Load(metas)

		in, err := os.Open(journal)
		require.NoError(t, err)
		defer in.Close()

		dir := t.TempDir()
		out, err := newJSONLWriter(filepath.Join(dir, "typed.jsonl"), false)
		require.NoError(t, err)
		errs, err := newJSONLWriter(filepath.Join(dir, "errors.jsonl"), false)
		require.NoError(t, err)

		stats, err := decodeLogs(in, decoder, decodeCtx, out, errs)
		require.NoError(t, err)
		require.NoError(t, out.Close())
		require.NoError(t, errs.Close())
		assert.Equal(t, decodeStats{total: 2, decoded: 2}, stats)

		events := readTypedEvents(t, filepath.Join(dir, "typed.jsonl"))
		require.Len(t, events, 2)
		assert.Equal(t, model.EventExchangeCreated, events[0].EventName)
		assert.Equal(t, model.EventTrade, events[1].EventName)
		assert.Equal(t, common.HexToAddress(bobHex).Hex(), events[1].Exchange.Trader)
		assert.Equal(t, nftA.Hex(), events[1].PoolMeta.NFT0)
		assert.Less(t, events[0].BlockNumber, events[1].BlockNumber)
	})
}

func TestFactoryFeeRoleCommands(t *testing.T) {
	c, _, _ := newCLI(t)

	c.must("wallet", "fund", aliceHex, "100")

	_, err := c.run("factory", "set-fee-receiver", bobHex, "--caller", aliceHex)
	assert.ErrorIs(t, err, swap.ErrNotFeeSetter)
	c.must("factory", "set-fee-receiver", bobHex, "--caller", creatorHex)

	c.must("pool", "create", nftAHex, nftBHex, "--fee", "30", "--caller", aliceHex)

	var balance string
	require.NoError(t, json.Unmarshal([]byte(c.must("wallet", "balance", bobHex)), &balance))
	assert.Equal(t, "30", balance)

	_, err = c.run("pool", "create", nftAHex, common.HexToAddress("0x01").Hex(), "--fee", "500", "--caller", aliceHex)
	assert.ErrorIs(t, err, swap.ErrFeeTransferFailed)

	var view factoryView
	require.NoError(t, json.Unmarshal([]byte(c.must("factory", "show")), &view))
	assert.Equal(t, common.HexToAddress(bobHex), view.FeeReceiver)
	assert.Equal(t, common.HexToAddress(creatorHex), view.FeeReceiverSetter)
	assert.Len(t, view.Pools, 1)
}

func TestLedgerRequiresCaller(t *testing.T) {
	c, _, _ := newCLI(t)
	_, err := c.run("pool", "create", nftAHex, nftBHex)
	assert.ErrorContains(t, err, "caller is required")
}

func TestJournalWaitsForSave(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "events.jsonl")
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	buffer := storage.NewBuffer(storage.NewJsonlStorage(journalPath))
	ws, err := snapshot.Open(filepath.Join(dir, "workspace.json"), snapshot.Options{
		ChainID:        31337,
		FactoryAddress: common.HexToAddress(factoryHex),
		Creator:        common.HexToAddress(creatorHex),
		Journal:        buffer,
	})
	require.NoError(t, err)
	s := &session{
		ctx:     ctx,
		stop:    func() {},
		cfg:     config.Config{Workspace: filepath.Join(blocker, "workspace.json")},
		logger:  zap.NewNop(),
		ws:      ws,
		journal: buffer,
	}

	alice, bob := common.HexToAddress(aliceHex), common.HexToAddress(bobHex)
	nftA, nftB := common.HexToAddress(nftAHex), common.HexToAddress(nftBHex)
	five, nine := *uint256.NewInt(5), *uint256.NewInt(9)
	require.NoError(t, ws.Book.Mint(nftA, five, alice))
	require.NoError(t, ws.Book.Mint(nftB, nine, bob))

	create := func(s *session, _ *cobra.Command, _ []string) error {
		pool, err := s.ws.Factory.CreatePool(s.ctx, alice, nftA, nftB, nil)
		if err != nil {
			return err
		}
		return pool.CreateExchange(s.ctx, alice, five, nine)
	}
	require.Error(t, s.apply(true, create, nil, nil))

	logs, err := storage.ReadLogs(journalPath)
	require.NoError(t, err)
	assert.Empty(t, logs, "events of an unsaved workspace must not be journaled")

	s.cfg.Workspace = filepath.Join(dir, "workspace.json")
	cancel := func(s *session, _ *cobra.Command, _ []string) error {
		return s.ws.Factory.Pools()[0].CancelExchange(s.ctx, alice, five, nine, alice)
	}
	require.NoError(t, s.apply(true, cancel, nil, nil))

	logs, err = storage.ReadLogs(journalPath)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func readTypedEvents(t *testing.T, path string) []model.TypedEvent {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var events []model.TypedEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var ev model.TypedEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}
