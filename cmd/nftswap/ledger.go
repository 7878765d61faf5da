package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftSwap/internal/config"
	"nftSwap/internal/model"
	"nftSwap/internal/snapshot"
	"nftSwap/internal/storage"
	"nftSwap/internal/storage/postgres"
	"nftSwap/internal/swap"
)

// session is one ledger command run: the workspace is loaded, a single
// operation is applied, and the workspace is saved if it changed. Journaled
// events are held in journal until the save succeeds.
type session struct {
	ctx     context.Context
	stop    context.CancelFunc
	cfg     config.Config
	logger  *zap.Logger
	store   *postgres.Store
	ws      *snapshot.Workspace
	journal *storage.Buffer
}

type ledgerFunc func(s *session, cmd *cobra.Command, args []string) error

func addLedgerFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("workspace", "./data/workspace.json", "workspace snapshot path")
	flags.String("journal", "./data/events.jsonl", "event journal JSONL path, empty disables the file journal")
	flags.String("pg-dsn", "", "optional Postgres DSN mirroring the journal and pool registry")
	flags.Uint64("chain-id", 31337, "chain id recorded on journaled events")
	flags.String("factory", "", "factory address used when creating a new workspace")
	flags.String("creator", "", "factory creator used when creating a new workspace")
	flags.String("caller", "", "address the operation runs as")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// readOnly runs fn against the workspace without saving it.
func readOnly(fn ledgerFunc) func(*cobra.Command, []string) error {
	return ledgerRun(false, fn)
}

// mutating runs fn and saves the workspace when fn succeeds.
func mutating(fn ledgerFunc) func(*cobra.Command, []string) error {
	return ledgerRun(true, fn)
}

func ledgerRun(save bool, fn ledgerFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()
		return s.apply(save, fn, cmd, args)
	}
}

func (s *session) apply(save bool, fn ledgerFunc, cmd *cobra.Command, args []string) error {
	if err := fn(s, cmd, args); err != nil {
		s.discard("operation failed")
		return err
	}
	if !save {
		s.discard("read-only command")
		return nil
	}
	return s.save()
}

// discard drops events that never reached a saved workspace.
func (s *session) discard(reason string) {
	if s.journal == nil {
		return
	}
	if n := s.journal.Discard(); n > 0 {
		s.logger.Warn("journal records dropped", zap.Int("records", n), zap.String("reason", reason))
	}
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &session{ctx: ctx, stop: stop, cfg: cfg, logger: logger}

	var journal storage.Multi
	if cfg.Journal != "" {
		journal = append(journal, storage.NewJsonlStorage(cfg.Journal))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.store = store
		if err := store.Migrate(ctx); err != nil {
			s.close()
			return nil, err
		}
		journal = append(journal, store.LogWriter(ctx))
	}

	opts := snapshot.Options{
		ChainID: cfg.ChainID,
		Logger:  logger,
	}
	if len(journal) > 0 {
		s.journal = storage.NewBuffer(journal)
		opts.Journal = s.journal
	}
	if cfg.Factory != "" {
		if opts.FactoryAddress, err = parseAddress("factory", cfg.Factory); err != nil {
			s.close()
			return nil, err
		}
	}
	if cfg.Creator != "" {
		if opts.Creator, err = parseAddress("creator", cfg.Creator); err != nil {
			s.close()
			return nil, err
		}
	}

	ws, err := snapshot.Open(cfg.Workspace, opts)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	s.ws = ws

	logger.Debug("workspace open",
		zap.String("workspace", cfg.Workspace),
		zap.String("journal", cfg.Journal),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("factory", ws.Factory.Address().Hex()),
		zap.Int("pools", len(ws.Factory.GetAllPools())),
	)
	return s, nil
}

func (s *session) close() {
	if s.store != nil {
		s.store.Close()
	}
	s.stop()
	_ = s.logger.Sync()
}

func (s *session) save() error {
	if err := s.ws.Save(s.cfg.Workspace); err != nil {
		s.discard("workspace not saved")
		return err
	}
	if s.journal != nil {
		if err := s.journal.Flush(); err != nil {
			s.logger.Error("workspace saved without its journal records", zap.Error(err))
			return fmt.Errorf("flush journal: %w", err)
		}
	}
	if s.store == nil {
		return nil
	}

	pools := s.ws.Factory.Pools()
	records := make([]model.Pool, 0, len(pools))
	for _, p := range pools {
		nft0, nft1 := p.GetNFTPair()
		records = append(records, model.Pool{
			ChainID: s.ws.ChainID,
			Address: p.Address().Hex(),
			Factory: p.Factory().Hex(),
			NFT0:    nft0.Hex(),
			NFT1:    nft1.Hex(),
		})
	}
	if err := s.store.UpsertPools(s.ctx, records); err != nil {
		return fmt.Errorf("upsert pools: %w", err)
	}
	return nil
}

// caller returns the --caller address. Every state-changing pool or factory
// operation needs one.
func (s *session) caller() (common.Address, error) {
	if s.cfg.Caller == "" {
		return common.Address{}, fmt.Errorf("caller is required")
	}
	addr, err := parseAddress("caller", s.cfg.Caller)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("caller: %w", swap.ErrZeroAddress)
	}
	return addr, nil
}

func (s *session) pool(input string) (*swap.Pool, error) {
	addr, err := parseAddress("pool", input)
	if err != nil {
		return nil, err
	}
	return s.ws.Factory.Pool(addr)
}

func parseAddress(name, input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, input)
	}
	return common.HexToAddress(input), nil
}

func parseTokenPair(id0, id1 string) (uint256.Int, uint256.Int, error) {
	tokenID0, err := model.ParseTokenID(id0)
	if err != nil {
		return uint256.Int{}, uint256.Int{}, fmt.Errorf("tokenId0: %w", err)
	}
	tokenID1, err := model.ParseTokenID(id1)
	if err != nil {
		return uint256.Int{}, uint256.Int{}, fmt.Errorf("tokenId1: %w", err)
	}
	return tokenID0, tokenID1, nil
}

func parseAmount(input string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %s", input)
	}
	return amount, nil
}

func printJSON(w io.Writer, value interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
