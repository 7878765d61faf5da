package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftSwap/internal/model"
	"nftSwap/internal/swap"
)

type exchangeView struct {
	Pool     common.Address  `json:"pool"`
	Live     bool            `json:"live"`
	Exchange *model.Exchange `json:"exchange,omitempty"`
}

// exchangeArgs resolves the <pool> <tokenId0> <tokenId1> prefix shared by
// the exchange subcommands.
func exchangeArgs(s *session, args []string) (*swap.Pool, model.TokenPair, error) {
	pool, err := s.pool(args[0])
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	id0, id1, err := parseTokenPair(args[1], args[2])
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	return pool, model.TokenPair{TokenID0: id0, TokenID1: id1}, nil
}

func newExchangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Offer, trade, update and cancel token exchanges",
	}
	addLedgerFlags(cmd)

	createCmd := &cobra.Command{
		Use:   "create <pool> <tokenId0> <tokenId1>",
		Short: "Escrow tokenId0 and ask for tokenId1 in return",
		Args:  cobra.ExactArgs(3),
		RunE: mutating(func(s *session, cmd *cobra.Command, args []string) error {
			caller, err := s.caller()
			if err != nil {
				return err
			}
			pool, key, err := exchangeArgs(s, args)
			if err != nil {
				return err
			}

			rawTrader, _ := cmd.Flags().GetString("trader")
			if rawTrader == "" {
				err = pool.CreateExchange(s.ctx, caller, key.TokenID0, key.TokenID1)
			} else {
				trader, perr := parseAddress("trader", rawTrader)
				if perr != nil {
					return perr
				}
				err = pool.CreateExchangeFor(s.ctx, caller, trader, key.TokenID0, key.TokenID1)
			}
			if err != nil {
				return err
			}
			return printExchange(cmd, pool, key)
		}),
	}
	createCmd.Flags().String("trader", "", "only this address may fulfill the exchange")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "trade <pool> <tokenId0> <tokenId1>",
		Short: "Fulfill an exchange: pay tokenId1 to the owner and receive tokenId0",
		Args:  cobra.ExactArgs(3),
		RunE: mutating(func(s *session, _ *cobra.Command, args []string) error {
			caller, err := s.caller()
			if err != nil {
				return err
			}
			pool, key, err := exchangeArgs(s, args)
			if err != nil {
				return err
			}
			if err := pool.Trade(s.ctx, caller, key.TokenID0, key.TokenID1); err != nil {
				return err
			}
			s.logger.Info("exchange traded",
				zap.String("pool", pool.Address().Hex()),
				zap.String("pair", key.String()),
				zap.String("trader", caller.Hex()),
			)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update-owner <pool> <tokenId0> <tokenId1> <newOwner>",
		Short: "Hand an exchange to a new owner",
		Args:  cobra.ExactArgs(4),
		RunE: mutating(func(s *session, cmd *cobra.Command, args []string) error {
			caller, err := s.caller()
			if err != nil {
				return err
			}
			pool, key, err := exchangeArgs(s, args)
			if err != nil {
				return err
			}
			newOwner, err := parseAddress("owner", args[3])
			if err != nil {
				return err
			}
			if err := pool.UpdateExchangeOwner(s.ctx, caller, newOwner, key.TokenID0, key.TokenID1); err != nil {
				return err
			}
			return printExchange(cmd, pool, key)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update-trader <pool> <tokenId0> <tokenId1> <newTrader>",
		Short: "Restrict who may fulfill an exchange; the null address lifts the restriction",
		Args:  cobra.ExactArgs(4),
		RunE: mutating(func(s *session, cmd *cobra.Command, args []string) error {
			caller, err := s.caller()
			if err != nil {
				return err
			}
			pool, key, err := exchangeArgs(s, args)
			if err != nil {
				return err
			}
			newTrader, err := parseAddress("trader", args[3])
			if err != nil {
				return err
			}
			if err := pool.UpdateExchangeTrader(s.ctx, caller, newTrader, key.TokenID0, key.TokenID1); err != nil {
				return err
			}
			return printExchange(cmd, pool, key)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <pool> <tokenId0> <tokenId1> <to>",
		Short: "Withdraw an exchange and send the escrowed token to an address",
		Args:  cobra.ExactArgs(4),
		RunE: mutating(func(s *session, _ *cobra.Command, args []string) error {
			caller, err := s.caller()
			if err != nil {
				return err
			}
			pool, key, err := exchangeArgs(s, args)
			if err != nil {
				return err
			}
			to, err := parseAddress("to", args[3])
			if err != nil {
				return err
			}
			if err := pool.CancelExchange(s.ctx, caller, key.TokenID0, key.TokenID1, to); err != nil {
				return err
			}
			s.logger.Info("exchange cancelled",
				zap.String("pool", pool.Address().Hex()),
				zap.String("pair", key.String()),
				zap.String("to", to.Hex()),
			)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <pool> <tokenId0> <tokenId1>",
		Short: "Print an exchange",
		Args:  cobra.ExactArgs(3),
		RunE: readOnly(func(s *session, cmd *cobra.Command, args []string) error {
			pool, key, err := exchangeArgs(s, args)
			if err != nil {
				return err
			}
			return printExchange(cmd, pool, key)
		}),
	})

	return cmd
}

func printExchange(cmd *cobra.Command, pool *swap.Pool, key model.TokenPair) error {
	view := exchangeView{Pool: pool.Address()}
	if ex, ok := pool.GetExchange(key.TokenID0, key.TokenID1); ok {
		view.Live = true
		view.Exchange = &ex
	}
	return printJSON(cmd.OutOrStdout(), view)
}
