package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"nftSwap/internal/swap"
)

type factoryView struct {
	Address           common.Address `json:"address"`
	FeeReceiver       common.Address `json:"fee_receiver"`
	FeeReceiverSetter common.Address `json:"fee_receiver_setter"`
	Pools             []poolView     `json:"pools"`
}

type poolView struct {
	Address       common.Address `json:"address"`
	NFT0          common.Address `json:"nft0"`
	NFT1          common.Address `json:"nft1"`
	LiveExchanges int            `json:"live_exchanges"`
}

func newPoolView(p *swap.Pool) poolView {
	nft0, nft1 := p.GetNFTPair()
	return poolView{
		Address:       p.Address(),
		NFT0:          nft0,
		NFT1:          nft1,
		LiveExchanges: len(p.LiveExchanges()),
	}
}

func newFactoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factory",
		Short: "Inspect the factory and manage the fee receiver role",
	}
	addLedgerFlags(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the factory, its fee role and its pools",
		Args:  cobra.NoArgs,
		RunE: readOnly(func(s *session, cmd *cobra.Command, _ []string) error {
			f := s.ws.Factory
			view := factoryView{
				Address:           f.Address(),
				FeeReceiver:       f.GetFeeReceiver(),
				FeeReceiverSetter: f.GetFeeReceiverSetter(),
				Pools:             []poolView{},
			}
			for _, p := range f.Pools() {
				view.Pools = append(view.Pools, newPoolView(p))
			}
			return printJSON(cmd.OutOrStdout(), view)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-fee-receiver <address>",
		Short: "Change where pool creation fees are paid",
		Args:  cobra.ExactArgs(1),
		RunE: mutating(func(s *session, _ *cobra.Command, args []string) error {
			caller, err := s.caller()
			if err != nil {
				return err
			}
			receiver, err := parseAddress("receiver", args[0])
			if err != nil {
				return err
			}
			return s.ws.Factory.SetFeeReceiver(caller, receiver)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-fee-receiver-setter <address>",
		Short: "Hand the fee receiver role to another address",
		Args:  cobra.ExactArgs(1),
		RunE: mutating(func(s *session, _ *cobra.Command, args []string) error {
			caller, err := s.caller()
			if err != nil {
				return err
			}
			setter, err := parseAddress("setter", args[0])
			if err != nil {
				return err
			}
			return s.ws.Factory.SetFeeReceiverSetter(caller, setter)
		}),
	})

	return cmd
}

func newPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Create and inspect swap pools",
	}
	addLedgerFlags(cmd)

	createCmd := &cobra.Command{
		Use:   "create <nft0> <nft1>",
		Short: "Create the pool for a collection pair",
		Args:  cobra.ExactArgs(2),
		RunE: mutating(func(s *session, cmd *cobra.Command, args []string) error {
			caller, err := s.caller()
			if err != nil {
				return err
			}
			nft0, err := parseAddress("nft0", args[0])
			if err != nil {
				return err
			}
			nft1, err := parseAddress("nft1", args[1])
			if err != nil {
				return err
			}
			rawFee, _ := cmd.Flags().GetString("fee")
			fee, err := parseAmount(rawFee)
			if err != nil {
				return err
			}

			pool, err := s.ws.Factory.CreatePool(s.ctx, caller, nft0, nft1, fee)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newPoolView(pool))
		}),
	}
	createCmd.Flags().String("fee", "0", "creation fee paid from caller to the fee receiver")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <nftA> <nftB>",
		Short: "Print the pool address for a pair in either order, or the null address",
		Args:  cobra.ExactArgs(2),
		RunE: readOnly(func(s *session, cmd *cobra.Command, args []string) error {
			a, err := parseAddress("nftA", args[0])
			if err != nil {
				return err
			}
			b, err := parseAddress("nftB", args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.ws.Factory.GetPool(a, b))
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pools in creation order",
		Args:  cobra.NoArgs,
		RunE: readOnly(func(s *session, cmd *cobra.Command, _ []string) error {
			views := []poolView{}
			for _, p := range s.ws.Factory.Pools() {
				views = append(views, newPoolView(p))
			}
			return printJSON(cmd.OutOrStdout(), views)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pairs <pool>",
		Short: "List every token pair ever offered in a pool, in first-offer order",
		Args:  cobra.ExactArgs(1),
		RunE: readOnly(func(s *session, cmd *cobra.Command, args []string) error {
			pool, err := s.pool(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pool.GetAllPairs())
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "exchanges <pool>",
		Short: "List the live exchanges of a pool",
		Args:  cobra.ExactArgs(1),
		RunE: readOnly(func(s *session, cmd *cobra.Command, args []string) error {
			pool, err := s.pool(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pool.LiveExchanges())
		}),
	})

	return cmd
}
