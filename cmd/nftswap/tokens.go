package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftSwap/internal/model"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Seed and inspect token custody in the workspace",
	}
	addLedgerFlags(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "mint <collection> <tokenId> <holder>",
		Short: "Mint a token to a holder",
		Args:  cobra.ExactArgs(3),
		RunE: mutating(func(s *session, _ *cobra.Command, args []string) error {
			collection, err := parseAddress("collection", args[0])
			if err != nil {
				return err
			}
			tokenID, err := model.ParseTokenID(args[1])
			if err != nil {
				return err
			}
			holder, err := parseAddress("holder", args[2])
			if err != nil {
				return err
			}
			if err := s.ws.Book.Mint(collection, tokenID, holder); err != nil {
				return err
			}
			s.logger.Info("token minted",
				zap.String("collection", collection.Hex()),
				zap.String("token_id", model.FormatTokenID(tokenID)),
				zap.String("holder", holder.Hex()),
			)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "holder <collection> <tokenId>",
		Short: "Print the holder of a token",
		Args:  cobra.ExactArgs(2),
		RunE: readOnly(func(s *session, cmd *cobra.Command, args []string) error {
			collection, err := parseAddress("collection", args[0])
			if err != nil {
				return err
			}
			tokenID, err := model.ParseTokenID(args[1])
			if err != nil {
				return err
			}
			holder, err := s.ws.Book.HolderOf(s.ctx, collection, tokenID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), holder)
		}),
	})

	return cmd
}

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Seed and inspect balances used for pool creation fees",
	}
	addLedgerFlags(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "fund <account> <amount>",
		Short: "Credit an account",
		Args:  cobra.ExactArgs(2),
		RunE: mutating(func(s *session, _ *cobra.Command, args []string) error {
			account, err := parseAddress("account", args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return s.ws.Wallets.Fund(account, amount)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "balance <account>",
		Short: "Print an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: readOnly(func(s *session, cmd *cobra.Command, args []string) error {
			account, err := parseAddress("account", args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.ws.Wallets.BalanceOf(account).String())
		}),
	})

	return cmd
}
