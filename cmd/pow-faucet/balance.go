package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

// address returns the pubkey in args, or the fee payer's when args is empty.
func (a *app) address(args []string) (solana.Pubkey, error) {
	if len(args) == 1 {
		return solana.ParsePubkey(args[0])
	}
	payer, err := a.payer()
	if err != nil {
		return solana.Pubkey{}, err
	}
	return payer.PublicKey, nil
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the SOL balance of an address (default: the fee payer)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := a.address(args)
			if err != nil {
				return err
			}
			lamports, err := a.rpc().BalanceLamports(cmd.Context(), pk)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s SOL\n", pk, protocol.Lamports(lamports))
			return nil
		},
	}
}

func (a *app) airdropCmd() *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "airdrop [address]",
		Short: "Request SOL from the cluster's own faucet (devnet and testnet only)",
		Long: `airdrop asks the RPC node for lamports directly. It is the fallback when no
proof-of-work faucet is funded; public endpoints rate limit it heavily.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lamports, err := protocol.ParseSOL(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			if lamports == 0 {
				return errors.New("--amount must be positive")
			}
			pk, err := a.address(args)
			if err != nil {
				return err
			}
			sig, err := a.rpc().RequestAirdrop(cmd.Context(), pk, uint64(lamports))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "requested %s SOL for %s\ntx %s\n", lamports, pk, sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "1", "Amount in SOL")
	return cmd
}
