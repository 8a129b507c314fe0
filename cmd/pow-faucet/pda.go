package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

func (a *app) pdaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pda",
		Short: "Print faucet program derived addresses",
	}

	var spec faucetFlags
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Spec address of a (difficulty, reward) faucet",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			d, r, err := spec.parse()
			if err != nil {
				return err
			}
			pk, bump, err := a.deriver().SpecAddress(d, r)
			if err != nil {
				return err
			}
			return a.printPDA(pk, bump)
		},
	}
	spec.register(specCmd)

	var source faucetFlags
	var specAddr string
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Funding address of a faucet, by --spec or by -d and --reward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var specPK solana.Pubkey
			if specAddr != "" {
				pk, err := solana.ParsePubkey(specAddr)
				if err != nil {
					return fmt.Errorf("--spec: %w", err)
				}
				specPK = pk
			} else {
				if !cmd.Flags().Changed("difficulty") {
					return fmt.Errorf("either --spec or -d with --reward is required")
				}
				d, r, err := source.parse()
				if err != nil {
					return err
				}
				if specPK, _, err = a.deriver().SpecAddress(d, r); err != nil {
					return err
				}
			}
			pk, bump, err := a.deriver().SourceAddress(specPK)
			if err != nil {
				return err
			}
			return a.printPDA(pk, bump)
		},
	}
	sourceCmd.Flags().StringVar(&specAddr, "spec", "", "Spec account address")
	sourceCmd.Flags().Uint8VarP(&source.difficulty, "difficulty", "d", 0, "Faucet difficulty")
	sourceCmd.Flags().StringVar(&source.reward, "reward", "", "Faucet reward in SOL")

	var (
		miner      string
		difficulty uint8
	)
	receiptCmd := &cobra.Command{
		Use:   "receipt",
		Short: "Claim receipt address for a miner key and difficulty",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			minerPK, err := solana.ParsePubkey(miner)
			if err != nil {
				return fmt.Errorf("--miner: %w", err)
			}
			pk, bump, err := a.deriver().ReceiptAddress(minerPK, difficulty)
			if err != nil {
				return err
			}
			return a.printPDA(pk, bump)
		},
	}
	receiptCmd.Flags().StringVar(&miner, "miner", "", "Miner public key")
	receiptCmd.Flags().Uint8VarP(&difficulty, "difficulty", "d", 0, "Claimed difficulty")
	_ = receiptCmd.MarkFlagRequired("miner")
	_ = receiptCmd.MarkFlagRequired("difficulty")

	cmd.AddCommand(specCmd, sourceCmd, receiptCmd)
	return cmd
}

func (a *app) printPDA(pk solana.Pubkey, bump uint8) error {
	_, err := fmt.Fprintf(a.out, "%s %d\n", pk, bump)
	return err
}
