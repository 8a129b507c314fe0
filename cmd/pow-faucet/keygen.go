package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

func (a *app) keygenCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a fee payer keypair file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path := out
			if path == "" {
				path = a.cfg.Keypair
			}
			kp, err := solana.GenerateKeypair()
			if err != nil {
				return err
			}
			if err := solana.WriteKeypairFile(path, kp, force); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "pubkey %s\nwrote  %s\n", kp.PublicKey, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Keypair path (default: --keypair)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
