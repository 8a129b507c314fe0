package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

func (a *app) grindCmd() *cobra.Command {
	var (
		difficulty uint8
		out        string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "grind",
		Short: "Search for a key with at least -d leading 'A' characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.warnBudget(difficulty)
			res, err := a.grinder().Grind(cmd.Context(), difficulty, a.cfg.MaxAttempts)
			if err != nil {
				return err
			}
			if !res.Found() {
				fmt.Fprintf(a.out, "no key with %d leading 'A' after %d attempts (%s)\n", difficulty, res.Attempts, res.Duration)
				return nil
			}
			c := res.Candidate
			fmt.Fprintf(a.out, "address  %s\nscore    %d\nattempts %d\nrate     %.0f/s\n", c.Address(), c.Score, res.Attempts, res.Rate())
			if out != "" {
				if err := solana.WriteKeypairFile(out, c.Keypair, force); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "wrote    %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().Uint8VarP(&difficulty, "difficulty", "d", 0, "Required leading 'A' count")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the keypair to this file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite --out if it exists")
	_ = cmd.MarkFlagRequired("difficulty")
	return cmd
}
