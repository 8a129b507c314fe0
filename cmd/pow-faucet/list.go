package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Abdullah1738/pow-faucet/offchain/faucet"
)

func (a *app) listCmd() *cobra.Command {
	var asJSON, fundedOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List faucets, easiest and most rewarding first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			faucets, err := a.catalog(a.rpc()).List(cmd.Context())
			if err != nil {
				return err
			}
			if fundedOnly {
				faucets = faucet.Funded(faucets)
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(faucet.Summarize(faucets))
			}
			return a.printFaucets(faucets)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON with total and funded counts")
	cmd.Flags().BoolVar(&fundedOnly, "funded", false, "Only show faucets that can pay out")
	return cmd
}

func (a *app) printFaucets(faucets []faucet.Faucet) error {
	if len(faucets) == 0 {
		_, err := fmt.Fprintln(a.out, "no faucets found")
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DIFFICULTY\tREWARD (SOL)\tBALANCE (SOL)\tFUNDED\tSPEC\tCOMMAND")
	funded := 0
	for _, f := range faucets {
		if f.Funded {
			funded++
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\n",
			f.Difficulty(), f.Reward(), f.BalanceLamports, f.Funded, f.Spec(), f.MineCommand())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(a.out, "\n%d faucets, %d funded\n", len(faucets), funded)
	return err
}
