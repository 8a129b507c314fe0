package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abdullah1738/pow-faucet/protocol"
)

// faucetFlags are the (difficulty, reward) pair naming a faucet.
type faucetFlags struct {
	difficulty uint8
	reward     string
}

func (f *faucetFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint8VarP(&f.difficulty, "difficulty", "d", 0, "Faucet difficulty")
	cmd.Flags().StringVar(&f.reward, "reward", "", "Faucet reward in SOL")
	_ = cmd.MarkFlagRequired("difficulty")
	_ = cmd.MarkFlagRequired("reward")
}

func (f *faucetFlags) parse() (uint8, protocol.Lamports, error) {
	r, err := protocol.ParseSOL(f.reward)
	if err != nil {
		return 0, 0, fmt.Errorf("--reward: %w", err)
	}
	if r == 0 {
		return 0, 0, errors.New("--reward must be positive")
	}
	return f.difficulty, r, nil
}

func (a *app) createCmd() *cobra.Command {
	var ff faucetFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a new (difficulty, reward) faucet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			difficulty, reward, err := ff.parse()
			if err != nil {
				return err
			}
			payer, err := a.payer()
			if err != nil {
				return err
			}
			tx, spec, source, err := a.deriver().BuildCreate(payer.PublicKey, difficulty, reward)
			if err != nil {
				return err
			}
			sub, err := a.submitter(a.rpc(), payer)
			if err != nil {
				return err
			}
			sig, err := sub.Submit(cmd.Context(), tx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "spec   %s\nsource %s\ntx     %s\n", spec, source, sig)
			fmt.Fprintf(a.out, "fund it with: pow-faucet fund -d %d --reward %s --lamports <n>\n", difficulty, reward)
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func (a *app) fundCmd() *cobra.Command {
	var (
		ff       faucetFlags
		lamports uint64
	)
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Transfer lamports into a faucet's source account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			difficulty, reward, err := ff.parse()
			if err != nil {
				return err
			}
			payer, err := a.payer()
			if err != nil {
				return err
			}
			tx, source, err := a.deriver().BuildFund(payer.PublicKey, difficulty, reward, protocol.Lamports(lamports))
			if err != nil {
				return err
			}
			sub, err := a.submitter(a.rpc(), payer)
			if err != nil {
				return err
			}
			sig, err := sub.Submit(cmd.Context(), tx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "funded %s with %s SOL\ntx %s\n", source, protocol.Lamports(lamports), sig)
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().Uint64Var(&lamports, "lamports", 0, "Amount to transfer")
	_ = cmd.MarkFlagRequired("lamports")
	return cmd
}
