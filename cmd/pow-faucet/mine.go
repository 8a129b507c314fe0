package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Abdullah1738/pow-faucet/offchain/faucet"
	"github.com/Abdullah1738/pow-faucet/offchain/grinder"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

func (a *app) mineCmd() *cobra.Command {
	var (
		difficulty     uint8
		reward         string
		targetLamports uint64
	)
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Grind a key and claim faucet rewards with it",
		Long: `Without -d, mine picks the easiest funded faucet, grinds a key for it and
claims every funded faucet the key qualifies for (one per difficulty).
With -d (and optionally --reward) it targets a single faucet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rpc := a.rpc()
			catalog := a.catalog(rpc)

			var opts faucet.RunOptions
			opts.TargetLamports = protocol.Lamports(targetLamports)
			switch {
			case cmd.Flags().Changed("difficulty"):
				sel, err := a.selection(cmd, catalog, difficulty, reward)
				if err != nil {
					return err
				}
				opts.Select = sel
			case reward != "":
				return errors.New("--reward requires -d")
			}

			payer, err := a.payer()
			if err != nil {
				return err
			}
			sub, err := a.submitter(rpc, payer)
			if err != nil {
				return err
			}
			if opts.Select != nil {
				a.warnBudget(opts.Select.Difficulty)
			}
			if lamports, err := rpc.BalanceLamports(ctx, payer.PublicKey); err == nil {
				a.log.Info("fee payer", zap.Stringer("address", payer.PublicKey), zap.Stringer("balance", protocol.Lamports(lamports)))
			} else {
				a.log.Debug("fee payer balance unavailable", zap.Error(err))
			}

			m := faucet.NewMiner(catalog, a.endpoint.ProgramID, a.grinder(), sub, faucet.MinerOptions{
				MaxAttempts: a.cfg.MaxAttempts,
				Accounts:    rpc,
				Log:         a.log.Named("miner"),
			})
			sum, err := m.Run(ctx, opts)
			a.printRun(sum)
			return err
		},
	}
	cmd.Flags().Uint8VarP(&difficulty, "difficulty", "d", 0, "Difficulty of the faucet to claim")
	cmd.Flags().StringVar(&reward, "reward", "", "Reward in SOL of the faucet to claim (default: the largest funded at -d)")
	cmd.Flags().Uint64Var(&targetLamports, "target-lamports", 0, "Keep mining until this many lamports are earned")
	return cmd
}

// selection pins a faucet; without --reward the largest funded reward at the
// difficulty is chosen.
func (a *app) selection(cmd *cobra.Command, catalog *faucet.Catalog, difficulty uint8, reward string) (*faucet.Selection, error) {
	if reward != "" {
		r, err := protocol.ParseSOL(reward)
		if err != nil {
			return nil, fmt.Errorf("--reward: %w", err)
		}
		return &faucet.Selection{Difficulty: difficulty, Reward: r}, nil
	}
	faucets, err := catalog.List(cmd.Context())
	if err != nil {
		return nil, err
	}
	for _, f := range faucet.Funded(faucets) {
		if f.Difficulty() == difficulty {
			return &faucet.Selection{Difficulty: difficulty, Reward: f.Reward()}, nil
		}
	}
	return nil, fmt.Errorf("%w: no funded faucet at difficulty %d", faucet.ErrNoFaucet, difficulty)
}

func (a *app) warnBudget(difficulty uint8) {
	budget := a.cfg.MaxAttempts
	if budget == 0 {
		budget = grinder.DefaultMaxAttempts
	}
	if expected := grinder.ExpectedAttempts(difficulty); expected > float64(budget) {
		a.log.Warn("attempt budget is below the expected attempts for this difficulty",
			zap.Uint8("difficulty", difficulty),
			zap.Uint64("budget", budget),
			zap.Float64("expected", expected),
		)
	}
}

func (a *app) printRun(sum faucet.RunSummary) {
	for _, c := range sum.Claims {
		fmt.Fprintf(a.out, "claimed %s SOL from difficulty %d faucet %s with %s\n  receipt %s\n  tx %s\n",
			c.Faucet.Reward(), c.Faucet.Difficulty(), c.Faucet.Spec(), c.Miner, c.Receipt, c.Signature)
	}
	if sum.Exhausted {
		fmt.Fprintf(a.out, "no qualifying key within the attempt budget; raise --max-attempts or pick an easier faucet\n")
	}
	fmt.Fprintf(a.out, "rounds=%d attempts=%d earned=%s SOL\n", sum.Rounds, sum.Attempts, sum.Earned)
}
