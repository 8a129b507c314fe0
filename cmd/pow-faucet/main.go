package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Abdullah1738/pow-faucet/internal/config"
	"github.com/Abdullah1738/pow-faucet/internal/logger"
	"github.com/Abdullah1738/pow-faucet/offchain/faucet"
	"github.com/Abdullah1738/pow-faucet/offchain/grinder"
	"github.com/Abdullah1738/pow-faucet/offchain/helius"
	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/offchain/solanafees"
	"github.com/Abdullah1738/pow-faucet/offchain/solanarpc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if faucet.StageOf(err) != "" {
			fmt.Fprintln(os.Stderr, hint(err))
		}
		os.Exit(1)
	}
}

// hint suggests the next step for the on-chain rejections a miner can act on.
func hint(err error) string {
	switch {
	case errors.Is(err, faucet.ErrAlreadyClaimed):
		return "this key already claimed at that difficulty; mine again for a fresh key or pick another faucet"
	case errors.Is(err, faucet.ErrFaucetEmpty):
		return "the faucet is not funded enough; run `pow-faucet list --funded` to pick another"
	case errors.Is(err, faucet.ErrInsufficientFeeBalance):
		return "the fee payer needs SOL for fees and the receipt account rent; check it with `pow-faucet balance`"
	case errors.Is(err, faucet.ErrNoFaucet):
		return "run `pow-faucet list` to see available faucets, or `pow-faucet airdrop` on devnet"
	case errors.Is(err, faucet.ErrConfirmTimeout):
		return "the transaction may still land; check the signature before retrying"
	}
	return fmt.Sprintf("failed during %s", faucet.StageOf(err))
}

// app carries the resolved configuration shared by every command.
type app struct {
	v   *viper.Viper
	out io.Writer

	cfg      *config.Config
	endpoint config.Endpoint
	log      *zap.Logger
	closeLog func()
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: config.NewViper(), out: out}
	root := &cobra.Command{
		Use:   "pow-faucet",
		Short: "Earn devnet SOL from the proof-of-work faucet",
		Long: `pow-faucet lists the proof-of-work faucets published on chain, grinds
ed25519 keys whose base58 address starts with enough 'A' characters, and
claims the faucet reward with them.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
	}

	pf := root.PersistentFlags()
	pf.String(config.KeyConfig, "", "Config file (yaml, json or toml)")
	pf.String(config.KeyRPCURL, "", "Solana RPC URL (default: deployment, SOLANA_RPC_URL, Helius, then public devnet)")
	pf.String(config.KeyProgramID, "", "Faucet program id (default: the published faucet program)")
	pf.StringP(config.KeyKeypair, "k", solana.DefaultKeypairPath(), "Fee payer keypair file")
	pf.IntP(config.KeyWorkers, "w", 0, "Grinder worker goroutines (default: number of CPUs)")
	pf.Uint64(config.KeyMaxAttempts, grinder.DefaultMaxAttempts, "Attempt budget per search")
	pf.Duration(config.KeyLogInterval, 0, "Grinder progress log interval, 0 disables (default 5s)")
	pf.StringP(config.KeyLogFile, "l", "", "Append logs to this file instead of stderr")
	pf.String(config.KeyLogFormat, logger.FormatConsole, "Log format: console or json")
	pf.BoolP(config.KeyVerbose, "v", false, "Verbose output")
	pf.String(config.KeyDeployments, "", "Deployments registry JSON file")
	pf.String(config.KeyDeployment, "", "Deployment name in the registry")
	pf.Uint64(config.KeyPriorityFee, 0, "Compute unit price in micro-lamports")
	pf.String(config.KeyPriorityLevel, "", "Helius priority level used for fee estimates (Min..UnsafeMax)")
	pf.Uint32(config.KeyComputeUnitLimit, 0, "Compute unit limit for submitted transactions")
	pf.Duration(config.KeyConfirmTimeout, faucet.DefaultConfirmTimeout, "How long to wait for confirmation")
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.listCmd(),
		a.mineCmd(),
		a.grindCmd(),
		a.createCmd(),
		a.fundCmd(),
		a.pdaCmd(),
		a.keygenCmd(),
		a.balanceCmd(),
		a.airdropCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	log, closeLog, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return err
	}
	ep, err := cfg.Resolve()
	if err != nil {
		closeLog()
		return err
	}
	a.cfg, a.endpoint, a.log, a.closeLog = cfg, ep, log, closeLog
	a.log.Debug("configured",
		zap.String("command", cmd.Name()),
		zap.String("rpc", ep.RPCURL),
		zap.Stringer("program", ep.ProgramID),
		zap.String("deployment", ep.Deployment),
	)
	return nil
}

func (a *app) teardown() {
	if a.closeLog != nil {
		a.closeLog()
	}
}

func (a *app) rpc() *solanarpc.Client {
	return solanarpc.New(a.endpoint.RPCURL, nil)
}

func (a *app) catalog(rpc *solanarpc.Client) *faucet.Catalog {
	return faucet.NewCatalog(rpc, a.endpoint.ProgramID, faucet.CatalogOptions{Log: a.log.Named("catalog")})
}

func (a *app) deriver() faucet.Deriver {
	return faucet.NewDeriver(a.endpoint.ProgramID)
}

func (a *app) grinder() *grinder.Grinder {
	return grinder.New(grinder.Options{
		Workers:          a.cfg.Workers,
		ProgressInterval: a.cfg.LogInterval,
		Log:              a.log.Named("grinder"),
	})
}

func (a *app) payer() (solana.Keypair, error) {
	kp, err := solana.LoadKeypair(a.cfg.Keypair)
	if err != nil {
		return solana.Keypair{}, fmt.Errorf("fee payer: %w (create one with `pow-faucet keygen`)", err)
	}
	return kp, nil
}

// submitter wires priority fees: a Helius endpoint, when configured, prices
// compute units; otherwise the fixed priority-fee applies.
func (a *app) submitter(rpc *solanarpc.Client, payer solana.Keypair) (*faucet.Submitter, error) {
	opts := faucet.SubmitterOptions{
		ConfirmTimeout:   a.cfg.ConfirmTimeout,
		ComputeUnitLimit: a.cfg.ComputeUnitLimit,
		PriorityFee:      a.cfg.PriorityFee,
		Log:              a.log.Named("submit"),
	}

	heliusURL, err := a.cfg.HeliusURL()
	if err != nil {
		return nil, err
	}
	if heliusURL == "" && helius.IsHeliusURL(a.endpoint.RPCURL) {
		heliusURL = a.endpoint.RPCURL
	}
	if heliusURL != "" && a.cfg.PriorityFee == 0 {
		level, _ := helius.ParsePriorityLevel(a.cfg.PriorityLevel)
		opts.Fees = &solanafees.HeliusEstimator{
			Client:           helius.NewClient(heliusURL, nil),
			Level:            level,
			ComputeUnitLimit: a.cfg.ComputeUnitLimit,
			Log:              a.log.Named("fees"),
		}
	}
	return faucet.NewSubmitter(rpc, payer, opts), nil
}
