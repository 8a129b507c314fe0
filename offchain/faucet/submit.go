package faucet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/offchain/solanarpc"
)

const (
	DefaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// Sender is the write side of the chain: blockhash, broadcast and status.
type Sender interface {
	LatestBlockhash(ctx context.Context) ([32]byte, error)
	SendTransaction(ctx context.Context, tx []byte, skipPreflight bool) (string, error)
	SignatureStatuses(ctx context.Context, signatures []string) ([]*solanarpc.SignatureStatus, error)
}

// FeeEstimator prices a compute unit, in micro-lamports, for a transaction
// that writes the given accounts.
type FeeEstimator interface {
	ComputeUnitPrice(ctx context.Context, writable []solana.Pubkey) (uint64, error)
}

type SubmitterOptions struct {
	// Commitment to wait for. Defaults to confirmed.
	Commitment     solanarpc.Commitment
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	SkipPreflight  bool

	// ComputeUnitLimit and PriorityFee (micro-lamports per CU) prepend compute
	// budget instructions when non-zero. Fees, when set, overrides PriorityFee.
	ComputeUnitLimit uint32
	PriorityFee      uint64
	Fees             FeeEstimator

	Log *zap.Logger
}

// Submitter signs transactions with the payer plus the skeleton's own signers,
// broadcasts them and waits for confirmation.
type Submitter struct {
	sender Sender
	payer  solana.Keypair
	opts   SubmitterOptions
	log    *zap.Logger
}

func NewSubmitter(sender Sender, payer solana.Keypair, opts SubmitterOptions) *Submitter {
	if opts.Commitment == "" {
		opts.Commitment = solanarpc.CommitmentConfirmed
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{sender: sender, payer: payer, opts: opts, log: log}
}

func (s *Submitter) Payer() solana.Pubkey { return s.payer.PublicKey }

// Submit signs, sends and confirms tx, returning its signature. On-chain
// rejections are mapped to ErrAlreadyClaimed, ErrFaucetEmpty or
// ErrInsufficientFeeBalance where the failure text allows it. Every error is
// tagged with StageSubmit.
func (s *Submitter) Submit(ctx context.Context, tx Tx) (string, error) {
	sig, err := s.submit(ctx, tx)
	return sig, stageErr(StageSubmit, err)
}

func (s *Submitter) submit(ctx context.Context, tx Tx) (string, error) {
	if tx.FeePayer != s.payer.PublicKey {
		return "", fmt.Errorf("fee payer %s does not match signer %s", tx.FeePayer, s.payer.PublicKey)
	}
	if len(tx.Instructions) == 0 {
		return "", errors.New("no instructions")
	}

	ixs, err := s.withComputeBudget(ctx, tx.Instructions)
	if err != nil {
		return "", err
	}

	signers := map[solana.Pubkey]ed25519.PrivateKey{s.payer.PublicKey: s.payer.PrivateKey}
	for _, kp := range tx.Signers {
		signers[kp.PublicKey] = kp.PrivateKey
	}

	blockhash, err := s.sender.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}
	raw, err := solana.BuildAndSignLegacyTransaction(blockhash, tx.FeePayer, signers, ixs)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	// Instruction errors index the compiled list; the skeleton starts after
	// the compute budget prefix.
	first := len(ixs) - len(tx.Instructions)

	sig, err := s.sender.SendTransaction(ctx, raw, s.opts.SkipPreflight)
	if err != nil {
		return "", classifySendError(err, first)
	}
	s.log.Debug("transaction sent", zap.String("signature", sig))

	if err := s.confirm(ctx, sig, first); err != nil {
		return sig, err
	}
	return sig, nil
}

func (s *Submitter) withComputeBudget(ctx context.Context, ixs []solana.Instruction) ([]solana.Instruction, error) {
	price := s.opts.PriorityFee
	if s.opts.Fees != nil {
		est, err := s.opts.Fees.ComputeUnitPrice(ctx, writableAccounts(ixs))
		if err != nil {
			// Fall back to the configured price; fee estimation is advisory.
			s.log.Warn("priority fee estimate failed", zap.Error(err))
		} else {
			price = est
		}
	}

	var out []solana.Instruction
	if s.opts.ComputeUnitLimit > 0 {
		out = append(out, solana.ComputeBudgetSetComputeUnitLimit(s.opts.ComputeUnitLimit))
	}
	if price > 0 {
		out = append(out, solana.ComputeBudgetSetComputeUnitPrice(price))
	}
	if len(out) == 0 {
		return ixs, nil
	}
	return append(out, ixs...), nil
}

func writableAccounts(ixs []solana.Instruction) []solana.Pubkey {
	seen := make(map[solana.Pubkey]bool)
	var out []solana.Pubkey
	for _, ix := range ixs {
		for _, a := range ix.Accounts {
			if a.IsWritable && !seen[a.Pubkey] {
				seen[a.Pubkey] = true
				out = append(out, a.Pubkey)
			}
		}
	}
	return out
}

func (s *Submitter) confirm(ctx context.Context, sig string, first int) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConfirmTimeout)
	defer cancel()

	t := time.NewTicker(s.opts.PollInterval)
	defer t.Stop()
	for {
		statuses, err := s.sender.SignatureStatuses(ctx, []string{sig})
		switch {
		case err != nil && ctx.Err() == nil:
			s.log.Debug("signature status poll failed", zap.String("signature", sig), zap.Error(err))
		case err == nil && len(statuses) == 1 && statuses[0] != nil:
			st := statuses[0]
			if st.Failed() {
				return classifyStatusError(sig, st.Err, first)
			}
			if st.Reached(s.opts.Commitment) {
				s.log.Debug("transaction confirmed", zap.String("signature", sig), zap.Uint64("slot", st.Slot))
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrConfirmTimeout, sig, s.opts.ConfirmTimeout)
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}

var failureMarkers = []struct {
	substr string
	err    error
}{
	{"already in use", ErrAlreadyClaimed},
	{"insufficient funds for fee", ErrInsufficientFeeBalance},
	{"no record of a prior credit", ErrInsufficientFeeBalance},
	{"insufficient lamports", ErrFaucetEmpty},
}

// System program error codes surfaced as {"Custom":n} by the instruction that
// invoked it: AccountAlreadyInUse and ResultWithNegativeLamports.
var systemErrorCodes = map[uint32]error{
	0: ErrAlreadyClaimed,
	1: ErrFaucetEmpty,
}

// classifyText maps simulation or status text to a rejection sentinel.
// ErrFaucetEmpty is provisional: the system program reports a payer that
// cannot fund the receipt the same way, so callers holding balances refine it.
func classifyText(text string) error {
	text = strings.ToLower(text)
	for _, m := range failureMarkers {
		if strings.Contains(text, m.substr) {
			return m.err
		}
	}
	return nil
}

// classifyTxErr maps an InstructionError raised by one of the skeleton's
// instructions (index >= first) to a rejection sentinel.
func classifyTxErr(raw json.RawMessage, first int) error {
	if len(raw) == 0 {
		return nil
	}
	var v struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || len(v.InstructionError) != 2 {
		return nil
	}
	var index int
	if err := json.Unmarshal(v.InstructionError[0], &index); err != nil || index < first {
		return nil
	}
	var code struct {
		Custom *uint32 `json:"Custom"`
	}
	if err := json.Unmarshal(v.InstructionError[1], &code); err != nil || code.Custom == nil {
		return nil
	}
	return systemErrorCodes[*code.Custom]
}

func classifySendError(err error, first int) error {
	var rpcErr *solanarpc.RPCError
	if !errors.As(err, &rpcErr) {
		return fmt.Errorf("send transaction: %w", err)
	}
	text := rpcErr.Message + "\n" + strings.Join(rpcErr.Logs(), "\n")
	sentinel := classifyText(text)
	if sentinel == nil {
		sentinel = classifyTxErr(rpcErr.TransactionErr(), first)
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return fmt.Errorf("send transaction: %w", err)
}

func classifyStatusError(sig string, raw json.RawMessage, first int) error {
	sentinel := classifyText(string(raw))
	if sentinel == nil {
		sentinel = classifyTxErr(raw, first)
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %w: %s %s", sentinel, ErrTransactionFailed, sig, raw)
	}
	return fmt.Errorf("%w: %s %s", ErrTransactionFailed, sig, raw)
}
