package faucet

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Abdullah1738/pow-faucet/offchain/grinder"
	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

// Lister returns the current faucet catalog. *Catalog implements it.
type Lister interface {
	List(ctx context.Context) ([]Faucet, error)
}

// Searcher finds a keypair meeting a difficulty. *grinder.Grinder implements it.
type Searcher interface {
	Grind(ctx context.Context, minDifficulty uint8, maxAttempts uint64) (grinder.Result, error)
}

// TxSubmitter sends a skeleton on behalf of Payer. *Submitter implements it.
type TxSubmitter interface {
	Payer() solana.Pubkey
	Submit(ctx context.Context, tx Tx) (string, error)
}

// AccountReader answers the point lookups that avoid doomed claims and explain
// failed ones. *solanarpc.Client implements it.
type AccountReader interface {
	AccountExists(ctx context.Context, pubkey solana.Pubkey) (bool, error)
	BalanceLamports(ctx context.Context, pubkey solana.Pubkey) (uint64, error)
}

type MinerOptions struct {
	// MaxAttempts bounds each search. 0 selects grinder.DefaultMaxAttempts.
	MaxAttempts uint64
	// Accounts, when set, skips claims whose receipt already exists and tells
	// an empty faucet apart from a payer that cannot fund the receipt.
	Accounts AccountReader
	Log      *zap.Logger
}

// Miner runs grind, build and submit in sequence.
type Miner struct {
	catalog     Lister
	deriver     Deriver
	searcher    Searcher
	submitter   TxSubmitter
	accounts    AccountReader
	maxAttempts uint64
	log         *zap.Logger
}

func NewMiner(catalog Lister, programID solana.Pubkey, searcher Searcher, submitter TxSubmitter, opts MinerOptions) *Miner {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Miner{
		catalog:     catalog,
		deriver:     NewDeriver(programID),
		searcher:    searcher,
		submitter:   submitter,
		accounts:    opts.Accounts,
		maxAttempts: opts.MaxAttempts,
		log:         log,
	}
}

// Claim is one confirmed payout.
type Claim struct {
	Faucet    Faucet
	Miner     solana.Pubkey
	Receipt   solana.Pubkey
	Signature string
}

// MineResult reports one search and the claims made with its key. When
// Search.Found() is false the budget ran out and Claims is empty.
type MineResult struct {
	Search grinder.Result
	Claims []Claim
}

// Mine grinds a key for f's difficulty and claims f with it. A failed
// submission ends the attempt; the key is not reused.
func (m *Miner) Mine(ctx context.Context, f Faucet) (MineResult, error) {
	res, err := m.grind(ctx, f.Difficulty())
	if err != nil || !res.Search.Found() {
		return res, err
	}
	claim, err := m.claim(ctx, res.Search.Candidate, f)
	if err != nil {
		return res, err
	}
	res.Claims = append(res.Claims, claim)
	return res, nil
}

func (m *Miner) grind(ctx context.Context, difficulty uint8) (MineResult, error) {
	m.log.Info("grinding",
		zap.Uint8("difficulty", difficulty),
		zap.Float64("expectedAttempts", grinder.ExpectedAttempts(difficulty)),
	)
	search, err := m.searcher.Grind(ctx, difficulty, m.maxAttempts)
	if err != nil {
		return MineResult{Search: search}, stageErr(StageGrind, err)
	}
	if !search.Found() {
		m.log.Warn("attempt budget exhausted",
			zap.Uint8("difficulty", difficulty),
			zap.Uint64("attempts", search.Attempts),
		)
		return MineResult{Search: search}, nil
	}
	m.log.Info("found key",
		zap.String("address", search.Candidate.Address()),
		zap.Int("score", search.Candidate.Score),
		zap.Uint64("attempts", search.Attempts),
		zap.Duration("elapsed", search.Duration),
	)
	return MineResult{Search: search}, nil
}

func (m *Miner) claim(ctx context.Context, c *grinder.Candidate, f Faucet) (Claim, error) {
	tx, err := m.deriver.BuildClaim(m.submitter.Payer(), c, f.Record)
	if err != nil {
		return Claim{}, err
	}
	if m.accounts != nil {
		exists, err := m.accounts.AccountExists(ctx, tx.Receipt)
		switch {
		case err != nil:
			m.log.Debug("receipt lookup failed", zap.Stringer("receipt", tx.Receipt), zap.Error(err))
		case exists:
			return Claim{}, stageErr(StageQuery, fmt.Errorf("%w: receipt %s", ErrAlreadyClaimed, tx.Receipt))
		}
	}
	sig, err := m.submitter.Submit(ctx, tx.Tx)
	if err != nil {
		return Claim{}, m.explain(ctx, tx, f, err)
	}
	m.log.Info("claimed",
		zap.Stringer("spec", f.Spec()),
		zap.Uint8("difficulty", f.Difficulty()),
		zap.Stringer("reward", f.Reward()),
		zap.String("signature", sig),
	)
	return Claim{Faucet: f, Miner: c.PublicKey, Receipt: tx.Receipt, Signature: sig}, nil
}

// explain re-reads balances when a claim fails with ErrFaucetEmpty. The system
// program reports a payer that cannot fund the receipt account with the same
// text, so a source still covering the reward points at the payer instead.
func (m *Miner) explain(ctx context.Context, tx ClaimTx, f Faucet, err error) error {
	if m.accounts == nil || !errors.Is(err, ErrFaucetEmpty) {
		return stageErr(StageSubmit, err)
	}
	source, berr := m.accounts.BalanceLamports(ctx, tx.Source)
	if berr != nil {
		m.log.Debug("source balance lookup failed", zap.Stringer("source", tx.Source), zap.Error(berr))
		return stageErr(StageSubmit, err)
	}
	if protocol.Lamports(source) < f.Reward() {
		return stageErr(StageSubmit, err)
	}
	detail := fmt.Sprintf("source %s holds %d lamports for a %d lamport reward", tx.Source, source, uint64(f.Reward()))
	if payer, perr := m.accounts.BalanceLamports(ctx, tx.FeePayer); perr == nil {
		detail += fmt.Sprintf(", payer %s holds %d", tx.FeePayer, payer)
	}
	return stageErr(StageSubmit, fmt.Errorf("%w: %s: %v", ErrInsufficientFeeBalance, detail, err))
}

// ClaimAll spends c on every funded faucet it qualifies for. A receipt is
// keyed by (miner, difficulty), so at most one faucet per difficulty is
// claimed: the first in catalog order, which is the highest reward.
// Already-claimed and empty faucets are skipped; any other failure stops,
// including a payer that cannot cover fees.
func (m *Miner) ClaimAll(ctx context.Context, c *grinder.Candidate, faucets []Faucet) ([]Claim, error) {
	var claims []Claim
	used := make(map[uint8]bool)
	for _, f := range faucets {
		if !f.Funded || int(f.Difficulty()) > c.Score || used[f.Difficulty()] {
			continue
		}
		claim, err := m.claim(ctx, c, f)
		if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrFaucetEmpty) {
			m.log.Warn("skipping faucet", zap.Stringer("spec", f.Spec()), zap.Error(err))
			used[f.Difficulty()] = true
			continue
		}
		if err != nil {
			return claims, err
		}
		used[f.Difficulty()] = true
		claims = append(claims, claim)
	}
	return claims, nil
}

// Selection pins mining to one (difficulty, reward) faucet.
type Selection struct {
	Difficulty uint8
	Reward     protocol.Lamports
}

type RunOptions struct {
	// Select pins a faucet; nil picks the easiest funded faucet each round and
	// claims every funded tier the mined key reaches.
	Select *Selection
	// TargetLamports keeps mining until this much has been earned. 0 runs one round.
	TargetLamports protocol.Lamports
}

type RunSummary struct {
	Rounds    int
	Attempts  uint64
	Earned    protocol.Lamports
	Claims    []Claim
	Exhausted bool
}

// Run mines rounds until the target is met, a search exhausts its budget, or
// an error occurs. The summary is valid even when an error is returned.
func (m *Miner) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	var sum RunSummary
	for {
		before := sum.Earned
		claims, err := m.round(ctx, opts, &sum)
		if err != nil || sum.Exhausted {
			return sum, err
		}
		// Zero-reward faucets count as funded, so a round can claim and earn nothing.
		if len(claims) == 0 {
			return sum, stageErr(StageSubmit, fmt.Errorf("%w: round %d claimed nothing", ErrNoFaucet, sum.Rounds))
		}
		if sum.Earned >= opts.TargetLamports {
			return sum, nil
		}
		if sum.Earned == before {
			return sum, stageErr(StageQuery, fmt.Errorf("%w: round %d earned nothing toward %s SOL",
				ErrNoFaucet, sum.Rounds, opts.TargetLamports))
		}
		m.log.Info("target not reached",
			zap.Stringer("earned", sum.Earned),
			zap.Stringer("target", opts.TargetLamports),
		)
	}
}

func (m *Miner) round(ctx context.Context, opts RunOptions, sum *RunSummary) ([]Claim, error) {
	sum.Rounds++
	faucets, err := m.catalog.List(ctx)
	if err != nil {
		return nil, stageErr(StageQuery, err)
	}

	var target Faucet
	if opts.Select != nil {
		target, err = Find(faucets, opts.Select.Difficulty, opts.Select.Reward)
		if err != nil {
			return nil, stageErr(StageQuery, err)
		}
		if !target.Funded {
			return nil, stageErr(StageQuery, fmt.Errorf("%w: %s holds %s SOL, reward %s SOL",
				ErrFaucetEmpty, target.Source, target.BalanceLamports, target.Reward()))
		}
	} else {
		funded := Funded(faucets)
		if len(funded) == 0 {
			return nil, stageErr(StageQuery, fmt.Errorf("%w: none funded of %d", ErrNoFaucet, len(faucets)))
		}
		target = funded[0]
	}

	res, err := m.grind(ctx, target.Difficulty())
	sum.Attempts += res.Search.Attempts
	if err != nil {
		return nil, err
	}
	if !res.Search.Found() {
		sum.Exhausted = true
		return nil, nil
	}

	var claims []Claim
	if opts.Select != nil {
		c, err := m.claim(ctx, res.Search.Candidate, target)
		if err != nil {
			return nil, err
		}
		claims = []Claim{c}
	} else {
		claims, err = m.ClaimAll(ctx, res.Search.Candidate, faucets)
	}

	for _, c := range claims {
		sum.Earned += c.Faucet.Reward()
	}
	sum.Claims = append(sum.Claims, claims...)
	return claims, err
}
