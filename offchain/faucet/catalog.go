package faucet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/offchain/solanarpc"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

const (
	// BalanceChunkSize is the most addresses a single balance query may carry.
	BalanceChunkSize = solanarpc.MaxMultipleAccounts

	defaultChunkConcurrency = 4
)

// Ledger is the read side of the chain the catalog needs.
type Ledger interface {
	ProgramAccountsByDataSize(ctx context.Context, programID solana.Pubkey, dataSize uint64) ([]solanarpc.ProgramAccount, error)
	// MultipleAccountsLamports returns index-aligned balances, 0 for missing accounts.
	MultipleAccountsLamports(ctx context.Context, pubkeys []solana.Pubkey) ([]uint64, error)
}

type CatalogOptions struct {
	// ChunkConcurrency caps concurrent balance queries. Defaults to 4.
	ChunkConcurrency int
	Log              *zap.Logger
}

type Catalog struct {
	ledger      Ledger
	deriver     Deriver
	concurrency int
	log         *zap.Logger
}

func NewCatalog(ledger Ledger, programID solana.Pubkey, opts CatalogOptions) *Catalog {
	concurrency := opts.ChunkConcurrency
	if concurrency <= 0 {
		concurrency = defaultChunkConcurrency
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{
		ledger:      ledger,
		deriver:     NewDeriver(programID),
		concurrency: concurrency,
		log:         log,
	}
}

// List returns every faucet spec owned by the program, easiest and most
// rewarding first. Accounts that do not decode as specs are skipped; any
// ledger failure fails the whole listing.
func (c *Catalog) List(ctx context.Context) ([]Faucet, error) {
	accounts, err := c.ledger.ProgramAccountsByDataSize(ctx, c.deriver.ProgramID(), protocol.ConfigRecordLen)
	if err != nil {
		return nil, stageErr(StageQuery, fmt.Errorf("list spec accounts: %w", err))
	}

	faucets := make([]Faucet, 0, len(accounts))
	sources := make([]solana.Pubkey, 0, len(accounts))
	for _, acct := range accounts {
		if acct.Err != nil {
			c.log.Warn("skipping malformed account", zap.Error(acct.Err))
			continue
		}
		rec, err := protocol.DecodeConfigRecord(protocol.SolanaPubkey(acct.Pubkey), acct.Data)
		if err != nil {
			c.log.Debug("skipping account", zap.Stringer("account", acct.Pubkey), zap.Int("len", len(acct.Data)), zap.Error(err))
			continue
		}
		source, _, err := c.deriver.SourceAddress(acct.Pubkey)
		if err != nil {
			c.log.Warn("skipping spec without source address", zap.Stringer("spec", acct.Pubkey), zap.Error(err))
			continue
		}
		faucets = append(faucets, Faucet{Record: rec, Source: source})
		sources = append(sources, source)
	}

	balances, err := c.balances(ctx, sources)
	if err != nil {
		return nil, stageErr(StageQuery, err)
	}
	for i := range faucets {
		faucets[i].BalanceLamports = protocol.Lamports(balances[i])
		faucets[i].Funded = isFunded(faucets[i].BalanceLamports, faucets[i].Record.RewardLamports)
	}

	SortFaucets(faucets)
	c.log.Debug("listed faucets", zap.Int("accounts", len(accounts)), zap.Int("faucets", len(faucets)))
	return faucets, nil
}

// balances fetches lamports for keys in chunks of BalanceChunkSize. Chunks run
// concurrently and write into disjoint ranges of the result.
func (c *Catalog) balances(ctx context.Context, keys []solana.Pubkey) ([]uint64, error) {
	out := make([]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(keys); start += BalanceChunkSize {
		end := min(start+BalanceChunkSize, len(keys))
		g.Go(func() error {
			got, err := c.ledger.MultipleAccountsLamports(gctx, keys[start:end])
			if err != nil {
				return fmt.Errorf("fetch balances [%d:%d]: %w", start, end, err)
			}
			if len(got) != end-start {
				return fmt.Errorf("fetch balances [%d:%d]: got %d results", start, end, len(got))
			}
			copy(out[start:end], got)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SortFaucets orders by difficulty ascending, then reward descending, then spec
// address bytes ascending.
func SortFaucets(faucets []Faucet) {
	sort.SliceStable(faucets, func(i, j int) bool {
		a, b := faucets[i].Record, faucets[j].Record
		if a.Difficulty != b.Difficulty {
			return a.Difficulty < b.Difficulty
		}
		if a.RewardLamports != b.RewardLamports {
			return a.RewardLamports > b.RewardLamports
		}
		return bytes.Compare(a.Address[:], b.Address[:]) < 0
	})
}

var errNilLedger = errors.New("nil ledger")

// Get looks up a single faucet by (difficulty, reward) through the spec PDA.
func (c *Catalog) Get(ctx context.Context, difficulty uint8, reward protocol.Lamports) (Faucet, error) {
	if c.ledger == nil {
		return Faucet{}, stageErr(StageQuery, errNilLedger)
	}
	spec, _, err := c.deriver.SpecAddress(difficulty, reward)
	if err != nil {
		return Faucet{}, stageErr(StageQuery, err)
	}
	all, err := c.List(ctx)
	if err != nil {
		return Faucet{}, err
	}
	for _, f := range all {
		if f.Spec() == spec {
			return f, nil
		}
	}
	return Faucet{}, stageErr(StageQuery, fmt.Errorf("%w: spec %s (difficulty=%d reward=%s SOL)", ErrNoFaucet, spec, difficulty, reward))
}
