package faucet

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Abdullah1738/pow-faucet/offchain/grinder"
	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

func TestMinerRun_EndToEndDifficultyTwo(t *testing.T) {
	d := NewDeriver(testProgramID)
	spec, _, err := d.SpecAddress(2, 1_000_000)
	require.NoError(t, err)

	l := newFakeLedger()
	source := l.addSpec(t, spec, 2, 1_000_000, 5_000_000)
	l.addSpec(t, testAddr(1), 1, 2_000_000, 0)

	payer, err := solana.GenerateKeypair()
	require.NoError(t, err)
	sender := &fakeSender{blockhash: [32]byte{7}, status: confirmedStatus()}
	submitter := NewSubmitter(sender, payer, SubmitterOptions{PollInterval: time.Millisecond})
	m := NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID,
		grinder.New(grinder.Options{Workers: 2}), submitter, MinerOptions{MaxAttempts: 2_000_000})

	sum, err := m.Run(context.Background(), RunOptions{Select: &Selection{Difficulty: 2, Reward: 1_000_000}})
	require.NoError(t, err)
	require.False(t, sum.Exhausted)
	require.Equal(t, 1, sum.Rounds)
	require.Equal(t, protocol.Lamports(1_000_000), sum.Earned)
	require.Len(t, sum.Claims, 1)

	claim := sum.Claims[0]
	require.GreaterOrEqual(t, grinder.Score(claim.Miner), 2)
	require.Equal(t, "AA", claim.Miner.Base58()[:2])
	receipt, _, err := d.ReceiptAddress(claim.Miner, 2)
	require.NoError(t, err)
	require.Equal(t, receipt, claim.Receipt)

	sent := sender.sentTxs()
	require.Len(t, sent, 1)
	parsed, err := solana.ParseLegacyTransaction(sent[0])
	require.NoError(t, err)
	require.Len(t, parsed.Instructions, 1)
	ix := parsed.Instructions[0]
	require.Equal(t, testProgramID, ix.ProgramID)
	require.Equal(t, protocol.ClaimDiscriminator[:], ix.Data)
	require.Len(t, ix.Accounts, 6)
	want := []solana.Pubkey{payer.PublicKey, claim.Miner, receipt, spec, source, solana.SystemProgramID}
	for i, idx := range ix.Accounts {
		require.Equal(t, want[i], parsed.AccountKeys[idx])
	}
	require.Equal(t, claim.Signature, mustTxID(t, sent[0]))
}

func mustTxID(t *testing.T, tx []byte) string {
	t.Helper()
	id, err := solana.TransactionID(tx)
	require.NoError(t, err)
	return id
}

func TestMinerRun_AutoClaimsEveryReachableTier(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 0, 300, 1000) // claimed: best d=0
	l.addSpec(t, testAddr(2), 0, 100, 1000) // same difficulty, receipt already used
	l.addSpec(t, testAddr(3), 1, 50, 1000)  // claimed
	l.addSpec(t, testAddr(4), 1, 500, 10)   // unfunded
	l.addSpec(t, testAddr(5), 2, 900, 1000) // above score

	searcher := &stubSearcher{score: 1, attempts: 42}
	sub := &fakeSubmitter{payer: testAddr(99)}
	m := NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID, searcher, sub, MinerOptions{})

	sum, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Rounds)
	require.Equal(t, uint64(42), sum.Attempts)
	require.Equal(t, []uint8{0}, searcher.calls)

	var specs []solana.Pubkey
	for _, c := range sum.Claims {
		specs = append(specs, c.Faucet.Spec())
	}
	require.Equal(t, []solana.Pubkey{testAddr(1), testAddr(3)}, specs)
	require.Equal(t, protocol.Lamports(350), sum.Earned)
}

func TestMinerClaimAll_SkipsAlreadyClaimed(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 0, 10, 100)
	l.addSpec(t, testAddr(2), 1, 10, 100)
	faucets, err := NewCatalog(l, testProgramID, CatalogOptions{}).List(context.Background())
	require.NoError(t, err)

	sub := &fakeSubmitter{payer: testAddr(99), fail: map[solana.Pubkey]error{testAddr(1): ErrAlreadyClaimed}}
	m := NewMiner(nil, testProgramID, &stubSearcher{}, sub, MinerOptions{})

	claims, err := m.ClaimAll(context.Background(), testCandidate(t, 3), faucets)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, testAddr(2), claims[0].Faucet.Spec())
	require.Len(t, sub.submitted, 2)

	boom := errors.New("boom")
	sub = &fakeSubmitter{payer: testAddr(99), fail: map[solana.Pubkey]error{testAddr(1): boom}}
	m = NewMiner(nil, testProgramID, &stubSearcher{}, sub, MinerOptions{})
	claims, err = m.ClaimAll(context.Background(), testCandidate(t, 3), faucets)
	require.ErrorIs(t, err, boom)
	require.Empty(t, claims)
	require.Len(t, sub.submitted, 1)
}

func TestMinerRun_TargetLamports(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 0, 100, 1000)

	searcher := &stubSearcher{score: 0, attempts: 1}
	sub := &fakeSubmitter{payer: testAddr(99)}
	m := NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID, searcher, sub, MinerOptions{})

	sum, err := m.Run(context.Background(), RunOptions{TargetLamports: 250})
	require.NoError(t, err)
	require.Equal(t, 3, sum.Rounds)
	require.Equal(t, protocol.Lamports(300), sum.Earned)
	require.Len(t, sum.Claims, 3)
	require.NotEqual(t, sum.Claims[0].Miner, sum.Claims[1].Miner)
}

func TestMinerRun_ExhaustionIsNotAnError(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 9, 100, 1000)

	sub := &fakeSubmitter{payer: testAddr(99)}
	m := NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID,
		&stubSearcher{notFound: true, attempts: 10}, sub, MinerOptions{MaxAttempts: 10})

	sum, err := m.Run(context.Background(), RunOptions{TargetLamports: 1_000})
	require.NoError(t, err)
	require.True(t, sum.Exhausted)
	require.Equal(t, uint64(10), sum.Attempts)
	require.Empty(t, sum.Claims)
	require.Empty(t, sub.submitted)
}

func TestMinerRun_StageErrors(t *testing.T) {
	boom := errors.New("boom")

	l := newFakeLedger()
	l.listErr = boom
	m := NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID, &stubSearcher{}, &fakeSubmitter{}, MinerOptions{})
	_, err := m.Run(context.Background(), RunOptions{})
	require.ErrorIs(t, err, boom)
	require.Equal(t, StageQuery, StageOf(err))

	l = newFakeLedger()
	l.addSpec(t, testAddr(1), 1, 100, 1000)
	m = NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID, &stubSearcher{err: boom}, &fakeSubmitter{}, MinerOptions{})
	_, err = m.Run(context.Background(), RunOptions{})
	require.ErrorIs(t, err, boom)
	require.Equal(t, StageGrind, StageOf(err))

	sub := &fakeSubmitter{payer: testAddr(99), fail: map[solana.Pubkey]error{testAddr(1): ErrFaucetEmpty}}
	m = NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID, &stubSearcher{score: 1}, sub, MinerOptions{})
	_, err = m.Run(context.Background(), RunOptions{Select: &Selection{Difficulty: 1, Reward: 100}})
	require.ErrorIs(t, err, ErrFaucetEmpty)
	require.Equal(t, StageSubmit, StageOf(err))
}

func TestMinerRun_SelectionMustBeFunded(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 1, 100, 50)
	sub := &fakeSubmitter{payer: testAddr(99)}
	m := NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID, &stubSearcher{score: 1}, sub, MinerOptions{})

	_, err := m.Run(context.Background(), RunOptions{Select: &Selection{Difficulty: 1, Reward: 100}})
	require.ErrorIs(t, err, ErrFaucetEmpty)
	require.Equal(t, StageQuery, StageOf(err))

	_, err = m.Run(context.Background(), RunOptions{Select: &Selection{Difficulty: 1, Reward: 7}})
	require.ErrorIs(t, err, ErrNoFaucet)

	_, err = m.Run(context.Background(), RunOptions{})
	require.ErrorIs(t, err, ErrNoFaucet)
	require.Empty(t, sub.submitted)
}

func TestMinerMine_SingleFaucet(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 1, 100, 1000)
	faucets, err := NewCatalog(l, testProgramID, CatalogOptions{}).List(context.Background())
	require.NoError(t, err)

	sub := &fakeSubmitter{payer: testAddr(99)}
	m := NewMiner(nil, testProgramID, &stubSearcher{score: 1, attempts: 5}, sub, MinerOptions{})
	res, err := m.Mine(context.Background(), faucets[0])
	require.NoError(t, err)
	require.True(t, res.Search.Found())
	require.Len(t, res.Claims, 1)
	require.Equal(t, "sig-1", res.Claims[0].Signature)
}

func TestMinerRun_ZeroRewardClaimSucceeds(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 0, 0, 0)

	sub := &fakeSubmitter{payer: testAddr(99)}
	m := NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID,
		&stubSearcher{score: 1, attempts: 1}, sub, MinerOptions{})

	sum, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, sum.Claims, 1)
	require.Len(t, sub.submitted, 1)
	require.Equal(t, protocol.Lamports(0), sum.Earned)

	sub = &fakeSubmitter{payer: testAddr(99)}
	m = NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID,
		&stubSearcher{score: 1, attempts: 1}, sub, MinerOptions{})
	sum, err = m.Run(context.Background(), RunOptions{Select: &Selection{Difficulty: 0, Reward: 0}})
	require.NoError(t, err)
	require.Len(t, sum.Claims, 1)

	// A target cannot be reached through zero-reward faucets alone.
	m = NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID,
		&stubSearcher{score: 1, attempts: 1}, &fakeSubmitter{payer: testAddr(99)}, MinerOptions{})
	sum, err = m.Run(context.Background(), RunOptions{TargetLamports: 100})
	require.ErrorIs(t, err, ErrNoFaucet)
	require.Equal(t, 1, sum.Rounds)
	require.Len(t, sum.Claims, 1)
}

func TestMinerRun_NothingClaimedIsAnError(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 0, 100, 1000)

	sub := &fakeSubmitter{payer: testAddr(99), fail: map[solana.Pubkey]error{testAddr(1): ErrAlreadyClaimed}}
	m := NewMiner(NewCatalog(l, testProgramID, CatalogOptions{}), testProgramID,
		&stubSearcher{score: 0, attempts: 1}, sub, MinerOptions{})

	sum, err := m.Run(context.Background(), RunOptions{})
	require.ErrorIs(t, err, ErrNoFaucet)
	require.Empty(t, sum.Claims)
}

func TestMinerClaimAll_SkipsExistingReceiptWithoutSending(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 0, 10, 100)
	l.addSpec(t, testAddr(2), 1, 10, 100)
	faucets, err := NewCatalog(l, testProgramID, CatalogOptions{}).List(context.Background())
	require.NoError(t, err)

	cand := testCandidate(t, 3)
	claimed, _, err := NewDeriver(testProgramID).ReceiptAddress(cand.PublicKey, 0)
	require.NoError(t, err)
	accounts := &fakeAccounts{existing: map[solana.Pubkey]bool{claimed: true}}

	sub := &fakeSubmitter{payer: testAddr(99)}
	m := NewMiner(nil, testProgramID, &stubSearcher{}, sub, MinerOptions{Accounts: accounts})

	claims, err := m.ClaimAll(context.Background(), cand, faucets)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, testAddr(2), claims[0].Faucet.Spec())
	require.Len(t, sub.submitted, 1)
	require.Len(t, accounts.lookups, 2)
	require.Equal(t, claimed, accounts.lookups[0])
}

func TestMinerClaim_ExistingReceipt(t *testing.T) {
	l := newFakeLedger()
	l.addSpec(t, testAddr(1), 0, 10, 100)
	faucets, err := NewCatalog(l, testProgramID, CatalogOptions{}).List(context.Background())
	require.NoError(t, err)

	sub := &fakeSubmitter{payer: testAddr(99)}
	accounts := &fakeAccounts{existing: map[solana.Pubkey]bool{}}
	m := NewMiner(nil, testProgramID, &stubSearcher{score: 0}, sub, MinerOptions{Accounts: accounts})
	res, err := m.grind(context.Background(), 0)
	require.NoError(t, err)
	receipt, _, err := NewDeriver(testProgramID).ReceiptAddress(res.Search.Candidate.PublicKey, 0)
	require.NoError(t, err)
	accounts.existing[receipt] = true

	_, err = m.claim(context.Background(), res.Search.Candidate, faucets[0])
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	require.Equal(t, StageQuery, StageOf(err))
	require.Empty(t, sub.submitted)
}

func TestMinerClaim_InsufficientLamportsBlamesPayerWhenSourceCovers(t *testing.T) {
	l := newFakeLedger()
	source := l.addSpec(t, testAddr(1), 0, 1_000, 5_000)
	l.addSpec(t, testAddr(2), 1, 1_000, 5_000)
	faucets, err := NewCatalog(l, testProgramID, CatalogOptions{}).List(context.Background())
	require.NoError(t, err)

	// Receipt rent the payer cannot fund surfaces as "insufficient lamports".
	rentErr := fmt.Errorf("%w: Transfer: insufficient lamports 4000, need 946560", ErrFaucetEmpty)
	payer := testAddr(99)

	t.Run("source covers reward", func(t *testing.T) {
		sub := &fakeSubmitter{payer: payer, fail: map[solana.Pubkey]error{testAddr(1): rentErr}}
		accounts := &fakeAccounts{balances: map[solana.Pubkey]uint64{source: 5_000, payer: 4_000}}
		m := NewMiner(nil, testProgramID, &stubSearcher{}, sub, MinerOptions{Accounts: accounts})

		claims, err := m.ClaimAll(context.Background(), testCandidate(t, 1), faucets)
		require.ErrorIs(t, err, ErrInsufficientFeeBalance)
		require.NotErrorIs(t, err, ErrFaucetEmpty)
		require.Equal(t, StageSubmit, StageOf(err))
		require.Contains(t, err.Error(), "holds 4000")
		require.Empty(t, claims)
		require.Len(t, sub.submitted, 1, "a payer problem stops instead of skipping tiers")
	})

	t.Run("source drained", func(t *testing.T) {
		sub := &fakeSubmitter{payer: payer, fail: map[solana.Pubkey]error{testAddr(1): rentErr}}
		accounts := &fakeAccounts{balances: map[solana.Pubkey]uint64{source: 10}}
		m := NewMiner(nil, testProgramID, &stubSearcher{}, sub, MinerOptions{Accounts: accounts})

		claims, err := m.ClaimAll(context.Background(), testCandidate(t, 1), faucets)
		require.NoError(t, err)
		require.Len(t, claims, 1)
		require.Equal(t, testAddr(2), claims[0].Faucet.Spec())
	})
}
