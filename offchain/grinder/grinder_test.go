package grinder

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

func TestCountLeadingRun(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"AAABCDEF", 3},
		{"BAAA", 0},
		{"", 0},
		{"AAAAAAAA", 8},
		{"A", 1},
		{"aAAA", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CountLeadingRun(tc.in, 'A'), "input %q", tc.in)
	}
}

func TestWorker_LeadingRunMatchesEncoding(t *testing.T) {
	keys := []solana.Pubkey{
		{},
		{0, 1, 2},
		solana.MustParsePubkey("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"),
		solana.MustParsePubkey("AAAAbcdefghijkmnopqrstuvwxyzAAAAAAAAAAAAAAAA"),
		solana.MustParsePubkey("PoWSNH2hEZogtCg1Zgm51FnkmJperzYDgPK4fvs8taL"),
	}
	for i := 0; i < 500; i++ {
		kp, err := solana.GenerateKeypair()
		require.NoError(t, err)
		keys = append(keys, kp.PublicKey)
	}

	w := newWorker(nil)
	for _, pk := range keys {
		w.pub = pk
		encoded := base58.Encode(pk[:])
		require.Equal(t, CountLeadingRun(encoded, 'A'), w.leadingRun('A'), "key %s", encoded)
		require.Equal(t, CountLeadingRun(encoded, '1'), w.leadingRun('1'), "key %s", encoded)
		require.Equal(t, CountLeadingRun(encoded, encoded[0]), w.leadingRun(encoded[0]), "key %s", encoded)
	}
}

func TestWorker_LeadingRunDoesNotAllocate(t *testing.T) {
	w := newWorker(nil)
	w.pub = solana.MustParsePubkey("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	allocs := testing.AllocsPerRun(100, func() {
		if w.leadingRun(TargetChar) != 44 {
			t.Fatal("unexpected score")
		}
	})
	require.Zero(t, allocs)
}

func TestExpectedAttempts(t *testing.T) {
	require.Equal(t, 1.0, ExpectedAttempts(0))
	require.Equal(t, 58.0, ExpectedAttempts(1))
	require.Equal(t, 3364.0, ExpectedAttempts(2))
}

func TestWorker_MatchesCryptoEd25519(t *testing.T) {
	seeds := bytes.Repeat([]byte{7}, 32*4)
	w := newWorker(bytes.NewReader(seeds))
	for i := 0; i < 4; i++ {
		require.NoError(t, w.generate())
		want := ed25519.NewKeyFromSeed(seeds[i*32 : (i+1)*32]).Public().(ed25519.PublicKey)
		require.Equal(t, []byte(want), w.pub[:])

		c, err := w.candidate(Score(w.pub))
		require.NoError(t, err)
		require.Equal(t, w.pub, c.PublicKey)
		require.Equal(t, c.PublicKey.Base58(), c.Address())
	}
	require.ErrorIs(t, w.generate(), io.EOF)
}

func TestGrind_ZeroDifficultyFirstAttempt(t *testing.T) {
	g := New(Options{Workers: 1})
	res, err := g.Grind(context.Background(), 0, 10)
	require.NoError(t, err)
	require.True(t, res.Found())
	require.Equal(t, uint64(1), res.Attempts)
	require.Equal(t, Score(res.Candidate.PublicKey), res.Candidate.Score)
}

func TestGrind_ZeroDifficultyManyWorkers(t *testing.T) {
	g := New(Options{Workers: 4})
	res, err := g.Grind(context.Background(), 0, 100)
	require.NoError(t, err)
	require.True(t, res.Found())
	require.GreaterOrEqual(t, res.Attempts, uint64(1))
	require.LessOrEqual(t, res.Attempts, uint64(4))
}

func TestGrind_ExhaustionIsNotAnError(t *testing.T) {
	g := New(Options{Workers: 3})
	res, err := g.Grind(context.Background(), 10, 10)
	require.NoError(t, err)
	require.False(t, res.Found())
	require.Nil(t, res.Candidate)
	require.Equal(t, uint64(10), res.Attempts)
}

func TestGrind_DifficultyTwo(t *testing.T) {
	g := New(Options{Workers: 2})
	res, err := g.Grind(context.Background(), 2, 2_000_000)
	require.NoError(t, err)
	require.True(t, res.Found())

	addr := res.Candidate.Address()
	require.True(t, strings.HasPrefix(addr, "AA"), "address %s", addr)
	require.GreaterOrEqual(t, res.Candidate.Score, 2)

	msg := []byte("proof")
	sig := ed25519.Sign(res.Candidate.PrivateKey, msg)
	require.True(t, ed25519.Verify(ed25519.PublicKey(res.Candidate.PublicKey[:]), msg, sig))
}

func TestGrind_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New(Options{Workers: 2})
	res, err := g.Grind(ctx, 40, 1<<40)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, res.Found())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestGrind_EntropyFailure(t *testing.T) {
	g := New(Options{Workers: 2})
	g.newEntropy = func() io.Reader { return failingReader{} }

	_, err := g.Grind(context.Background(), 1, 100)
	require.ErrorContains(t, err, "entropy unavailable")
}
