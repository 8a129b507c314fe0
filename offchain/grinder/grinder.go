// Package grinder searches for ed25519 keypairs whose base58 address starts
// with a run of 'A' characters.
package grinder

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"filippo.io/edwards25519"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

const (
	DefaultMaxAttempts uint64 = 10_000_000

	// TargetChar is the character whose leading run is scored.
	TargetChar = 'A'

	alphabet     = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	alphabetSize = len(alphabet)
	// maxEncodedLen is the longest base58 form of 32 bytes.
	maxEncodedLen = 44

	// stopCheckEvery bounds how many attempts a worker makes between context checks.
	stopCheckEvery = 64
	entropyBufSize = 32 * 1024
)

// Candidate is a keypair that met the difficulty bar. It is handed off for
// exactly one claim per difficulty.
type Candidate struct {
	solana.Keypair
	// Score is the length of the leading TargetChar run of the encoded public key.
	Score int
}

func (c *Candidate) Address() string { return c.PublicKey.Base58() }

// Result is the outcome of a search. A nil Candidate means the attempt budget
// ran out; that is not an error.
type Result struct {
	Candidate *Candidate
	// Attempts is the 1-based index of the winning attempt, or the number of
	// attempts made when nothing qualified.
	Attempts uint64
	Duration time.Duration
}

func (r Result) Found() bool { return r.Candidate != nil }

// Rate returns attempts per second.
func (r Result) Rate() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Attempts) / r.Duration.Seconds()
}

type Options struct {
	// Workers defaults to runtime.NumCPU().
	Workers int
	// ProgressInterval enables periodic progress logging when > 0.
	ProgressInterval time.Duration
	Log              *zap.Logger
}

type Grinder struct {
	workers  int
	interval time.Duration
	log      *zap.Logger

	// newEntropy returns an independent random source for one worker.
	newEntropy func() io.Reader
}

func New(opts Options) *Grinder {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Grinder{
		workers:  workers,
		interval: opts.ProgressInterval,
		log:      log,
		newEntropy: func() io.Reader {
			return bufio.NewReaderSize(rand.Reader, entropyBufSize)
		},
	}
}

func (g *Grinder) Workers() int { return g.workers }

// Grind runs the search until a keypair scores at least minDifficulty or
// maxAttempts attempts have been made in total across all workers. A
// maxAttempts of 0 selects DefaultMaxAttempts. The returned error is non-nil
// only when ctx is cancelled or the random source fails.
func (g *Grinder) Grind(ctx context.Context, minDifficulty uint8, maxAttempts uint64) (Result, error) {
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	start := time.Now()

	var (
		next    atomic.Uint64
		stop    atomic.Bool
		winOnce sync.Once
		winner  *Candidate
		winIdx  uint64
	)

	grp, gctx := errgroup.WithContext(ctx)
	for i := 0; i < g.workers; i++ {
		w := newWorker(g.newEntropy())
		grp.Go(func() error {
			for n := 0; ; n++ {
				if stop.Load() {
					return nil
				}
				if n%stopCheckEvery == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				idx := next.Add(1)
				if idx > maxAttempts {
					return nil
				}
				if err := w.generate(); err != nil {
					return fmt.Errorf("read entropy: %w", err)
				}
				score := w.leadingRun(TargetChar)
				if score < int(minDifficulty) {
					continue
				}
				c, err := w.candidate(score)
				if err != nil {
					return err
				}
				winOnce.Do(func() {
					winner, winIdx = c, idx
					stop.Store(true)
				})
				return nil
			}
		})
	}

	var progressDone chan struct{}
	if g.interval > 0 {
		progressDone = make(chan struct{})
		go g.progress(progressDone, &next, maxAttempts, start)
	}

	err := grp.Wait()
	if progressDone != nil {
		close(progressDone)
	}

	res := Result{Duration: time.Since(start)}
	if winner != nil {
		res.Candidate = winner
		res.Attempts = winIdx
		return res, nil
	}
	res.Attempts = min(next.Load(), maxAttempts)
	return res, err
}

func (g *Grinder) progress(done <-chan struct{}, next *atomic.Uint64, maxAttempts uint64, start time.Time) {
	t := time.NewTicker(g.interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			attempts := min(next.Load(), maxAttempts)
			elapsed := time.Since(start)
			rate := 0.0
			if elapsed > 0 {
				rate = float64(attempts) / elapsed.Seconds()
			}
			g.log.Info("grinding",
				zap.Uint64("attempts", attempts),
				zap.Uint64("budget", maxAttempts),
				zap.Float64("rate", math.Round(rate)),
				zap.Duration("elapsed", elapsed.Round(time.Second)),
			)
		}
	}
}

// worker owns the buffers for one search goroutine; nothing is shared.
type worker struct {
	entropy io.Reader
	seed    [ed25519.SeedSize]byte
	scalar  edwards25519.Scalar
	point   edwards25519.Point
	pub     solana.Pubkey
	digits  [maxEncodedLen]byte
}

func newWorker(entropy io.Reader) *worker {
	return &worker{entropy: entropy}
}

// generate draws a fresh seed and derives its ed25519 public key the way
// crypto/ed25519 does (clamped SHA-512 prefix times the base point) without
// materializing the private key.
func (w *worker) generate() error {
	if _, err := io.ReadFull(w.entropy, w.seed[:]); err != nil {
		return err
	}
	h := sha512.Sum512(w.seed[:])
	if _, err := w.scalar.SetBytesWithClamping(h[:32]); err != nil {
		return err
	}
	w.point.ScalarBaseMult(&w.scalar)
	// Bytes is outlined so its buffer stays on this frame.
	copy(w.pub[:], w.point.Bytes())
	return nil
}

// leadingRun is CountLeadingRun over the base58 form of w.pub, computed in
// w.digits instead of an encoded string.
func (w *worker) leadingRun(c byte) int {
	zeros := 0
	for zeros < len(w.pub) && w.pub[zeros] == 0 {
		zeros++
	}
	if zeros > 0 {
		// The encoding starts with one '1' per zero byte, then a non-'1' digit.
		if c == alphabet[0] {
			return zeros
		}
		return 0
	}

	w.digits = [maxEncodedLen]byte{}
	length := 0
	for _, b := range w.pub {
		carry := uint32(b)
		i := 0
		for j := maxEncodedLen - 1; (carry != 0 || i < length) && j >= 0; j-- {
			carry += 256 * uint32(w.digits[j])
			w.digits[j] = byte(carry % uint32(alphabetSize))
			carry /= uint32(alphabetSize)
			i++
		}
		length = i
	}

	n := 0
	for i := maxEncodedLen - length; i < maxEncodedLen && alphabet[w.digits[i]] == c; i++ {
		n++
	}
	return n
}

func (w *worker) candidate(score int) (*Candidate, error) {
	kp, err := solana.KeypairFromPrivateKey(ed25519.NewKeyFromSeed(w.seed[:]))
	if err != nil {
		return nil, err
	}
	if kp.PublicKey != w.pub {
		return nil, fmt.Errorf("derived public key mismatch for %s", w.pub)
	}
	return &Candidate{Keypair: kp, Score: score}, nil
}

// CountLeadingRun returns how many times c repeats at the start of s.
func CountLeadingRun(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

// Score returns the leading TargetChar run of pk's base58 form.
func Score(pk solana.Pubkey) int {
	return CountLeadingRun(pk.Base58(), TargetChar)
}

// ExpectedAttempts is the mean number of attempts to reach difficulty d (58^d).
func ExpectedAttempts(d uint8) float64 {
	return math.Pow(float64(alphabetSize), float64(d))
}
