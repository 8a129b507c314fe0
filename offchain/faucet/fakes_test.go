package faucet

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abdullah1738/pow-faucet/offchain/grinder"
	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/offchain/solanarpc"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

func specData(difficulty uint8, reward uint64) []byte {
	b := make([]byte, protocol.ConfigRecordLen)
	copy(b, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b[8] = difficulty
	binary.LittleEndian.PutUint64(b[9:], reward)
	return b
}

func testAddr(i int) solana.Pubkey {
	var pk solana.Pubkey
	pk[0] = byte(i)
	pk[1] = byte(i >> 8)
	pk[31] = 0x42
	return pk
}

// fakeLedger serves spec accounts and source balances from memory.
type fakeLedger struct {
	accounts []solanarpc.ProgramAccount
	balances map[solana.Pubkey]uint64
	listErr  error
	chunkErr error

	mu         sync.Mutex
	chunkSizes []int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[solana.Pubkey]uint64)}
}

// addSpec registers a spec account and funds its source PDA with balance.
// A negative balance leaves the source missing.
func (l *fakeLedger) addSpec(t *testing.T, addr solana.Pubkey, difficulty uint8, reward uint64, balance int64) solana.Pubkey {
	t.Helper()
	l.accounts = append(l.accounts, solanarpc.ProgramAccount{Pubkey: addr, Data: specData(difficulty, reward)})
	source, _, err := NewDeriver(testProgramID).SourceAddress(addr)
	require.NoError(t, err)
	if balance >= 0 {
		l.balances[source] = uint64(balance)
	}
	return source
}

func (l *fakeLedger) ProgramAccountsByDataSize(_ context.Context, programID solana.Pubkey, dataSize uint64) ([]solanarpc.ProgramAccount, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	if programID != testProgramID || dataSize != protocol.ConfigRecordLen {
		return nil, fmt.Errorf("unexpected query %s/%d", programID, dataSize)
	}
	return l.accounts, nil
}

func (l *fakeLedger) MultipleAccountsLamports(_ context.Context, pubkeys []solana.Pubkey) ([]uint64, error) {
	l.mu.Lock()
	l.chunkSizes = append(l.chunkSizes, len(pubkeys))
	l.mu.Unlock()
	if l.chunkErr != nil {
		return nil, l.chunkErr
	}
	if len(pubkeys) > solanarpc.MaxMultipleAccounts {
		return nil, solanarpc.ErrTooManyKeys
	}
	out := make([]uint64, len(pubkeys))
	for i, pk := range pubkeys {
		out[i] = l.balances[pk]
	}
	return out, nil
}

// stubSearcher returns fresh keypairs with a fixed score without searching.
type stubSearcher struct {
	score    int
	attempts uint64
	notFound bool
	err      error

	mu    sync.Mutex
	calls []uint8
}

func (s *stubSearcher) Grind(_ context.Context, minDifficulty uint8, _ uint64) (grinder.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, minDifficulty)
	s.mu.Unlock()
	res := grinder.Result{Attempts: s.attempts}
	if s.err != nil || s.notFound {
		return res, s.err
	}
	kp, err := solana.GenerateKeypair()
	if err != nil {
		return res, err
	}
	res.Candidate = &grinder.Candidate{Keypair: kp, Score: s.score}
	return res, nil
}

// fakeSubmitter records skeletons and fails them on demand.
type fakeSubmitter struct {
	payer solana.Pubkey
	// fail maps a spec address to the error its claim returns.
	fail map[solana.Pubkey]error

	submitted []Tx
}

func (s *fakeSubmitter) Payer() solana.Pubkey { return s.payer }

func (s *fakeSubmitter) Submit(_ context.Context, tx Tx) (string, error) {
	s.submitted = append(s.submitted, tx)
	spec := tx.Instructions[0].Accounts[3].Pubkey
	if err := s.fail[spec]; err != nil {
		return "", stageErr(StageSubmit, err)
	}
	return fmt.Sprintf("sig-%d", len(s.submitted)), nil
}

// fakeSender accepts signed transactions and reports a scripted status.
type fakeSender struct {
	blockhash [32]byte
	sendErr   error
	status    *solanarpc.SignatureStatus

	mu   sync.Mutex
	sent [][]byte
}

func (s *fakeSender) LatestBlockhash(context.Context) ([32]byte, error) {
	return s.blockhash, nil
}

func (s *fakeSender) SendTransaction(_ context.Context, tx []byte, _ bool) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.mu.Lock()
	s.sent = append(s.sent, append([]byte(nil), tx...))
	s.mu.Unlock()
	return solana.TransactionID(tx)
}

func (s *fakeSender) SignatureStatuses(_ context.Context, sigs []string) ([]*solanarpc.SignatureStatus, error) {
	return []*solanarpc.SignatureStatus{s.status}, nil
}

func (s *fakeSender) sentTxs() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

func confirmedStatus() *solanarpc.SignatureStatus {
	return &solanarpc.SignatureStatus{Slot: 10, ConfirmationStatus: solanarpc.CommitmentConfirmed}
}

// fakeAccounts answers receipt and balance lookups from memory.
type fakeAccounts struct {
	existing map[solana.Pubkey]bool
	balances map[solana.Pubkey]uint64

	lookups []solana.Pubkey
}

func (a *fakeAccounts) AccountExists(_ context.Context, pubkey solana.Pubkey) (bool, error) {
	a.lookups = append(a.lookups, pubkey)
	return a.existing[pubkey], nil
}

func (a *fakeAccounts) BalanceLamports(_ context.Context, pubkey solana.Pubkey) (uint64, error) {
	return a.balances[pubkey], nil
}
