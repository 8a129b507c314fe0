package faucet

import (
	"fmt"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

// Deriver computes the faucet program's three address namespaces.
type Deriver struct {
	programID solana.Pubkey
}

func NewDeriver(programID solana.Pubkey) Deriver {
	return Deriver{programID: programID}
}

func (d Deriver) ProgramID() solana.Pubkey { return d.programID }

// SpecAddress locates the spec account for a (difficulty, reward) pair.
func (d Deriver) SpecAddress(difficulty uint8, reward protocol.Lamports) (solana.Pubkey, uint8, error) {
	return d.find("spec", protocol.SpecSeeds(difficulty, reward))
}

// SourceAddress locates the account holding a spec's funds. It depends only on spec.
func (d Deriver) SourceAddress(spec solana.Pubkey) (solana.Pubkey, uint8, error) {
	return d.find("source", protocol.SourceSeeds(protocol.SolanaPubkey(spec)))
}

// ReceiptAddress locates the double-claim marker for (miner, difficulty).
func (d Deriver) ReceiptAddress(miner solana.Pubkey, difficulty uint8) (solana.Pubkey, uint8, error) {
	return d.find("receipt", protocol.ReceiptSeeds(protocol.SolanaPubkey(miner), difficulty))
}

func (d Deriver) find(kind string, seeds [][]byte) (solana.Pubkey, uint8, error) {
	pk, bump, err := solana.FindProgramAddress(seeds, d.programID)
	if err != nil {
		return solana.Pubkey{}, 0, fmt.Errorf("derive %s address: %w", kind, err)
	}
	return pk, bump, nil
}
