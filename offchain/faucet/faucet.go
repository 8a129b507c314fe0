// Package faucet lists proof-of-work faucets and claims their rewards.
package faucet

import (
	"fmt"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

// Faucet is a spec record enriched with its source account balance.
type Faucet struct {
	Record          protocol.ConfigRecord
	Source          solana.Pubkey
	BalanceLamports protocol.Lamports
	Funded          bool
}

func (f Faucet) Spec() solana.Pubkey { return solana.Pubkey(f.Record.Address) }

func (f Faucet) Difficulty() uint8 { return f.Record.Difficulty }

func (f Faucet) Reward() protocol.Lamports { return f.Record.RewardLamports }

// MineCommand is the CLI invocation that targets this faucet.
func (f Faucet) MineCommand() string {
	return fmt.Sprintf("pow-faucet mine -d %d --reward %s", f.Record.Difficulty, f.Record.RewardLamports)
}

// isFunded keeps the program's literal predicate: the source must hold at least
// the reward. No reserve for fees is assumed.
func isFunded(balance, reward protocol.Lamports) bool {
	return balance >= reward
}

// FaucetInfo is the JSON view of a Faucet.
type FaucetInfo struct {
	SpecAddress     string  `json:"specAddress"`
	FaucetAddress   string  `json:"faucetAddress"`
	Difficulty      uint8   `json:"difficulty"`
	RewardLamports  uint64  `json:"rewardLamports"`
	RewardSol       float64 `json:"rewardSol"`
	BalanceLamports uint64  `json:"balanceLamports"`
	BalanceSol      float64 `json:"balanceSol"`
	Funded          bool    `json:"funded"`
	MineCommand     string  `json:"mineCommand"`
}

func (f Faucet) Info() FaucetInfo {
	return FaucetInfo{
		SpecAddress:     f.Spec().Base58(),
		FaucetAddress:   f.Source.Base58(),
		Difficulty:      f.Record.Difficulty,
		RewardLamports:  uint64(f.Record.RewardLamports),
		RewardSol:       f.Record.RewardLamports.SOL(),
		BalanceLamports: uint64(f.BalanceLamports),
		BalanceSol:      f.BalanceLamports.SOL(),
		Funded:          f.Funded,
		MineCommand:     f.MineCommand(),
	}
}

// Summary is the catalog listing with counts.
type Summary struct {
	Total   int          `json:"total"`
	Funded  int          `json:"funded"`
	Faucets []FaucetInfo `json:"faucets"`
}

func Summarize(faucets []Faucet) Summary {
	out := Summary{Total: len(faucets), Faucets: make([]FaucetInfo, 0, len(faucets))}
	for _, f := range faucets {
		if f.Funded {
			out.Funded++
		}
		out.Faucets = append(out.Faucets, f.Info())
	}
	return out
}

// Find returns the faucet with exactly this difficulty and reward.
func Find(faucets []Faucet, difficulty uint8, reward protocol.Lamports) (Faucet, error) {
	for _, f := range faucets {
		if f.Record.Difficulty == difficulty && f.Record.RewardLamports == reward {
			return f, nil
		}
	}
	return Faucet{}, fmt.Errorf("%w: difficulty=%d reward=%s SOL", ErrNoFaucet, difficulty, reward)
}

// Funded filters faucets down to those that can pay out, preserving order.
func Funded(faucets []Faucet) []Faucet {
	out := make([]Faucet, 0, len(faucets))
	for _, f := range faucets {
		if f.Funded {
			out = append(out, f)
		}
	}
	return out
}
