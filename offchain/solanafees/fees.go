// Package solanafees prices faucet transactions: base signature fees plus an
// optional compute-unit priority fee.
package solanafees

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"github.com/Abdullah1738/pow-faucet/offchain/helius"
	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

var ErrOverflow = errors.New("overflow")

// ClaimSignatures is the signature count of a claim: fee payer and miner.
const ClaimSignatures = 2

type TxFeeEstimate struct {
	LamportsPerSignature uint64 `json:"lamportsPerSignature"`
	Signatures           uint64 `json:"signatures"`
	BaseFeeLamports      uint64 `json:"baseFeeLamports"`

	ComputeUnitLimit    uint32 `json:"computeUnitLimit"`
	MicroLamportsPerCU  uint64 `json:"microLamportsPerCu"`
	PriorityFeeLamports uint64 `json:"priorityFeeLamports"`

	TotalLamports uint64 `json:"totalLamports"`
}

func PriorityFeeLamports(computeUnitLimit uint32, microLamportsPerCU uint64) (uint64, error) {
	if computeUnitLimit == 0 || microLamportsPerCU == 0 {
		return 0, nil
	}
	hi, lo := bits.Mul64(uint64(computeUnitLimit), microLamportsPerCU)
	if hi != 0 {
		return 0, ErrOverflow
	}
	const denom = uint64(1_000_000)
	return (lo + denom - 1) / denom, nil
}

func BaseFeeLamports(lamportsPerSignature uint64, signatures uint64) (uint64, error) {
	hi, lo := bits.Mul64(lamportsPerSignature, signatures)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// Total combines a base fee with a priority price.
func Total(lamportsPerSignature, signatures uint64, computeUnitLimit uint32, microLamportsPerCU uint64) (TxFeeEstimate, error) {
	base, err := BaseFeeLamports(lamportsPerSignature, signatures)
	if err != nil {
		return TxFeeEstimate{}, err
	}
	priority, err := PriorityFeeLamports(computeUnitLimit, microLamportsPerCU)
	if err != nil {
		return TxFeeEstimate{}, err
	}
	total, carry := bits.Add64(base, priority, 0)
	if carry != 0 {
		return TxFeeEstimate{}, ErrOverflow
	}
	return TxFeeEstimate{
		LamportsPerSignature: lamportsPerSignature,
		Signatures:           signatures,
		BaseFeeLamports:      base,
		ComputeUnitLimit:     computeUnitLimit,
		MicroLamportsPerCU:   microLamportsPerCU,
		PriorityFeeLamports:  priority,
		TotalLamports:        total,
	}, nil
}

// HeliusEstimator prices compute units with Helius' getPriorityFeeEstimate.
// It satisfies the faucet submitter's FeeEstimator.
type HeliusEstimator struct {
	Client *helius.Client
	Level  helius.PriorityLevel
	// MaxMicroLamports caps the price; 0 means uncapped.
	MaxMicroLamports uint64
	// ComputeUnitLimit and Signatures only feed the logged total.
	ComputeUnitLimit uint32
	Signatures       uint64
	Log              *zap.Logger
}

func (e *HeliusEstimator) ComputeUnitPrice(ctx context.Context, writable []solana.Pubkey) (uint64, error) {
	est, err := e.Estimate(ctx, writable)
	if err != nil {
		return 0, err
	}
	if e.Log != nil {
		e.Log.Debug("priority fee estimate", zap.Stringer("fee", est))
	}
	return est.MicroLamportsPerCU, nil
}

// Estimate returns the full fee for a transaction writing these accounts.
func (e *HeliusEstimator) Estimate(ctx context.Context, writable []solana.Pubkey) (TxFeeEstimate, error) {
	if e == nil || e.Client == nil {
		return TxFeeEstimate{}, errors.New("nil helius client")
	}
	opts := &helius.PriorityFeeOptions{PriorityLevel: e.Level, Recommended: e.Level == ""}
	est, err := e.Client.PriorityFeeEstimate(ctx, writable, opts)
	if err != nil {
		return TxFeeEstimate{}, err
	}
	price := est.MicroLamports
	if e.MaxMicroLamports > 0 && price > e.MaxMicroLamports {
		price = e.MaxMicroLamports
	}

	feePerSig, err := e.Client.LamportsPerSignature(ctx)
	if err != nil {
		return TxFeeEstimate{}, err
	}
	sigs := e.Signatures
	if sigs == 0 {
		sigs = ClaimSignatures
	}
	return Total(feePerSig, sigs, e.ComputeUnitLimit, price)
}

func (e TxFeeEstimate) String() string {
	return fmt.Sprintf("total=%d lamports (base=%d, priority=%d @ %d microLamports/CU, limit=%d)",
		e.TotalLamports,
		e.BaseFeeLamports,
		e.PriorityFeeLamports,
		e.MicroLamportsPerCU,
		e.ComputeUnitLimit,
	)
}
