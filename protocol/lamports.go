package protocol

import (
	"errors"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

const LamportsPerSOL uint64 = 1_000_000_000

const solDecimals = 9

var (
	errInvalidSOLAmount = errors.New("invalid SOL amount")
	errAmountOverflow   = errors.New("amount overflow")
)

// ParseSOL converts a decimal SOL string ("0.1", "20", "1.000000001") to lamports
// without going through floating point. More than 9 fractional digits is an error.
func ParseSOL(s string) (Lamports, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errInvalidSOLAmount
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, errInvalidSOLAmount
	}
	if len(frac) > solDecimals {
		return 0, errInvalidSOLAmount
	}

	var w uint64
	if whole != "" {
		v, err := strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, errInvalidSOLAmount
		}
		w = v
	}
	var f uint64
	if frac != "" {
		padded := frac + strings.Repeat("0", solDecimals-len(frac))
		v, err := strconv.ParseUint(padded, 10, 64)
		if err != nil {
			return 0, errInvalidSOLAmount
		}
		f = v
	}

	hi, lo := bits.Mul64(w, LamportsPerSOL)
	if hi != 0 {
		return 0, errAmountOverflow
	}
	if f > math.MaxUint64-lo {
		return 0, errAmountOverflow
	}
	return Lamports(lo + f), nil
}

// SOL returns l as a float for display only.
func (l Lamports) SOL() float64 {
	return float64(l) / float64(LamportsPerSOL)
}

// String formats l as SOL with trailing zeros trimmed, e.g. "0.1" or "20".
func (l Lamports) String() string {
	whole := uint64(l) / LamportsPerSOL
	frac := uint64(l) % LamportsPerSOL
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fs := strconv.FormatUint(frac, 10)
	fs = strings.Repeat("0", solDecimals-len(fs)) + fs
	fs = strings.TrimRight(fs, "0")
	return strconv.FormatUint(whole, 10) + "." + fs
}
