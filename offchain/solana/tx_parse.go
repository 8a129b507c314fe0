package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

type ParsedInstruction struct {
	ProgramID Pubkey
	Accounts  []uint8
	Data      []byte
}

type ParsedLegacyTransaction struct {
	Signatures      [][ed25519.SignatureSize]byte
	Header          MessageHeader
	AccountKeys     []Pubkey
	RecentBlockhash [32]byte
	Instructions    []ParsedInstruction
	Message         []byte
}

// IsSigner reports whether the account at index i must sign.
func (p ParsedLegacyTransaction) IsSigner(i int) bool {
	return i < int(p.Header.NumRequiredSignatures)
}

// IsWritable reports whether the account at index i is writable according to the header.
func (p ParsedLegacyTransaction) IsWritable(i int) bool {
	nSig := int(p.Header.NumRequiredSignatures)
	if i < nSig {
		return i < nSig-int(p.Header.NumReadonlySignedAccounts)
	}
	return i < len(p.AccountKeys)-int(p.Header.NumReadonlyUnsignedAccounts)
}

// ParseLegacyTransaction decodes a signed legacy transaction.
func ParseLegacyTransaction(tx []byte) (ParsedLegacyTransaction, error) {
	var out ParsedLegacyTransaction
	if len(tx) == 0 {
		return out, errors.New("empty tx")
	}

	off := 0
	sigCount, newOff, err := decodeShortVecLenAt(tx, off)
	if err != nil {
		return out, fmt.Errorf("decode signature count: %w", err)
	}
	off = newOff
	if off+sigCount*ed25519.SignatureSize > len(tx) {
		return out, errors.New("invalid signature section")
	}
	out.Signatures = make([][ed25519.SignatureSize]byte, sigCount)
	for i := range out.Signatures {
		copy(out.Signatures[i][:], tx[off:off+ed25519.SignatureSize])
		off += ed25519.SignatureSize
	}
	out.Message = tx[off:]

	if off+3 > len(tx) {
		return out, errors.New("message header truncated")
	}
	out.Header = MessageHeader{
		NumRequiredSignatures:       tx[off],
		NumReadonlySignedAccounts:   tx[off+1],
		NumReadonlyUnsignedAccounts: tx[off+2],
	}
	off += 3
	if int(out.Header.NumRequiredSignatures) != sigCount {
		return out, errors.New("signature count does not match header")
	}

	nKeys, newOff, err := decodeShortVecLenAt(tx, off)
	if err != nil {
		return out, fmt.Errorf("decode account keys count: %w", err)
	}
	off = newOff
	if off+(nKeys*32) > len(tx) {
		return out, errors.New("account keys truncated")
	}
	out.AccountKeys = make([]Pubkey, 0, nKeys)
	for i := 0; i < nKeys; i++ {
		var pk Pubkey
		copy(pk[:], tx[off:off+32])
		out.AccountKeys = append(out.AccountKeys, pk)
		off += 32
	}

	if off+32 > len(tx) {
		return out, errors.New("recent blockhash truncated")
	}
	copy(out.RecentBlockhash[:], tx[off:off+32])
	off += 32

	nIxs, newOff, err := decodeShortVecLenAt(tx, off)
	if err != nil {
		return out, fmt.Errorf("decode instruction count: %w", err)
	}
	off = newOff

	out.Instructions = make([]ParsedInstruction, 0, nIxs)
	for i := 0; i < nIxs; i++ {
		if off >= len(tx) {
			return out, errors.New("instruction truncated")
		}
		pidIndex := int(tx[off])
		off++
		if pidIndex >= len(out.AccountKeys) {
			return out, errors.New("invalid program id index")
		}

		acctCount, newOff, err := decodeShortVecLenAt(tx, off)
		if err != nil {
			return out, fmt.Errorf("decode instruction accounts count: %w", err)
		}
		off = newOff
		if off+acctCount > len(tx) {
			return out, errors.New("instruction accounts truncated")
		}
		accounts := make([]uint8, acctCount)
		copy(accounts, tx[off:off+acctCount])
		off += acctCount
		for _, a := range accounts {
			if int(a) >= len(out.AccountKeys) {
				return out, errors.New("invalid account index")
			}
		}

		dataLen, newOff, err := decodeShortVecLenAt(tx, off)
		if err != nil {
			return out, fmt.Errorf("decode instruction data len: %w", err)
		}
		off = newOff
		if off+dataLen > len(tx) {
			return out, errors.New("instruction data truncated")
		}
		data := make([]byte, dataLen)
		copy(data, tx[off:off+dataLen])
		off += dataLen

		out.Instructions = append(out.Instructions, ParsedInstruction{
			ProgramID: out.AccountKeys[pidIndex],
			Accounts:  accounts,
			Data:      data,
		})
	}

	return out, nil
}

// TransactionID returns the base58 fee payer signature, which the ledger uses
// as the transaction identifier.
func TransactionID(tx []byte) (string, error) {
	sigCount, off, err := decodeShortVecLenAt(tx, 0)
	if err != nil {
		return "", fmt.Errorf("decode signature count: %w", err)
	}
	if sigCount == 0 || off+ed25519.SignatureSize > len(tx) {
		return "", errors.New("transaction has no signatures")
	}
	return base58.Encode(tx[off : off+ed25519.SignatureSize]), nil
}
