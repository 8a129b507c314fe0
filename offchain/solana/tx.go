package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrMissingSigner   = errors.New("missing signer for required signature")
	ErrTooManyAccounts = errors.New("too many accounts for a legacy message")
)

type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// BuildAndSignLegacyTransaction compiles instructions into a legacy message and
// signs it with every required signer. signers must hold a key for the fee payer
// and for every account marked IsSigner.
func BuildAndSignLegacyTransaction(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	signers map[Pubkey]ed25519.PrivateKey,
	instructions []Instruction,
) ([]byte, error) {
	msg, accountKeys, header, err := CompileLegacyMessage(recentBlockhash, feePayer, instructions)
	if err != nil {
		return nil, err
	}

	sigCount := int(header.NumRequiredSignatures)
	sigs := make([]byte, 0, sigCount*ed25519.SignatureSize)
	for i := 0; i < sigCount; i++ {
		pk := accountKeys[i]
		priv, ok := signers[pk]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
		sigs = append(sigs, ed25519.Sign(priv, msg)...)
	}

	out := make([]byte, 0, len(msg)+3+len(sigs))
	out = append(out, encodeShortVecLen(sigCount)...)
	out = append(out, sigs...)
	out = append(out, msg...)
	return out, nil
}

type accountInfo struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
	FirstSeen  int
}

// CompileLegacyMessage orders accounts as writable signers, readonly signers,
// writable non-signers, readonly non-signers (first-seen order within each
// group, fee payer first) and serializes the message.
func CompileLegacyMessage(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	instructions []Instruction,
) ([]byte, []Pubkey, MessageHeader, error) {
	infos := make(map[Pubkey]*accountInfo, 16)
	seen := 0

	touch := func(pk Pubkey, signer, writable bool) {
		if ai, ok := infos[pk]; ok {
			ai.IsSigner = ai.IsSigner || signer
			ai.IsWritable = ai.IsWritable || writable
			return
		}
		infos[pk] = &accountInfo{
			Pubkey:     pk,
			IsSigner:   signer,
			IsWritable: writable,
			FirstSeen:  seen,
		}
		seen++
	}

	// Fee payer must be a writable signer.
	touch(feePayer, true, true)

	for _, ix := range instructions {
		for _, am := range ix.Accounts {
			touch(am.Pubkey, am.IsSigner, am.IsWritable)
		}
		touch(ix.ProgramID, false, false)
	}

	if len(infos) > 256 {
		return nil, nil, MessageHeader{}, ErrTooManyAccounts
	}

	ordered := make([]*accountInfo, 0, len(infos))
	for _, ai := range infos {
		ordered = append(ordered, ai)
	}
	rank := func(ai *accountInfo) int {
		switch {
		case ai.IsSigner && ai.IsWritable:
			return 0
		case ai.IsSigner:
			return 1
		case ai.IsWritable:
			return 2
		default:
			return 3
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i]), rank(ordered[j])
		if ri != rj {
			return ri < rj
		}
		return ordered[i].FirstSeen < ordered[j].FirstSeen
	})

	var h MessageHeader
	accountKeys := make([]Pubkey, 0, len(ordered))
	indexOf := make(map[Pubkey]uint8, len(ordered))
	for i, ai := range ordered {
		accountKeys = append(accountKeys, ai.Pubkey)
		indexOf[ai.Pubkey] = uint8(i)
		switch rank(ai) {
		case 0:
			h.NumRequiredSignatures++
		case 1:
			h.NumRequiredSignatures++
			h.NumReadonlySignedAccounts++
		case 3:
			h.NumReadonlyUnsignedAccounts++
		}
	}

	out := make([]byte, 0, 512)
	out = append(out, h.NumRequiredSignatures, h.NumReadonlySignedAccounts, h.NumReadonlyUnsignedAccounts)
	out = append(out, encodeShortVecLen(len(accountKeys))...)
	for _, pk := range accountKeys {
		out = append(out, pk[:]...)
	}
	out = append(out, recentBlockhash[:]...)

	out = append(out, encodeShortVecLen(len(instructions))...)
	for _, ix := range instructions {
		out = append(out, indexOf[ix.ProgramID])
		out = append(out, encodeShortVecLen(len(ix.Accounts))...)
		for _, am := range ix.Accounts {
			out = append(out, indexOf[am.Pubkey])
		}
		out = append(out, encodeShortVecLen(len(ix.Data))...)
		out = append(out, ix.Data...)
	}

	return out, accountKeys, h, nil
}
