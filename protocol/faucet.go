package protocol

import (
	"encoding/binary"
	"errors"
)

// FaucetProgramID is the base58 address of the proof-of-work faucet program.
const FaucetProgramID = "PoWSNH2hEZogtCg1Zgm51FnkmJperzYDgPK4fvs8taL"

// ConfigRecordLen is the exact size of a faucet spec account:
//
//	[0:8]  account discriminator
//	[8]    difficulty (u8)
//	[9:17] reward lamports (u64 LE)
const ConfigRecordLen = 17

const (
	discriminatorLen     = 8
	configDifficultyOff  = 8
	configRewardOff      = 9
	createInstructionLen = discriminatorLen + 1 + 8
)

const (
	seedSpec    = "spec"
	seedSource  = "source"
	seedReceipt = "receipt"
)

var (
	// ClaimDiscriminator tags the program's "airdrop" instruction.
	ClaimDiscriminator = [discriminatorLen]byte{113, 173, 36, 238, 38, 152, 22, 117}
	// CreateDiscriminator tags the program's "create" instruction.
	CreateDiscriminator = [discriminatorLen]byte{24, 30, 200, 40, 5, 28, 7, 119}
)

var ErrNotConfigRecord = errors.New("not a faucet config record")

// ConfigRecord is one faucet spec published by the program. The
// (difficulty, reward) pair is immutable once the account exists.
type ConfigRecord struct {
	Address        SolanaPubkey
	Difficulty     uint8
	RewardLamports Lamports
}

// DecodeConfigRecord parses raw spec account data. Buffers of any length other
// than ConfigRecordLen return ErrNotConfigRecord; the discriminator is not checked.
func DecodeConfigRecord(addr SolanaPubkey, data []byte) (ConfigRecord, error) {
	if len(data) != ConfigRecordLen {
		return ConfigRecord{}, ErrNotConfigRecord
	}
	return ConfigRecord{
		Address:        addr,
		Difficulty:     data[configDifficultyOff],
		RewardLamports: Lamports(binary.LittleEndian.Uint64(data[configRewardOff:ConfigRecordLen])),
	}, nil
}

// EncodeClaimInstruction returns the claim payload: the bare discriminator.
func EncodeClaimInstruction() []byte {
	out := make([]byte, discriminatorLen)
	copy(out, ClaimDiscriminator[:])
	return out
}

func EncodeCreateInstruction(difficulty uint8, reward Lamports) []byte {
	out := make([]byte, 0, createInstructionLen)
	out = append(out, CreateDiscriminator[:]...)
	out = append(out, difficulty)
	out = binary.LittleEndian.AppendUint64(out, uint64(reward))
	return out
}

// SpecSeeds returns ["spec", difficulty, reward_le].
func SpecSeeds(difficulty uint8, reward Lamports) [][]byte {
	var rewardLE [8]byte
	binary.LittleEndian.PutUint64(rewardLE[:], uint64(reward))
	return [][]byte{[]byte(seedSpec), {difficulty}, rewardLE[:]}
}

// SourceSeeds returns ["source", spec]. The source account custodies a spec's payouts.
func SourceSeeds(spec SolanaPubkey) [][]byte {
	return [][]byte{[]byte(seedSource), append([]byte(nil), spec[:]...)}
}

// ReceiptSeeds returns ["receipt", miner, difficulty]. The receipt account
// exists once miner has claimed at difficulty.
func ReceiptSeeds(miner SolanaPubkey, difficulty uint8) [][]byte {
	return [][]byte{[]byte(seedReceipt), append([]byte(nil), miner[:]...), {difficulty}}
}
