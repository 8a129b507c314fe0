package faucet

import (
	"errors"

	"github.com/Abdullah1738/pow-faucet/offchain/grinder"
	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

// Tx is an unsigned transaction skeleton. The fee payer signs at submission;
// Signers holds every other key the instructions require.
type Tx struct {
	FeePayer     solana.Pubkey
	Instructions []solana.Instruction
	Signers      []solana.Keypair
}

// ClaimTx is a claim skeleton plus the addresses it touches.
type ClaimTx struct {
	Tx
	Miner   solana.Pubkey
	Receipt solana.Pubkey
	Spec    solana.Pubkey
	Source  solana.Pubkey
}

// BuildClaim assembles the claim instruction for programID. It performs no I/O
// and does not sign.
func BuildClaim(programID, payer solana.Pubkey, miner *grinder.Candidate, rec protocol.ConfigRecord) (ClaimTx, error) {
	return NewDeriver(programID).BuildClaim(payer, miner, rec)
}

// BuildClaim orders accounts as payer, miner, receipt, spec, source, system program.
func (d Deriver) BuildClaim(payer solana.Pubkey, miner *grinder.Candidate, rec protocol.ConfigRecord) (ClaimTx, error) {
	if miner == nil {
		return ClaimTx{}, stageErr(StageBuild, errors.New("nil candidate"))
	}
	spec := solana.Pubkey(rec.Address)
	receipt, _, err := d.ReceiptAddress(miner.PublicKey, rec.Difficulty)
	if err != nil {
		return ClaimTx{}, stageErr(StageBuild, err)
	}
	source, _, err := d.SourceAddress(spec)
	if err != nil {
		return ClaimTx{}, stageErr(StageBuild, err)
	}

	ix := solana.Instruction{
		ProgramID: d.programID,
		Accounts: []solana.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: miner.PublicKey, IsSigner: true, IsWritable: false},
			{Pubkey: receipt, IsSigner: false, IsWritable: true},
			{Pubkey: spec, IsSigner: false, IsWritable: false},
			{Pubkey: source, IsSigner: false, IsWritable: true},
			{Pubkey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		},
		Data: protocol.EncodeClaimInstruction(),
	}
	return ClaimTx{
		Tx: Tx{
			FeePayer:     payer,
			Instructions: []solana.Instruction{ix},
			Signers:      []solana.Keypair{miner.Keypair},
		},
		Miner:   miner.PublicKey,
		Receipt: receipt,
		Spec:    spec,
		Source:  source,
	}, nil
}

// BuildCreate assembles the instruction that registers a new (difficulty,
// reward) faucet. It returns the spec and source addresses it will create.
func (d Deriver) BuildCreate(payer solana.Pubkey, difficulty uint8, reward protocol.Lamports) (Tx, solana.Pubkey, solana.Pubkey, error) {
	spec, _, err := d.SpecAddress(difficulty, reward)
	if err != nil {
		return Tx{}, solana.Pubkey{}, solana.Pubkey{}, stageErr(StageBuild, err)
	}
	source, _, err := d.SourceAddress(spec)
	if err != nil {
		return Tx{}, solana.Pubkey{}, solana.Pubkey{}, stageErr(StageBuild, err)
	}
	ix := solana.Instruction{
		ProgramID: d.programID,
		Accounts: []solana.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: spec, IsSigner: false, IsWritable: true},
			{Pubkey: source, IsSigner: false, IsWritable: true},
			{Pubkey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		},
		Data: protocol.EncodeCreateInstruction(difficulty, reward),
	}
	return Tx{FeePayer: payer, Instructions: []solana.Instruction{ix}}, spec, source, nil
}

// BuildFund transfers lamports from payer into the faucet's source account.
func (d Deriver) BuildFund(payer solana.Pubkey, difficulty uint8, reward, lamports protocol.Lamports) (Tx, solana.Pubkey, error) {
	if lamports == 0 {
		return Tx{}, solana.Pubkey{}, stageErr(StageBuild, errors.New("fund amount must be positive"))
	}
	spec, _, err := d.SpecAddress(difficulty, reward)
	if err != nil {
		return Tx{}, solana.Pubkey{}, stageErr(StageBuild, err)
	}
	source, _, err := d.SourceAddress(spec)
	if err != nil {
		return Tx{}, solana.Pubkey{}, stageErr(StageBuild, err)
	}
	ix := solana.SystemTransfer(payer, source, uint64(lamports))
	return Tx{FeePayer: payer, Instructions: []solana.Instruction{ix}}, source, nil
}
