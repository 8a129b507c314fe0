package faucet

import (
	"errors"
	"fmt"
)

// Stage names the step of the mining flow that failed.
type Stage string

const (
	StageQuery  Stage = "query"
	StageGrind  Stage = "grind"
	StageBuild  Stage = "build"
	StageSubmit Stage = "submit"
)

var (
	// ErrAlreadyClaimed means the receipt for (miner, difficulty) already exists.
	// Pick another faucet or grind a new key.
	ErrAlreadyClaimed = errors.New("receipt already exists for this key and difficulty")
	// ErrFaucetEmpty means the source account cannot cover the reward. Wait for funding.
	ErrFaucetEmpty = errors.New("faucet source balance below reward")
	// ErrInsufficientFeeBalance means the payer cannot cover transaction fees or
	// the receipt account's rent. Top up the payer.
	ErrInsufficientFeeBalance = errors.New("payer balance cannot cover fees and receipt rent")
	ErrTransactionFailed      = errors.New("transaction failed on chain")
	ErrConfirmTimeout         = errors.New("timed out waiting for confirmation")
	ErrNoFaucet               = errors.New("no matching faucet")
)

// StageError tags an error with the stage that produced it so callers can decide
// whether to retry that stage or restart from listing.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or "" if there is none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
