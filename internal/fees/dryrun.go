package fees

import "github.com/dashpay/drive-platform/internal/errs"

// Outcome is the verdict of a dry-run balance check.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeRejectedInsufficientProcessing
	OutcomeRejectedInsufficientStorage
)

// CheckBalance compares a dry-run fee quote against the payer's balance.
// If the payer cannot cover processing_fee alone, the transition is
// rejected outright with no penalty recorded (the caller never got far
// enough to spend any work). If they can cover processing but not
// processing+storage, the transition is rejected but a penalty is still
// charged because the executor did real work validating it up to this
// point.
func CheckBalance(res Result, balance uint64) Outcome {
	if balance < res.ProcessingFee {
		return OutcomeRejectedInsufficientProcessing
	}
	if balance < res.Total() {
		return OutcomeRejectedInsufficientStorage
	}
	return OutcomeAccepted
}

// PenaltyDecision describes what to charge when a dry run rejects a
// transition with OutcomeRejectedInsufficientStorage.
type PenaltyDecision struct {
	Penalty uint64
	Err     error
}

// Penalize builds the ConsensusError + penalty pair the executor applies:
// bump the nonce, debit a fixed penalty, no further state change.
func Penalize(penaltyAmount uint64) PenaltyDecision {
	return PenaltyDecision{
		Penalty: penaltyAmount,
		Err: errs.New(errs.KindInsufficientBalance, 3001,
			"payer cannot cover processing and storage fees; penalty charged and nonce bumped", nil),
	}
}

// RejectNoPenalty is returned when the payer cannot even cover the minimum
// processing fee: the transition is rejected with no state change at all
//.
func RejectNoPenalty() error {
	return errs.New(errs.KindInsufficientProcessingFee, 3000,
		"payer cannot cover minimum processing fee; rejected with no state change", nil)
}
