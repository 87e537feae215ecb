// Package errs declares the platform's error-kind taxonomy and the
// consensus/fatal split: consensus errors are recovered locally by
// rejecting a transition, fatal errors stop the process rather than risk
// a divergent root hash.
package errs

import "fmt"

// Kind identifies one of the abstract error kinds a component can raise.
type Kind string

const (
	KindProtocolVersion         Kind = "ProtocolVersion"
	KindStructure               Kind = "Structure"
	KindInvalidArgument         Kind = "InvalidArgument"
	KindNotFound                Kind = "NotFound"
	KindAlreadyExists           Kind = "AlreadyExists"
	KindSignature                Kind = "Signature"
	KindAuthorization            Kind = "Authorization"
	KindNonceAlreadyPresentAtTip Kind = "NonceAlreadyPresentAtTip"
	KindNonceAlreadyPresentInPast Kind = "NonceAlreadyPresentInPast"
	KindNonceTooFarInFuture      Kind = "NonceTooFarInFuture"
	KindNonceTooFarInPast        Kind = "NonceTooFarInPast"
	KindInsufficientBalance      Kind = "InsufficientBalance"
	KindInsufficientProcessingFee Kind = "InsufficientProcessingFee"
	KindDuplicateUniqueIndex     Kind = "DuplicateUniqueIndex"
	KindContestedResourceIndex   Kind = "ContestedResourceIndex"
	KindRecipientIdentityDoesNotExist Kind = "RecipientIdentityDoesNotExist"
	KindTokenMintPastMaxSupply   Kind = "TokenMintPastMaxSupply"
	KindNumericOverflow          Kind = "NumericOverflow"
	KindUnauthorizedTokenAction  Kind = "UnauthorizedTokenAction"
	KindProofVerification        Kind = "ProofVerification"
	KindStaleNode                Kind = "StaleNode"
	KindCorruptedCachedState     Kind = "CorruptedCachedState"
	KindCorruptedDriveState      Kind = "CorruptedDriveState"
	KindUnknownVersionMismatch   Kind = "UnknownVersionMismatch"
)

// ConsensusError is attributable to a malformed or inadmissible transition.
// The executor recovers locally: reject the transition, bump its nonce,
// charge a penalty. Never aborts a block in progress.
type ConsensusError struct {
	Kind    Kind
	Code    int
	Message string
	// Detail is an opaque, base64-CBOR-ish blob in production; here it is
	// kept as a plain map so callers can inspect it without a codec.
	Detail map[string]any
}

func (e *ConsensusError) Error() string {
	return fmt.Sprintf("%s (code %d): %s", e.Kind, e.Code, e.Message)
}

// New builds a ConsensusError. code is the stable numeric code surfaced to
// the consensus driver.
func New(kind Kind, code int, message string, detail map[string]any) *ConsensusError {
	return &ConsensusError{Kind: kind, Code: code, Message: message, Detail: detail}
}

// NonceAlreadyPresentInPast carries the distance between the candidate
// nonce and the stored tip.
func NonceAlreadyPresentInPast(delta uint64) *ConsensusError {
	return New(KindNonceAlreadyPresentInPast, 4002, "nonce already present in past", map[string]any{"delta": delta})
}

// StaleNode signals that a query's observed height lags the caller's
// last-seen height by more than the allowed tolerance.
type StaleNode struct {
	Expected  uint64
	Received  uint64
	Tolerance uint64
}

func (e *StaleNode) Error() string {
	return fmt.Sprintf("stale node: expected >= %d, received %d, tolerance %d", e.Expected, e.Received, e.Tolerance)
}

// FatalError represents store corruption or an internal invariant
// violation. The block must not commit and the process must exit.
type FatalError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fatal (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("fatal (%s): %s", e.Kind, e.Message)
}

func (e *FatalError) Unwrap() error { return e.Cause }

func Fatal(kind Kind, message string, cause error) *FatalError {
	return &FatalError{Kind: kind, Message: message, Cause: cause}
}

// Wrap adds context to an error message, returning nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
