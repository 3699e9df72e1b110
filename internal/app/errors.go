package app

import errorsmod "cosmossdk.io/errors"

// Codespace for registered engine errors.
const Codespace = "skillmine"

// Validation errors: malformed input, rejected with no state mutated.
var (
	ErrInvalidRequest = errorsmod.Register(Codespace, 2, "invalid request")
	ErrInvalidSquare  = errorsmod.Register(Codespace, 3, "square out of range")
	ErrWrongPhase     = errorsmod.Register(Codespace, 4, "operation outside its phase window")
)

// Precondition errors: well-formed input against the wrong state,
// rejected with no state mutated.
var (
	ErrRoundNotFound       = errorsmod.Register(Codespace, 5, "round not found")
	ErrStaleRound          = errorsmod.Register(Codespace, 6, "stale round reference")
	ErrMinerNotFound       = errorsmod.Register(Codespace, 7, "miner not found")
	ErrNotStaked           = errorsmod.Register(Codespace, 8, "no stake deployed this round")
	ErrDuplicateCommit     = errorsmod.Register(Codespace, 9, "commitment already submitted this round")
	ErrNoCommitment        = errorsmod.Register(Codespace, 10, "no commitment for this round")
	ErrAlreadyRevealed     = errorsmod.Register(Codespace, 11, "already revealed this round")
	ErrCommitMismatch      = errorsmod.Register(Codespace, 12, "commitment verification failed")
	ErrDuplicatePrediction = errorsmod.Register(Codespace, 13, "prediction already submitted this round")
	ErrUnsettledRound      = errorsmod.Register(Codespace, 14, "previous round not checkpointed")
	ErrRoundActive         = errorsmod.Register(Codespace, 15, "round still active")
	ErrInsufficientFunds   = errorsmod.Register(Codespace, 16, "insufficient funds")
	ErrUnauthorized        = errorsmod.Register(Codespace, 17, "unauthorized")
	ErrNothingToClaim      = errorsmod.Register(Codespace, 18, "nothing to claim")
)

// ErrInvariant marks arithmetic overflow or corrupted bookkeeping. The
// transaction aborts with no partial mutation; it is never recovered
// from internally.
var ErrInvariant = errorsmod.Register(Codespace, 19, "invariant violation")
