package market

import "errors"

// Kind classifies a rejected operation.
type Kind uint8

const (
	// KindUnknown marks errors that are not market rejections (storage failures).
	KindUnknown Kind = iota
	// KindAuthorization: the caller lacks the role or ownership required.
	KindAuthorization
	// KindState: the operation is invalid in the current lifecycle state.
	KindState
	// KindValue: an input is malformed or out of range.
	KindValue
	// KindResource: there is nothing (or not enough) to pay out or spend.
	KindResource
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "AuthorizationError"
	case KindState:
		return "StateError"
	case KindValue:
		return "ValueError"
	case KindResource:
		return "ResourceError"
	default:
		return "UnknownError"
	}
}

// Error is a classified market rejection. Every rejection leaves state unchanged.
type Error struct {
	Kind Kind   // Kind is the error class
	Code string // Code is the stable name used on the wire
}

func (e *Error) Error() string {
	return e.Code
}

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Authorization errors.
var (
	ErrUnauthorized = newError(KindAuthorization, "Unauthorized")
	ErrNotSeller    = newError(KindAuthorization, "NotSeller")
	ErrNotHead      = newError(KindAuthorization, "NotHead")
	ErrNotAVerifier = newError(KindAuthorization, "NotAVerifier")
	ErrNotWorker    = newError(KindAuthorization, "NotWorker")
	ErrNotREP       = newError(KindAuthorization, "NotREP")
)

// State errors.
var (
	ErrAuctionNotActive     = newError(KindState, "AuctionNotActive")
	ErrAlreadyEnded         = newError(KindState, "AlreadyEnded")
	ErrAlreadyRegistered    = newError(KindState, "AlreadyRegistered")
	ErrAlreadyVoted         = newError(KindState, "AlreadyVoted")
	ErrAlreadyVerified      = newError(KindState, "AlreadyVerified")
	ErrAlreadySubmitted     = newError(KindState, "AlreadySubmitted")
	ErrAuctionNotEnded      = newError(KindState, "AuctionNotEnded")
	ErrDeliveryNotConfirmed = newError(KindState, "DeliveryNotConfirmed")
	ErrAlreadySettled       = newError(KindState, "AlreadySettled")
	ErrAuctionInProgress    = newError(KindState, "AuctionInProgress")
	ErrTaskOpen             = newError(KindState, "TaskOpen")
	ErrTaskClosed           = newError(KindState, "TaskClosed")
	ErrTaskFull             = newError(KindState, "TaskFull")
	ErrTooEarly             = newError(KindState, "TooEarly")
	ErrNotFound             = newError(KindState, "NotFound")
	ErrCorruptLineage       = newError(KindState, "CorruptLineage")
	ErrReplayedCall         = newError(KindState, "ReplayedCall")
)

// Value errors.
var (
	ErrInvalidTimeframe = newError(KindValue, "InvalidTimeframe")
	ErrBidTooLow        = newError(KindValue, "BidTooLow")
	ErrInvalidAsset     = newError(KindValue, "InvalidAsset")
	ErrInvalidVote      = newError(KindValue, "InvalidVote")
	ErrInvalidQuorum    = newError(KindValue, "InvalidQuorum")
	ErrInvalidScore     = newError(KindValue, "InvalidScore")
	ErrUnknownFunction  = newError(KindValue, "UnknownFunction")
	ErrMalformedArgs    = newError(KindValue, "MalformedArgs")
)

// Resource errors.
var (
	ErrNoBalance                        = newError(KindResource, "NoBalance")
	ErrNoFundsToWithdraw                = newError(KindResource, "NoFundsToWithdraw")
	ErrCannotWithdrawWhileHighestBidder = newError(KindResource, "CannotWithdrawWhileHighestBidder")
	ErrInsufficientFunds                = newError(KindResource, "InsufficientFunds")
)

// KindOf returns the class of err, or KindUnknown if it is not a market rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// CodeOf returns the rejection code of err, or "" if it is not a market rejection.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ""
}
