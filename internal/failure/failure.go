// Package failure maps low-level ledger and program errors into the closed
// taxonomy shown to users.
package failure

import (
	"errors"
	"fmt"
)

// Kind is a stable failure category.
type Kind string

const (
	ConfigNotFound       Kind = "config_not_found"
	NetworkUnavailable   Kind = "network_unavailable"
	InsufficientFunds    Kind = "insufficient_funds"
	SoldOut              Kind = "sold_out"
	NotYetLive           Kind = "not_yet_live"
	AmbiguousMintOutcome Kind = "ambiguous_mint_outcome"
	SubmissionTimeout    Kind = "submission_timeout"
	Rejected             Kind = "rejected"
)

// Retryable reports whether the user can simply try again.
func (k Kind) Retryable() bool {
	switch k {
	case NetworkUnavailable, SubmissionTimeout, Rejected:
		return true
	default:
		return false
	}
}

// Error is a classified failure. Message is user-facing.
type Error struct {
	Kind    Kind
	Message string
	// Code is the program error code, 0 when none was found.
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: SoldOut}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a classified error with the default message for kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: DefaultMessage(kind), Err: err}
}

// KindOf returns the kind of a classified error, or "" when err is not one.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// DefaultMessage returns the user-facing text for kind.
func DefaultMessage(kind Kind) string {
	switch kind {
	case ConfigNotFound:
		return "Couldn't fetch candy machine state. Check the candy machine id and the RPC endpoint."
	case NetworkUnavailable:
		return "Couldn't reach the RPC endpoint. Retrying shortly."
	case InsufficientFunds:
		return "Insufficient funds to mint. Please fund your wallet."
	case SoldOut:
		return "SOLD OUT!"
	case NotYetLive:
		return "Minting period hasn't started yet."
	case AmbiguousMintOutcome:
		return "Mint likely failed! Anti-bot fee potentially charged! Check the explorer to confirm the mint failed and if so, make sure you are eligible to mint before trying again."
	case SubmissionTimeout:
		return "Transaction timeout! Please try again."
	default:
		return "Minting failed! Please try again!"
	}
}
