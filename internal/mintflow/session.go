// Package mintflow sequences the setup and mint transactions of one mint
// attempt and reports every state transition.
package mintflow

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"

	"github.com/rovshanmuradov/candymint/internal/budget"
	"github.com/rovshanmuradov/candymint/internal/candymachine"
	"github.com/rovshanmuradov/candymint/internal/failure"
)

// State is a step of a mint session.
type State int

const (
	Idle State = iota
	AwaitingSetupSignature
	SetupSubmitted
	AwaitingMintSignature
	MintSubmitted
	Confirmed
	Failed
	// Ambiguous: the mint transaction confirmed but the metadata account was
	// not observed, so the fee may have been charged without a mint.
	Ambiguous
)

var stateNames = map[State]string{
	Idle:                   "idle",
	AwaitingSetupSignature: "awaiting_setup_signature",
	SetupSubmitted:         "setup_submitted",
	AwaitingMintSignature:  "awaiting_mint_signature",
	MintSubmitted:          "mint_submitted",
	Confirmed:              "confirmed",
	Failed:                 "failed",
	Ambiguous:              "ambiguous",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == Confirmed || s == Failed || s == Ambiguous
}

// Event is emitted once per state transition.
type Event struct {
	Tier      string
	SessionID uuid.UUID
	State     State
	// Signature is set on SetupSubmitted, MintSubmitted and the terminal
	// states that follow a mint submission.
	Signature solana.Signature
	// Mint is the address of the token being minted.
	Mint solana.PublicKey
	Err  *failure.Error
	At   time.Time
}

// SetupHandle is a confirmed setup transaction whose mint account has not yet
// been consumed by a mint transaction.
type SetupHandle struct {
	Mint      solana.PrivateKey
	Signature solana.Signature
}

// Plan is what a session needs to know about the tier at start time.
type Plan struct {
	State      *candymachine.State
	Collection *candymachine.CollectionPDA
	Estimate   budget.Estimate
	// MetadataCommitment is used for the post-mint metadata existence read.
	MetadataCommitment rpc.CommitmentType
}

// Signer signs transactions on behalf of the connected wallet.
type Signer interface {
	PublicKey() solana.PublicKey
	// SignTransaction adds the wallet signature plus any cosigner signatures.
	SignTransaction(ctx context.Context, tx *solana.Transaction, cosigners ...solana.PrivateKey) error
}

// Hooks are invoked when a session settles. OnTerminal always runs exactly
// once; OnMinted and OnSettled are skipped when the session was cancelled.
type Hooks struct {
	OnTerminal func(ev Event)
	// OnMinted runs after a Confirmed terminal.
	OnMinted func(ctx context.Context, ev Event)
	// OnSettled runs after Failed or Ambiguous.
	OnSettled func(ctx context.Context, ev Event)
}
