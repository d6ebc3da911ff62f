package engine

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/candymint/internal/budget"
	"github.com/rovshanmuradov/candymint/internal/candymachine"
	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

// TierSpec identifies one sale tier.
type TierSpec struct {
	Name         string
	CandyMachine solana.PublicKey
	ProgramID    solana.PublicKey
}

// TierStatus is a read-only view of a tier for callers.
type TierStatus struct {
	Name           string
	Snapshot       *eligibility.Snapshot
	Estimate       budget.Estimate
	HasCollection  bool
	Disabled       bool
	LastErr        *failure.Error
	MintInProgress bool
	PendingSetup   bool
}

// tierRuntime is the mutable state of one tier. Everything behind mu is
// replaced wholesale by refreshes; the snapshot itself is never mutated.
type tierRuntime struct {
	spec TierSpec
	orch *mintflow.Orchestrator

	mu          sync.RWMutex
	snapshot    *eligibility.Snapshot
	state       *candymachine.State
	collection  *candymachine.CollectionPDA
	estimate    budget.Estimate
	disabled    bool
	lastErr     *failure.Error
	mintStarted time.Time
}

func (rt *tierRuntime) store(snap eligibility.Snapshot, state *candymachine.State, coll *candymachine.CollectionPDA, est budget.Estimate) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.snapshot = &snap
	rt.state = state
	rt.collection = coll
	rt.estimate = est
	rt.disabled = false
	rt.lastErr = nil
}

func (rt *tierRuntime) fail(err *failure.Error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.lastErr = err
	if err.Kind == failure.ConfigNotFound {
		rt.disabled = true
	}
}

func (rt *tierRuntime) current() (eligibility.Snapshot, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.snapshot == nil {
		return eligibility.Snapshot{}, false
	}
	return *rt.snapshot, true
}

func (rt *tierRuntime) isDisabled() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.disabled
}

// applyOptimistic replaces the snapshot with its post-mint projection.
func (rt *tierRuntime) applyOptimistic() (eligibility.Snapshot, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.snapshot == nil {
		return eligibility.Snapshot{}, false
	}
	next := rt.snapshot.AfterMint()
	rt.snapshot = &next
	return next, true
}

func (rt *tierRuntime) plan(metadataCommitment rpc.CommitmentType) mintflow.Plan {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return mintflow.Plan{
		State:              rt.state,
		Collection:         rt.collection,
		Estimate:           rt.estimate,
		MetadataCommitment: metadataCommitment,
	}
}

func (rt *tierRuntime) markStarted(at time.Time) {
	rt.mu.Lock()
	rt.mintStarted = at
	rt.mu.Unlock()
}

func (rt *tierRuntime) startedAt() time.Time {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.mintStarted
}

func (rt *tierRuntime) status() TierStatus {
	rt.mu.RLock()
	st := TierStatus{
		Name:          rt.spec.Name,
		Estimate:      rt.estimate,
		HasCollection: rt.collection != nil,
		Disabled:      rt.disabled,
		LastErr:       rt.lastErr,
	}
	if rt.snapshot != nil {
		snap := *rt.snapshot
		st.Snapshot = &snap
	}
	rt.mu.RUnlock()

	st.MintInProgress = rt.orch.InProgress()
	st.PendingSetup = rt.orch.PendingSetup() != nil
	return st
}

// admit is the pre-flight check run before a session is started.
func admit(snap eligibility.Snapshot, now time.Time) *failure.Error {
	switch {
	case snap.IsSoldOut:
		return failure.New(failure.SoldOut, nil)
	case !snap.HasSufficientBalance:
		return failure.New(failure.InsufficientFunds, nil)
	case snap.IsActive:
		return nil
	case snap.SaleEndsAt != nil && snap.SaleEndsAt.Before(now):
		return &failure.Error{Kind: failure.Rejected, Message: "The sale has ended."}
	case snap.IsWhitelistOnly && !snap.IsWhitelisted:
		return &failure.Error{Kind: failure.Rejected, Message: "This sale is restricted to whitelist token holders."}
	default:
		return failure.New(failure.NotYetLive, nil)
	}
}
