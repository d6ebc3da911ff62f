// Package budget estimates the serialized size of a mint transaction.
//
// The estimate is a conservative heuristic, not a serializer: it may ask for
// a split that was not strictly needed, but must never let an oversized
// single transaction through to the ledger.
package budget

import "github.com/rovshanmuradov/candymint/internal/candymachine"

// Byte costs measured against the Candy Machine v2 mint transaction.
const (
	BaseBytes                = 892
	CollectionAuthorityBytes = 182
	PaymentMintBytes         = 66
	WhitelistBytes           = 34
	WhitelistBurnBytes       = 34
	GatekeeperBytes          = 33
	GatekeeperExpireBytes    = 66

	// DefaultLimit stays just under the 1232-byte packet ceiling.
	DefaultLimit uint32 = 1230
)

// Estimate is the result of sizing a mint transaction.
type Estimate struct {
	Bytes     uint32
	MustSplit bool
}

// Estimator sizes mint transactions against Limit.
type Estimator struct {
	Limit uint32
}

// New returns an Estimator; a zero limit falls back to DefaultLimit.
func New(limit uint32) Estimator {
	if limit == 0 {
		limit = DefaultLimit
	}
	return Estimator{Limit: limit}
}

// Estimate sizes the mint transaction for cfg. collectionAuthorityRetained
// is true when the collection PDA exists and the candy machine retains
// authority, which adds the set-collection instruction.
func (e Estimator) Estimate(cfg candymachine.SaleConfig, collectionAuthorityRetained bool) Estimate {
	size := uint32(BaseBytes)
	if collectionAuthorityRetained {
		size += CollectionAuthorityBytes
	}
	if cfg.TokenMint != nil {
		size += PaymentMintBytes
	}
	if cfg.Whitelist != nil {
		size += WhitelistBytes
		if cfg.Whitelist.Mode == candymachine.BurnEveryTime {
			size += WhitelistBurnBytes
		}
	}
	if cfg.Gatekeeper != nil {
		size += GatekeeperBytes
		if cfg.Gatekeeper.ExpireOnUse {
			size += GatekeeperExpireBytes
		}
	}

	limit := e.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	return Estimate{Bytes: size, MustSplit: size > limit}
}
