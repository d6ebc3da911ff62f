// Package eligibility derives a point-in-time admission decision for one
// sale tier from its candy machine configuration and the wallet's balances.
package eligibility

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/candymint/internal/candymachine"
)

// Balance is the outcome of one balance query. Err is set when the query
// failed; a missing token account is reported as Amount 0 without error.
type Balance struct {
	Amount uint64
	Err    error
}

// OK reports whether the query succeeded.
func (b Balance) OK() bool { return b.Err == nil }

// WalletContext is the connected wallet as seen by one refresh.
type WalletContext struct {
	Owner  solana.PublicKey
	Native Balance
	// Payment is the balance of the sale's payment mint; nil when the sale is priced in SOL.
	Payment *Balance
	// Whitelist is the balance of the whitelist mint; nil when no whitelist is configured.
	Whitelist *Balance
}

// Snapshot is an immutable eligibility decision. A new value is produced on
// every refresh; optimistic updates go through AfterMint.
type Snapshot struct {
	Tier                 string            `json:"tier"`
	IsLive               bool              `json:"is_live"`
	IsPresale            bool              `json:"is_presale"`
	IsWhitelisted        bool              `json:"is_whitelisted"`
	IsWhitelistOnly      bool              `json:"is_whitelist_only"`
	DiscountPrice        *uint64           `json:"discount_price,omitempty"`
	EffectivePrice       uint64            `json:"effective_price"`
	PaymentMint          *solana.PublicKey `json:"payment_mint,omitempty"`
	HasSufficientBalance bool              `json:"has_sufficient_balance"`
	ItemsAvailable       uint64            `json:"items_available"`
	ItemsRedeemed        uint64            `json:"items_redeemed"`
	RemainingItems       uint64            `json:"remaining_items"`
	IsSoldOut            bool              `json:"is_sold_out"`
	IsActive             bool              `json:"is_active"`
	GoLiveAt             *time.Time        `json:"go_live_at,omitempty"`
	SaleEndsAt           *time.Time        `json:"sale_ends_at,omitempty"`
	EvaluatedAt          time.Time         `json:"evaluated_at"`
}

// AfterMint returns the snapshot as it should look right after one
// confirmed mint, ahead of the next ledger refresh.
func (s Snapshot) AfterMint() Snapshot {
	out := s
	if out.RemainingItems > 0 {
		out.RemainingItems--
	}
	out.ItemsRedeemed++
	out.IsSoldOut = out.RemainingItems == 0
	out.IsActive = s.IsActive && !out.IsSoldOut
	return out
}

// Evaluate applies the admission rules in order; later rules override
// earlier ones.
func Evaluate(tier string, cfg candymachine.SaleConfig, wallet WalletContext, now time.Time) Snapshot {
	nowUnix := now.Unix()
	snap := Snapshot{
		Tier:           tier,
		PaymentMint:    cfg.TokenMint,
		ItemsAvailable: cfg.ItemsAvailable,
		ItemsRedeemed:  cfg.ItemsRedeemed,
		GoLiveAt:       cfg.GoLiveTime(),
		EvaluatedAt:    now.UTC(),
	}

	// 1. go-live
	isLive := cfg.GoLiveDate != nil && *cfg.GoLiveDate <= nowUnix
	active := isLive
	snap.IsLive = isLive

	// 2. whitelist
	var discount *uint64
	if wl := cfg.Whitelist; wl != nil {
		snap.IsPresale = wl.Presale && (cfg.GoLiveDate == nil || *cfg.GoLiveDate > nowUnix)

		if wl.DiscountPrice != nil {
			d := *wl.DiscountPrice
			discount = &d
		}
		snap.IsWhitelistOnly = cfg.IsWhitelistOnly()

		if wallet.Whitelist == nil || !wallet.Whitelist.OK() {
			// fail closed
			snap.IsWhitelisted = false
			if snap.IsWhitelistOnly {
				active = false
			}
		} else {
			snap.IsWhitelisted = wallet.Whitelist.Amount > 0
			if snap.IsWhitelistOnly {
				active = snap.IsWhitelisted && (snap.IsPresale || active)
			} else if snap.IsPresale && snap.IsWhitelisted {
				active = true
			}
		}
	}
	snap.DiscountPrice = discount

	// 3. price is re-resolved once whitelist status is known
	snap.EffectivePrice = cfg.Price
	if snap.IsWhitelisted && discount != nil {
		snap.EffectivePrice = *discount
	}

	// 4. balance against the configured payment asset
	bal := wallet.Native
	if cfg.TokenMint != nil {
		if wallet.Payment == nil {
			bal = Balance{Err: errPaymentBalanceMissing}
		} else {
			bal = *wallet.Payment
		}
	}
	if bal.OK() {
		snap.HasSufficientBalance = bal.Amount >= snap.EffectivePrice
	}
	active = active && snap.HasSufficientBalance

	// 5. date-based end
	if end := cfg.EndSettings; end != nil && end.Type == candymachine.EndByDate {
		endsAt := time.Unix(int64(end.Number), 0).UTC()
		snap.SaleEndsAt = &endsAt
		if int64(end.Number) < nowUnix {
			active = false
		}
	}

	// 6. remaining items
	if end := cfg.EndSettings; end != nil && end.Type == candymachine.EndByAmount {
		limit := end.Number
		if cfg.ItemsAvailable < limit {
			limit = cfg.ItemsAvailable
		}
		snap.RemainingItems = saturatingSub(limit, cfg.ItemsRedeemed)
	} else {
		snap.RemainingItems = saturatingSub(cfg.ItemsAvailable, cfg.ItemsRedeemed)
	}
	snap.IsSoldOut = snap.RemainingItems == 0

	// 7. sold out closes the sale
	if snap.IsSoldOut {
		active = false
	}

	snap.IsActive = active
	return snap
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
