// Package candymachine models the Candy Machine v2 sale configuration and
// builds the instructions needed to mint from it.
package candymachine

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// ProgramID is the Candy Machine v2 program on mainnet and devnet.
var ProgramID = solana.MustPublicKeyFromBase58("cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ")

// TokenMetadataProgramID is the Metaplex token metadata program.
var TokenMetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// GatewayProgramID is the Civic gateway program used by gatekeeper networks.
var GatewayProgramID = solana.MustPublicKeyFromBase58("gatem74V238djXdzWnJf94Wo1DcnuGkfijbf3AuBhfs")

// EndSettingType selects how a sale ends.
type EndSettingType uint8

const (
	EndByDate EndSettingType = iota
	EndByAmount
)

// WhitelistMode controls whether the whitelist token is burned on mint.
type WhitelistMode uint8

const (
	BurnEveryTime WhitelistMode = iota
	NeverBurn
)

// EndSettings stops the sale at a unix timestamp or after a number of items.
type EndSettings struct {
	Type   EndSettingType
	Number uint64
}

// WhitelistSettings gates presale and discount eligibility on a token balance.
type WhitelistSettings struct {
	Mode          WhitelistMode
	Mint          solana.PublicKey
	Presale       bool
	DiscountPrice *uint64 `bin:"optional"`
}

// GatekeeperConfig is the identity gate (gateway token) configuration.
type GatekeeperConfig struct {
	Network     solana.PublicKey
	ExpireOnUse bool
}

// SaleConfig is the part of the on-chain state the mint engine reasons about.
type SaleConfig struct {
	Price           uint64
	TokenMint       *solana.PublicKey
	Whitelist       *WhitelistSettings
	EndSettings     *EndSettings
	Gatekeeper      *GatekeeperConfig
	GoLiveDate      *int64
	ItemsAvailable  uint64
	ItemsRedeemed   uint64
	RetainAuthority bool
}

// IsWhitelistOnly reports whether minting is restricted to whitelist holders:
// a whitelist without a discount price that is not a presale.
func (c SaleConfig) IsWhitelistOnly() bool {
	return c.Whitelist != nil && c.Whitelist.DiscountPrice == nil && !c.Whitelist.Presale
}

// GoLiveTime returns the go-live date as time, or nil when unset.
func (c SaleConfig) GoLiveTime() *time.Time {
	if c.GoLiveDate == nil {
		return nil
	}
	t := time.Unix(*c.GoLiveDate, 0).UTC()
	return &t
}

// State is a decoded candy machine account.
type State struct {
	Address   solana.PublicKey
	ProgramID solana.PublicKey
	Authority solana.PublicKey
	// Wallet receives native payments (or is the token treasury when TokenMint is set).
	Wallet    solana.PublicKey
	Symbol    string
	IsMutable bool
	Hidden    bool
	Config    SaleConfig
}

// CollectionPDA is the candy machine's collection account.
type CollectionPDA struct {
	Address      solana.PublicKey
	Mint         solana.PublicKey
	CandyMachine solana.PublicKey
}
