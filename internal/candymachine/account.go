package candymachine

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	// ErrInvalidAccount is returned when account data is not a candy machine.
	ErrInvalidAccount = errors.New("account is not a candy machine")

	candyMachineDiscriminator  = accountDiscriminator("CandyMachine")
	collectionPDADiscriminator = accountDiscriminator("CollectionPDA")
)

// accountDiscriminator is the Anchor account prefix: sha256("account:<Name>")[:8].
func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// instructionDiscriminator is the Anchor instruction prefix: sha256("global:<name>")[:8].
func instructionDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

type creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

type hiddenSettings struct {
	Name string
	URI  string
	Hash [32]byte
}

type candyMachineData struct {
	UUID                  string
	Price                 uint64
	Symbol                string
	SellerFeeBasisPoints  uint16
	MaxSupply             uint64
	IsMutable             bool
	RetainAuthority       bool
	GoLiveDate            *int64       `bin:"optional"`
	EndSettings           *EndSettings `bin:"optional"`
	Creators              []creator
	HiddenSettings        *hiddenSettings    `bin:"optional"`
	WhitelistMintSettings *WhitelistSettings `bin:"optional"`
	ItemsAvailable        uint64
	Gatekeeper            *GatekeeperConfig `bin:"optional"`
}

// candyMachineAccount is the Borsh layout of the account header; config
// lines that follow it are not read.
type candyMachineAccount struct {
	Discriminator [8]byte
	Authority     solana.PublicKey
	Wallet        solana.PublicKey
	TokenMint     *solana.PublicKey `bin:"optional"`
	ItemsRedeemed uint64
	Data          candyMachineData
}

type collectionPDAAccount struct {
	Discriminator [8]byte
	Mint          solana.PublicKey
	CandyMachine  solana.PublicKey
}

// Decode parses raw candy machine account data.
func Decode(address, programID solana.PublicKey, data []byte) (*State, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], candyMachineDiscriminator[:]) {
		return nil, fmt.Errorf("%s: %w", address, ErrInvalidAccount)
	}

	var acct candyMachineAccount
	if err := bin.NewBorshDecoder(data).Decode(&acct); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", address, ErrInvalidAccount, err)
	}

	d := acct.Data
	return &State{
		Address:   address,
		ProgramID: programID,
		Authority: acct.Authority,
		Wallet:    acct.Wallet,
		Symbol:    d.Symbol,
		IsMutable: d.IsMutable,
		Hidden:    d.HiddenSettings != nil,
		Config: SaleConfig{
			Price:           d.Price,
			TokenMint:       acct.TokenMint,
			Whitelist:       d.WhitelistMintSettings,
			EndSettings:     d.EndSettings,
			Gatekeeper:      d.Gatekeeper,
			GoLiveDate:      d.GoLiveDate,
			ItemsAvailable:  d.ItemsAvailable,
			ItemsRedeemed:   acct.ItemsRedeemed,
			RetainAuthority: d.RetainAuthority,
		},
	}, nil
}

// DecodeCollectionPDA parses the collection PDA account.
func DecodeCollectionPDA(address solana.PublicKey, data []byte) (*CollectionPDA, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], collectionPDADiscriminator[:]) {
		return nil, fmt.Errorf("collection pda %s: unexpected discriminator", address)
	}
	var acct collectionPDAAccount
	if err := bin.NewBorshDecoder(data).Decode(&acct); err != nil {
		return nil, fmt.Errorf("collection pda %s: %w", address, err)
	}
	return &CollectionPDA{
		Address:      address,
		Mint:         acct.Mint,
		CandyMachine: acct.CandyMachine,
	}, nil
}

// Encode serializes st back into the on-chain account layout. Fields the
// engine does not track (uuid, creators, hidden settings contents) are
// written empty. It is used to seed fixtures for local validators and tests.
func Encode(st *State) ([]byte, error) {
	cfg := st.Config
	acct := candyMachineAccount{
		Discriminator: candyMachineDiscriminator,
		Authority:     st.Authority,
		Wallet:        st.Wallet,
		TokenMint:     cfg.TokenMint,
		ItemsRedeemed: cfg.ItemsRedeemed,
		Data: candyMachineData{
			Price:                 cfg.Price,
			Symbol:                st.Symbol,
			IsMutable:             st.IsMutable,
			RetainAuthority:       cfg.RetainAuthority,
			GoLiveDate:            cfg.GoLiveDate,
			EndSettings:           cfg.EndSettings,
			WhitelistMintSettings: cfg.Whitelist,
			ItemsAvailable:        cfg.ItemsAvailable,
			Gatekeeper:            cfg.Gatekeeper,
		},
	}
	if st.Hidden {
		acct.Data.HiddenSettings = &hiddenSettings{}
	}

	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(acct); err != nil {
		return nil, fmt.Errorf("encode candy machine: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeCollectionPDA serializes a collection PDA account.
func EncodeCollectionPDA(c *CollectionPDA) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := bin.NewBorshEncoder(buf).Encode(collectionPDAAccount{
		Discriminator: collectionPDADiscriminator,
		Mint:          c.Mint,
		CandyMachine:  c.CandyMachine,
	})
	if err != nil {
		return nil, fmt.Errorf("encode collection pda: %w", err)
	}
	return buf.Bytes(), nil
}
