package candymachine

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

const (
	// MintAccountSize is the SPL token mint account length.
	MintAccountSize = 82
	// MintAccountRent is the rent-exempt minimum for an 82-byte account.
	MintAccountRent = 1_461_600
)

var (
	mintNFTDiscriminator       = instructionDiscriminator("mint_nft")
	setCollectionDiscriminator = instructionDiscriminator("set_collection_during_mint")
)

// MintParams describes one mint transaction.
type MintParams struct {
	State *State
	// Collection is set when the collection PDA exists and the candy machine
	// retains authority; a set_collection_during_mint instruction is appended.
	Collection *CollectionPDA
	Payer      solana.PublicKey
	Mint       solana.PublicKey
}

// MintAccounts are the addresses created or touched by a mint.
type MintAccounts struct {
	Mint          solana.PublicKey
	TokenAccount  solana.PublicKey
	Metadata      solana.PublicKey
	MasterEdition solana.PublicKey
}

type mintNFTArgs struct {
	Discriminator [8]byte
	CreatorBump   uint8
}

type setCollectionArgs struct {
	Discriminator [8]byte
}

func encodeArgs(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode instruction data: %w", err)
	}
	return buf.Bytes(), nil
}

// SetupInstructions creates and initialises the new mint, the payer's
// associated token account, and mints the single token into it.
func SetupInstructions(payer, mint solana.PublicKey) ([]solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(payer, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive ATA: %w", err)
	}

	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			MintAccountRent,
			MintAccountSize,
			solana.TokenProgramID,
			payer,
			mint,
		).Build(),
		token.NewInitializeMintInstruction(
			0,
			payer,
			payer,
			mint,
			solana.SysVarRentPubkey,
		).Build(),
		associatedtokenaccount.NewCreateInstruction(
			payer, // payer
			payer, // owner
			mint,  // mint
		).Build(),
		token.NewMintToInstruction(
			1,
			mint,
			ata,
			payer,
			[]solana.PublicKey{},
		).Build(),
	}, nil
}

// MintInstructions builds mint_nft (and set_collection_during_mint when
// applicable). The mint account must already exist or be created by
// SetupInstructions in the same transaction.
func MintInstructions(p MintParams) ([]solana.Instruction, MintAccounts, error) {
	if p.State == nil {
		return nil, MintAccounts{}, fmt.Errorf("candy machine state is required")
	}
	st := p.State
	cfg := st.Config

	creator, bump, err := FindCreatorPDA(st.Address, st.ProgramID)
	if err != nil {
		return nil, MintAccounts{}, err
	}
	metadata, err := FindMetadata(p.Mint)
	if err != nil {
		return nil, MintAccounts{}, err
	}
	masterEdition, err := FindMasterEdition(p.Mint)
	if err != nil {
		return nil, MintAccounts{}, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(p.Payer, p.Mint)
	if err != nil {
		return nil, MintAccounts{}, fmt.Errorf("failed to derive ATA: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(st.Address).WRITE(),
		solana.Meta(creator),
		solana.Meta(p.Payer).SIGNER(),
		solana.Meta(st.Wallet).WRITE(),
		solana.Meta(metadata).WRITE(),
		solana.Meta(p.Mint).WRITE(),
		solana.Meta(p.Payer).SIGNER(), // mint authority
		solana.Meta(p.Payer).SIGNER(), // update authority
		solana.Meta(masterEdition).WRITE(),
		solana.Meta(TokenMetadataProgramID),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SysVarClockPubkey),
		solana.Meta(solana.SysVarSlotHashesPubkey),
		solana.Meta(solana.SysVarInstructionsPubkey),
	}

	remaining, err := remainingAccounts(cfg, p.Payer)
	if err != nil {
		return nil, MintAccounts{}, err
	}
	accounts = append(accounts, remaining...)

	data, err := encodeArgs(mintNFTArgs{Discriminator: mintNFTDiscriminator, CreatorBump: bump})
	if err != nil {
		return nil, MintAccounts{}, err
	}

	instructions := []solana.Instruction{
		solana.NewInstruction(st.ProgramID, accounts, data),
	}

	if p.Collection != nil && cfg.RetainAuthority {
		ix, err := setCollectionInstruction(st, p.Collection, p.Payer, metadata)
		if err != nil {
			return nil, MintAccounts{}, err
		}
		instructions = append(instructions, ix)
	}

	return instructions, MintAccounts{
		Mint:          p.Mint,
		TokenAccount:  ata,
		Metadata:      metadata,
		MasterEdition: masterEdition,
	}, nil
}

// remainingAccounts appends the optional accounts in the order the program
// reads them: gatekeeper, whitelist, payment token.
func remainingAccounts(cfg SaleConfig, payer solana.PublicKey) (solana.AccountMetaSlice, error) {
	var out solana.AccountMetaSlice

	if gk := cfg.Gatekeeper; gk != nil {
		gatewayToken, err := FindGatewayToken(payer, gk.Network)
		if err != nil {
			return nil, err
		}
		out = append(out, solana.Meta(gatewayToken).WRITE())
		if gk.ExpireOnUse {
			expire, err := FindNetworkExpire(gk.Network)
			if err != nil {
				return nil, err
			}
			out = append(out, solana.Meta(GatewayProgramID), solana.Meta(expire))
		}
	}

	if wl := cfg.Whitelist; wl != nil {
		wlToken, _, err := solana.FindAssociatedTokenAddress(payer, wl.Mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive whitelist ATA: %w", err)
		}
		out = append(out, solana.Meta(wlToken).WRITE())
		if wl.Mode == BurnEveryTime {
			out = append(out, solana.Meta(wl.Mint).WRITE(), solana.Meta(payer).SIGNER())
		}
	}

	if cfg.TokenMint != nil {
		payToken, _, err := solana.FindAssociatedTokenAddress(payer, *cfg.TokenMint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive payment ATA: %w", err)
		}
		out = append(out, solana.Meta(payToken).WRITE(), solana.Meta(payer).SIGNER())
	}

	return out, nil
}

func setCollectionInstruction(st *State, coll *CollectionPDA, payer, metadata solana.PublicKey) (solana.Instruction, error) {
	collMetadata, err := FindMetadata(coll.Mint)
	if err != nil {
		return nil, err
	}
	collEdition, err := FindMasterEdition(coll.Mint)
	if err != nil {
		return nil, err
	}
	authorityRecord, err := FindCollectionAuthorityRecord(coll.Mint, coll.Address)
	if err != nil {
		return nil, err
	}

	data, err := encodeArgs(setCollectionArgs{Discriminator: setCollectionDiscriminator})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(st.Address),
		solana.Meta(metadata),
		solana.Meta(payer).SIGNER(),
		solana.Meta(coll.Address).WRITE(),
		solana.Meta(TokenMetadataProgramID),
		solana.Meta(solana.SysVarInstructionsPubkey),
		solana.Meta(coll.Mint),
		solana.Meta(collMetadata),
		solana.Meta(collEdition),
		solana.Meta(st.Authority),
		solana.Meta(authorityRecord),
	}
	return solana.NewInstruction(st.ProgramID, accounts, data), nil
}
