package candymachine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// FindCreatorPDA derives the candy machine creator authority and its bump.
func FindCreatorPDA(candyMachine, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte("candy_machine"), candyMachine.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive creator pda: %w", err)
	}
	return addr, bump, nil
}

// FindCollectionPDA derives the collection PDA of a candy machine.
func FindCollectionPDA(candyMachine, programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("collection"), candyMachine.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive collection pda: %w", err)
	}
	return addr, nil
}

// FindMetadata derives the token metadata account of a mint.
func FindMetadata(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), TokenMetadataProgramID.Bytes(), mint.Bytes()},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata: %w", err)
	}
	return addr, nil
}

// FindMasterEdition derives the master edition account of a mint.
func FindMasterEdition(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), TokenMetadataProgramID.Bytes(), mint.Bytes(), []byte("edition")},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive master edition: %w", err)
	}
	return addr, nil
}

// FindCollectionAuthorityRecord derives the delegate record letting the
// collection PDA set the collection on newly minted items.
func FindCollectionAuthorityRecord(collectionMint, authority solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			TokenMetadataProgramID.Bytes(),
			collectionMint.Bytes(),
			[]byte("collection_authority"),
			authority.Bytes(),
		},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive collection authority record: %w", err)
	}
	return addr, nil
}

// FindGatewayToken derives the wallet's gateway token for a gatekeeper network.
func FindGatewayToken(wallet, network solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet.Bytes(), []byte("gateway"), make([]byte, 8), network.Bytes()},
		GatewayProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive gateway token: %w", err)
	}
	return addr, nil
}

// FindNetworkExpire derives the gatekeeper network expire feature account.
func FindNetworkExpire(network solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{network.Bytes(), []byte("expire")},
		GatewayProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive network expire: %w", err)
	}
	return addr, nil
}
