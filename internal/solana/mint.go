package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// TokenProgram is the SPL Token program ID.
const TokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// AssociatedTokenProgram is the SPL Associated Token Account program ID.
const AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"

// tokenAccountSize is the serialized size of an SPL token account.
const tokenAccountSize = 165

// mintAccountSize is the serialized size of an SPL mint account.
const mintAccountSize = 82

// MintAccount is the decoded state of an SPL Token mint account.
type MintAccount struct {
	MintAuthority   string // base58, empty if revoked
	Supply          uint64
	Decimals        int
	Initialized     bool
	FreezeAuthority string // base58, empty if revoked
}

// DecodeMintAccount decodes the base64 data of an SPL mint account.
//
// Layout: COption<Pubkey> mint_authority (4+32), u64 supply, u8 decimals,
// bool is_initialized, COption<Pubkey> freeze_authority (4+32).
func DecodeMintAccount(dataBase64 string) (*MintAccount, error) {
	data, err := base64.StdEncoding.DecodeString(dataBase64)
	if err != nil {
		return nil, fmt.Errorf("decode mint account data: %w", err)
	}
	if len(data) < mintAccountSize {
		return nil, fmt.Errorf("mint account data too short: %d bytes", len(data))
	}

	m := &MintAccount{}

	if binary.LittleEndian.Uint32(data[0:4]) == 1 {
		m.MintAuthority = EncodePubkey(data[4:36])
	}
	m.Supply = binary.LittleEndian.Uint64(data[36:44])
	m.Decimals = int(data[44])
	m.Initialized = data[45] == 1
	if binary.LittleEndian.Uint32(data[46:50]) == 1 {
		m.FreezeAuthority = EncodePubkey(data[50:82])
	}

	return m, nil
}

// MintAuthorityRevoked reports whether new supply can no longer be created.
func (m *MintAccount) MintAuthorityRevoked() bool {
	return m.MintAuthority == ""
}

// FreezeAuthorityRevoked reports whether holder accounts can no longer be frozen.
func (m *MintAccount) FreezeAuthorityRevoked() bool {
	return m.FreezeAuthority == ""
}

// AssociatedTokenAddress derives the wallet's associated token account for
// the mint. Seeds: wallet, token program, mint, under the ATA program.
func AssociatedTokenAddress(wallet, mint string) (string, error) {
	walletKey, err := DecodePubkey(wallet)
	if err != nil {
		return "", fmt.Errorf("invalid wallet: %w", err)
	}
	mintKey, err := DecodePubkey(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint: %w", err)
	}
	tokenKey, err := DecodePubkey(TokenProgram)
	if err != nil {
		return "", err
	}
	return FindProgramAddress([][]byte{walletKey, tokenKey, mintKey}, AssociatedTokenProgram)
}

// DecodeTokenAccountAmount extracts the raw token amount from an SPL token
// account. Layout: mint (32), owner (32), amount u64 at offset 64.
func DecodeTokenAccountAmount(dataBase64 string) (uint64, error) {
	data, err := base64.StdEncoding.DecodeString(dataBase64)
	if err != nil {
		return 0, fmt.Errorf("decode token account data: %w", err)
	}
	if len(data) < tokenAccountSize {
		return 0, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint64(data[64:72]), nil
}
