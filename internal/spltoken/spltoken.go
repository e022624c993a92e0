// Package spltoken decodes SPL token accounts and mints at their fixed byte
// offsets, without pulling in the full token program bindings.
package spltoken

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	// AccountLen is the serialized size of an SPL token account.
	AccountLen = 165
	// MintLen is the serialized size of an SPL mint.
	MintLen = 82

	mintDecimalsOffset = 44
)

// Account is the subset of an SPL token account the executor needs.
type Account struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// ParseAccount reads mint, owner and amount from raw token-account data.
func ParseAccount(data []byte) (Account, error) {
	if len(data) < AccountLen {
		return Account{}, fmt.Errorf("token account too short: %d bytes", len(data))
	}
	return Account{
		Mint:   solana.PublicKeyFromBytes(data[0:32]),
		Owner:  solana.PublicKeyFromBytes(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

// ParseMintDecimals reads the decimal count from raw mint data.
func ParseMintDecimals(data []byte) (uint8, error) {
	if len(data) < MintLen {
		return 0, fmt.Errorf("mint account too short: %d bytes", len(data))
	}
	return data[mintDecimalsOffset], nil
}
