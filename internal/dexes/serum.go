package dexes

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Serum market state v3 framing: 5 head bytes and 7 tail bytes of padding
// around the borsh struct.
const (
	serumHeadPadding = 5
	serumTailPadding = 7
)

// SerumMarket is the decoded state of a serum-style order-book market.
type SerumMarket struct {
	AccountFlags           uint64
	OwnAddress             solana.PublicKey
	VaultSignerNonce       uint64
	BaseMint               solana.PublicKey
	QuoteMint              solana.PublicKey
	BaseVault              solana.PublicKey
	BaseDepositsTotal      uint64
	BaseFeesAccrued        uint64
	QuoteVault             solana.PublicKey
	QuoteDepositsTotal     uint64
	QuoteFeesAccrued       uint64
	QuoteDustThreshold     uint64
	RequestQueue           solana.PublicKey
	EventQueue             solana.PublicKey
	Bids                   solana.PublicKey
	Asks                   solana.PublicKey
	BaseLotSize            uint64
	QuoteLotSize           uint64
	FeeRateBps             uint64
	ReferrerRebatesAccrued uint64
}

// ParseSerumMarket decodes a raw market account, stripping the padding frame.
func ParseSerumMarket(data []byte) (*SerumMarket, error) {
	if len(data) <= serumHeadPadding+serumTailPadding {
		return nil, fmt.Errorf("market account too short: %d bytes", len(data))
	}
	body := data[serumHeadPadding : len(data)-serumTailPadding]
	market := new(SerumMarket)
	if err := bin.NewBinDecoder(body).Decode(market); err != nil {
		return nil, fmt.Errorf("decode serum market: %w", err)
	}
	return market, nil
}

// VaultSigner derives the market's vault owner from its stored nonce. The
// nonce was chosen at market creation so this must use the direct
// create-program-address path, not a bump search.
func (m *SerumMarket) VaultSigner(dexProgramID solana.PublicKey) (solana.PublicKey, error) {
	nonce := make([]byte, 8)
	for i := 0; i < 8; i++ {
		nonce[i] = byte(m.VaultSignerNonce >> (8 * i))
	}
	signer, err := solana.CreateProgramAddress([][]byte{m.OwnAddress.Bytes(), nonce}, dexProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive vault signer for %s: %w", m.OwnAddress, err)
	}
	return signer, nil
}
