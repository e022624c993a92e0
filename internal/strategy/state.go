package strategy

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// OrderSide is the side of the book the strategy trades on.
// 0 for Bid | Buy, 1 for Ask | Sell.
type OrderSide uint8

const (
	OrderSideBid OrderSide = 0
	OrderSideAsk OrderSide = 1
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBid:
		return "bid"
	case OrderSideAsk:
		return "ask"
	default:
		return fmt.Sprintf("orderside(%d)", uint8(s))
	}
}

// Bound is the direction of the price acceptance test.
// 0 for lower bound (floor), 1 for upper bound (ceiling).
type Bound uint8

const (
	BoundLower Bound = 0
	BoundUpper Bound = 1
)

func (b Bound) String() string {
	switch b {
	case BoundLower:
		return "lower"
	case BoundUpper:
		return "upper"
	default:
		return fmt.Sprintf("bound(%d)", uint8(b))
	}
}

// MaxRouteAccounts is the size of the staged per-trade account list.
const MaxRouteAccounts = 30

// AdditionalDataLen is the size of the staged per-venue side-channel blob.
const AdditionalDataLen = 32

// BoundedStrategy is the on-chain escrow record for one conditional order.
// The layout is fixed-order and fixed-width so any client can decode it at
// stable byte offsets without the program's cooperation.
type BoundedStrategy struct {
	// The mint of the asset held in escrow.
	CollateralMint solana.PublicKey
	// The escrow token account that funds the trade ("order payer").
	CollateralAccount solana.PublicKey
	OrderSide         OrderSide
	Bound             Bound
	// The worst acceptable execution price as a rational number. The
	// numerator is denominated in collateral units, the denominator in
	// deposit units.
	BoundPriceNumerator   uint64
	BoundPriceDenominator uint64
	// Unix timestamp after which the assets may only be reclaimed.
	ReclaimDate int64
	// The token account the escrowed assets return to on reclaim.
	ReclaimAddress solana.PublicKey
	// The token account that receives swapped assets.
	DepositAddress solana.PublicKey
	// The PDA that owns the escrow and any order-tracking accounts.
	Authority     solana.PublicKey
	AuthorityBump uint8
	// The staged trade route. Unused slots hold the zero key.
	AccountList [MaxRouteAccounts]solana.PublicKey
	// Per-venue side-channel bytes consumed by trade execution.
	AdditionalData [AdditionalDataLen]byte
}

// AccountDiscriminator prefixes every serialized BoundedStrategy account.
var AccountDiscriminator = accountDiscriminator("BoundedStrategy")

// AccountLen is the serialized size of a BoundedStrategy account,
// discriminator included.
const AccountLen = 8 + 32 + 32 + 1 + 1 + 8 + 8 + 8 + 32 + 32 + 32 + 1 + MaxRouteAccounts*32 + AdditionalDataLen

// ParseBoundedStrategy decodes the fixed-layout account data.
func ParseBoundedStrategy(data []byte) (*BoundedStrategy, error) {
	if len(data) < AccountLen {
		return nil, fmt.Errorf("bounded strategy account too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], AccountDiscriminator[:]) {
		return nil, fmt.Errorf("bounded strategy discriminator mismatch")
	}
	out := new(BoundedStrategy)
	if err := bin.NewBinDecoder(data[8:]).Decode(out); err != nil {
		return nil, fmt.Errorf("decode bounded strategy: %w", err)
	}
	return out, nil
}

// Serialize encodes the record with its discriminator at the stable offsets
// ParseBoundedStrategy expects.
func (s *BoundedStrategy) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(AccountDiscriminator[:])
	if err := bin.NewBinEncoder(buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode bounded strategy: %w", err)
	}
	return buf.Bytes(), nil
}

// Expired reports whether the strategy may no longer trade.
func (s *BoundedStrategy) Expired(now int64) bool {
	return now >= s.ReclaimDate
}

// Action is the single instruction a strategy admits at a given instant.
type Action uint8

const (
	ActionTrade Action = iota
	ActionReclaim
)

func (a Action) String() string {
	if a == ActionReclaim {
		return "reclaim"
	}
	return "trade"
}

// NextAction returns the only legal instruction for the strategy at the given
// cluster time. Trade and Reclaim are never simultaneously valid.
func (s *BoundedStrategy) NextAction(now int64) Action {
	if s.Expired(now) {
		return ActionReclaim
	}
	return ActionTrade
}

func accountDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}
