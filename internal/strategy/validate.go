package strategy

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/mithraiclabs/poseidon/internal/spltoken"
)

// Validation errors. Each maps to a distinct rejection reason so operators can
// tell a bad expiry from a bad bound from a bad beneficiary.
var (
	ErrReclaimDateHasPassed    = errors.New("reclaim date must be in the future")
	ErrBoundPriceIsZero        = errors.New("bound price numerator and denominator must be nonzero")
	ErrTransferAmountIsZero    = errors.New("transfer amount must be nonzero")
	ErrNonBinaryOrderSide      = errors.New("order side must be bid or ask")
	ErrNonBinaryBound          = errors.New("bound must be lower or upper")
	ErrNoLowerBoundedBids      = errors.New("bid strategies cannot use a lower bound")
	ErrNoUpperBoundedAsks      = errors.New("ask strategies cannot use an upper bound")
	ErrBadReclaimMint          = errors.New("reclaim account mint must match the collateral mint")
	ErrDepositOwnerMismatch    = errors.New("deposit account owner must match the reclaim account owner")
	ErrBidsRequireQuoteMint    = errors.New("bid strategies must collateralize in the quote asset")
	ErrAsksRequireBaseMint     = errors.New("ask strategies must collateralize in the base asset")
	ErrNotYetExpired           = errors.New("reclaim date has not passed")
	ErrAlreadyExpired          = errors.New("reclaim date has passed, strategy may only be reclaimed")
)

// Params holds everything a client supplies to create a strategy.
type Params struct {
	CollateralMint        solana.PublicKey
	TransferAmount        uint64
	BoundPriceNumerator   uint64
	BoundPriceDenominator uint64
	ReclaimDate           int64
	OrderSide             OrderSide
	Bound                 Bound
	ReclaimAddress        solana.PublicKey
	DepositAddress        solana.PublicKey
}

// Validate enforces the creation-time invariants on the scalar parameters.
// now is cluster time, not wall-clock time.
func (p Params) Validate(now int64) error {
	if p.ReclaimDate <= now {
		return ErrReclaimDateHasPassed
	}
	if p.BoundPriceNumerator == 0 || p.BoundPriceDenominator == 0 {
		return ErrBoundPriceIsZero
	}
	if p.OrderSide != OrderSideBid && p.OrderSide != OrderSideAsk {
		return ErrNonBinaryOrderSide
	}
	if p.Bound != BoundLower && p.Bound != BoundUpper {
		return ErrNonBinaryBound
	}
	// Only Ask+Lower (sell for at least X) and Bid+Upper (buy for at most X)
	// make economic sense.
	if p.OrderSide == OrderSideBid && p.Bound == BoundLower {
		return ErrNoLowerBoundedBids
	}
	if p.OrderSide == OrderSideAsk && p.Bound == BoundUpper {
		return ErrNoUpperBoundedAsks
	}
	if p.TransferAmount == 0 {
		return ErrTransferAmountIsZero
	}
	return nil
}

// ValidateAccounts enforces the invariants that depend on the reclaim and
// deposit token accounts: the escrow refills the account it drained, and the
// proceeds go to the same beneficiary who can reclaim on expiry.
func (p Params) ValidateAccounts(reclaim, deposit spltoken.Account) error {
	if !reclaim.Mint.Equals(p.CollateralMint) {
		return ErrBadReclaimMint
	}
	if !deposit.Owner.Equals(reclaim.Owner) {
		return ErrDepositOwnerMismatch
	}
	return nil
}

// ValidateMarket checks the collateral mint against the traded pair: bids
// spend the quote asset, asks spend the base asset.
func (p Params) ValidateMarket(baseMint, quoteMint solana.PublicKey) error {
	switch p.OrderSide {
	case OrderSideBid:
		if !p.CollateralMint.Equals(quoteMint) {
			return ErrBidsRequireQuoteMint
		}
	case OrderSideAsk:
		if !p.CollateralMint.Equals(baseMint) {
			return ErrAsksRequireBaseMint
		}
	default:
		return ErrNonBinaryOrderSide
	}
	return nil
}

// CheckTradeable returns nil when a trade is currently legal for the strategy.
func (s *BoundedStrategy) CheckTradeable(now int64) error {
	if s.Expired(now) {
		return fmt.Errorf("%w (reclaim date %d, now %d)", ErrAlreadyExpired, s.ReclaimDate, now)
	}
	return nil
}

// CheckReclaimable returns nil when a reclaim is currently legal.
func (s *BoundedStrategy) CheckReclaimable(now int64) error {
	if !s.Expired(now) {
		return fmt.Errorf("%w (reclaim date %d, now %d)", ErrNotYetExpired, s.ReclaimDate, now)
	}
	return nil
}
