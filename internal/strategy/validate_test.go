package strategy

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/mithraiclabs/poseidon/internal/spltoken"
)

func validParams() Params {
	return Params{
		CollateralMint:        solana.NewWallet().PublicKey(),
		TransferAmount:        10_000_000,
		BoundPriceNumerator:   1_000_000_000,
		BoundPriceDenominator: 92_000_000,
		ReclaimDate:           2_000,
		OrderSide:             OrderSideAsk,
		Bound:                 BoundLower,
		ReclaimAddress:        solana.NewWallet().PublicKey(),
		DepositAddress:        solana.NewWallet().PublicKey(),
	}
}

func TestValidate(t *testing.T) {
	now := int64(1_000)

	cases := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"valid ask lower", func(p *Params) {}, nil},
		{"valid bid upper", func(p *Params) { p.OrderSide = OrderSideBid; p.Bound = BoundUpper }, nil},
		{"reclaim date passed", func(p *Params) { p.ReclaimDate = now }, ErrReclaimDateHasPassed},
		{"zero numerator", func(p *Params) { p.BoundPriceNumerator = 0 }, ErrBoundPriceIsZero},
		{"zero denominator", func(p *Params) { p.BoundPriceDenominator = 0 }, ErrBoundPriceIsZero},
		{"zero transfer amount", func(p *Params) { p.TransferAmount = 0 }, ErrTransferAmountIsZero},
		{"invalid order side", func(p *Params) { p.OrderSide = 2 }, ErrNonBinaryOrderSide},
		{"invalid bound", func(p *Params) { p.Bound = 2 }, ErrNonBinaryBound},
		{"bid with lower bound", func(p *Params) { p.OrderSide = OrderSideBid; p.Bound = BoundLower }, ErrNoLowerBoundedBids},
		{"ask with upper bound", func(p *Params) { p.OrderSide = OrderSideAsk; p.Bound = BoundUpper }, ErrNoUpperBoundedAsks},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams()
			tc.mutate(&params)
			err := params.Validate(now)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidateAccounts(t *testing.T) {
	params := validParams()
	owner := solana.NewWallet().PublicKey()

	reclaim := spltoken.Account{Mint: params.CollateralMint, Owner: owner}
	deposit := spltoken.Account{Mint: solana.NewWallet().PublicKey(), Owner: owner}
	require.NoError(t, params.ValidateAccounts(reclaim, deposit))

	badMint := spltoken.Account{Mint: solana.NewWallet().PublicKey(), Owner: owner}
	require.ErrorIs(t, params.ValidateAccounts(badMint, deposit), ErrBadReclaimMint)

	otherOwner := spltoken.Account{Mint: deposit.Mint, Owner: solana.NewWallet().PublicKey()}
	require.ErrorIs(t, params.ValidateAccounts(reclaim, otherOwner), ErrDepositOwnerMismatch)
}

func TestValidateMarket(t *testing.T) {
	baseMint := solana.NewWallet().PublicKey()
	quoteMint := solana.NewWallet().PublicKey()

	ask := validParams()
	ask.CollateralMint = baseMint
	require.NoError(t, ask.ValidateMarket(baseMint, quoteMint))

	ask.CollateralMint = quoteMint
	require.ErrorIs(t, ask.ValidateMarket(baseMint, quoteMint), ErrAsksRequireBaseMint)

	bid := validParams()
	bid.OrderSide = OrderSideBid
	bid.Bound = BoundUpper
	bid.CollateralMint = quoteMint
	require.NoError(t, bid.ValidateMarket(baseMint, quoteMint))

	bid.CollateralMint = baseMint
	require.ErrorIs(t, bid.ValidateMarket(baseMint, quoteMint), ErrBidsRequireQuoteMint)
}
