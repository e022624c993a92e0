package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/mithraiclabs/poseidon/internal/dexes"
)

type fakeQuoter struct {
	routes []Route
	err    error
	last   QuoteRequest
}

func (f *fakeQuoter) Quote(_ context.Context, req QuoteRequest) ([]Route, error) {
	f.last = req
	return f.routes, f.err
}

// fakeAdapter records the legs it was asked to build and emits a fixed-size
// account list so tests can count legs in the assembled plan.
type fakeAdapter struct {
	venue string
	legs  []dexes.TradeLeg
}

func (f *fakeAdapter) Venue() string { return f.venue }

func (f *fakeAdapter) BuildTradeAccounts(_ context.Context, leg dexes.TradeLeg) (solana.AccountMetaSlice, []byte, error) {
	f.legs = append(f.legs, leg)
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(leg.Market, true, false),
		solana.NewAccountMeta(leg.SourceAccount, true, false),
		solana.NewAccountMeta(leg.DestinationAccount, true, false),
	}, []byte{byte(len(f.legs))}, nil
}

type fakeOpenOrders struct {
	address solana.PublicKey
	created int
}

func (f *fakeOpenOrders) EnsureOpenOrders(context.Context, solana.PublicKey, solana.PublicKey, solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	f.created++
	return f.address, nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest() SelectRequest {
	return SelectRequest{
		StrategyKey:           solana.NewWallet().PublicKey(),
		Authority:             solana.NewWallet().PublicKey(),
		OpenOrders:            solana.NewWallet().PublicKey(),
		CollateralMint:        solana.NewWallet().PublicKey(),
		CollateralAccount:     solana.NewWallet().PublicKey(),
		CollateralBalance:     1_000_000_000,
		CollateralDecimals:    9,
		DepositMint:           solana.NewWallet().PublicKey(),
		DepositAddress:        solana.NewWallet().PublicKey(),
		DepositDecimals:       6,
		BoundPriceNumerator:   1_000_000_000,
		BoundPriceDenominator: 92_000_000,
	}
}

func newTestSelector(quoter Quoter, adapters ...dexes.Adapter) (*Selector, *fakeOpenOrders) {
	openOrders := &fakeOpenOrders{address: solana.NewWallet().PublicKey()}
	selector := NewSelector(
		quoter,
		dexes.NewRegistry(adapters...),
		openOrders,
		solana.NewWallet().PublicKey(),
		SelectorOptions{SlippageBps: 50},
		testLogger(),
	)
	return selector, openOrders
}

func singleLegRoute(req SelectRequest, venue string, inAmount, outAmount uint64) Route {
	return Route{
		InAmount:  inAmount,
		OutAmount: outAmount,
		Legs: []LegQuote{{
			MarketID:   solana.NewWallet().PublicKey(),
			Venue:      venue,
			InputMint:  req.CollateralMint,
			OutputMint: req.DepositMint,
			InAmount:   inAmount,
			OutAmount:  outAmount,
		}},
	}
}

func TestMaxPriceDecimalAdjusted(t *testing.T) {
	// 1e9 of a 9-decimal asset per 92e6 of a 6-decimal asset: 1 unit sold
	// must fetch at least 92 units, so at most 1/92 collateral per deposit
	// unit.
	price := MaxPrice(1_000_000_000, 92_000_000, 9, 6)
	require.Equal(t, "0.0108695652173913", price.StringFixed(16))
}

func TestSelectRouteAcceptsWithinBound(t *testing.T) {
	req := testRequest()
	adapter := &fakeAdapter{venue: dexes.VenueOpenBook}
	// Selling 1 unit for 93: better than the 92 floor.
	quoter := &fakeQuoter{routes: []Route{singleLegRoute(req, dexes.VenueOpenBook, 1_000_000_000, 93_000_000)}}
	selector, _ := newTestSelector(quoter, adapter)

	plan, err := selector.SelectRoute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Len(t, plan.Accounts, 3)
	require.Equal(t, uint64(1_000_000_000), plan.InAmount)
	require.Equal(t, uint64(93_000_000), plan.OutAmount)

	// First leg spends the escrow under the strategy authority and pays the
	// deposit address directly.
	require.Len(t, adapter.legs, 1)
	leg := adapter.legs[0]
	require.Equal(t, req.CollateralAccount, leg.SourceAccount)
	require.Equal(t, req.Authority, leg.SourceOwner)
	require.Equal(t, req.OpenOrders, leg.OpenOrders)
	require.Equal(t, req.DepositAddress, leg.DestinationAccount)
}

func TestSelectRouteBoundViolation(t *testing.T) {
	req := testRequest()
	adapter := &fakeAdapter{venue: dexes.VenueOpenBook}
	// Selling 1 unit for 91: worse than the 92 floor.
	quoter := &fakeQuoter{routes: []Route{singleLegRoute(req, dexes.VenueOpenBook, 1_000_000_000, 91_000_000)}}
	selector, _ := newTestSelector(quoter, adapter)

	plan, err := selector.SelectRoute(context.Background(), req)
	require.ErrorIs(t, err, ErrBoundViolation)
	require.Nil(t, plan)
	require.Empty(t, adapter.legs)
}

func TestSelectRouteFirstAcceptableWins(t *testing.T) {
	req := testRequest()
	adapter := &fakeAdapter{venue: dexes.VenueOpenBook}
	first := singleLegRoute(req, dexes.VenueOpenBook, 1_000_000_000, 94_000_000)
	second := singleLegRoute(req, dexes.VenueOpenBook, 1_000_000_000, 99_000_000)
	quoter := &fakeQuoter{routes: []Route{first, second}}
	selector, _ := newTestSelector(quoter, adapter)

	plan, err := selector.SelectRoute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, plan)
	// The better-priced second route is never considered.
	require.Equal(t, uint64(94_000_000), plan.OutAmount)
	require.Len(t, adapter.legs, 1)
	require.Equal(t, first.Legs[0].MarketID, adapter.legs[0].Market)
}

func TestSelectRouteSkipsIlliquidLegs(t *testing.T) {
	req := testRequest()
	adapter := &fakeAdapter{venue: dexes.VenueOpenBook}
	illiquid := singleLegRoute(req, dexes.VenueOpenBook, 1_000_000_000, 99_000_000)
	illiquid.Legs[0].NotEnoughLiquidity = true
	liquid := singleLegRoute(req, dexes.VenueOpenBook, 1_000_000_000, 93_000_000)
	quoter := &fakeQuoter{routes: []Route{illiquid, liquid}}
	selector, _ := newTestSelector(quoter, adapter)

	plan, err := selector.SelectRoute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Equal(t, liquid.Legs[0].MarketID, adapter.legs[0].Market)
}

func TestSelectRouteNoRoutes(t *testing.T) {
	req := testRequest()
	selector, _ := newTestSelector(&fakeQuoter{})

	plan, err := selector.SelectRoute(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, plan)
}

func TestSelectRouteQuoterFailureIsNoRoute(t *testing.T) {
	req := testRequest()
	selector, _ := newTestSelector(&fakeQuoter{err: errors.New("rate limited")})

	plan, err := selector.SelectRoute(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, plan)
}

func TestSelectRouteZeroBalance(t *testing.T) {
	req := testRequest()
	req.CollateralBalance = 0
	quoter := &fakeQuoter{}
	selector, _ := newTestSelector(quoter)

	plan, err := selector.SelectRoute(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, plan)
	require.Zero(t, quoter.last.Amount, "no quote should be requested")
}

func TestSelectRouteMultiLeg(t *testing.T) {
	req := testRequest()
	middleMint := solana.NewWallet().PublicKey()
	openBook := &fakeAdapter{venue: dexes.VenueOpenBook}
	raydium := &fakeAdapter{venue: dexes.VenueRaydium}

	route := Route{
		InAmount:  1_000_000_000,
		OutAmount: 93_000_000,
		Legs: []LegQuote{
			{
				MarketID:   solana.NewWallet().PublicKey(),
				Venue:      dexes.VenueRaydium,
				InputMint:  req.CollateralMint,
				OutputMint: middleMint,
				InAmount:   1_000_000_000,
				OutAmount:  500_000,
			},
			{
				MarketID:   solana.NewWallet().PublicKey(),
				Venue:      dexes.VenueOpenBook,
				InputMint:  middleMint,
				OutputMint: req.DepositMint,
				InAmount:   500_000,
				OutAmount:  93_000_000,
			},
		},
	}
	quoter := &fakeQuoter{routes: []Route{route}}
	selector, openOrders := newTestSelector(quoter, openBook, raydium)

	plan, err := selector.SelectRoute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Len(t, plan.Accounts, 6)
	require.Equal(t, []byte{1, 1}, plan.AdditionalData)

	require.Len(t, raydium.legs, 1)
	require.Len(t, openBook.legs, 1)

	// The intermediary account joins the two legs: first leg pays into it,
	// second leg spends from it under the executor.
	require.Equal(t, raydium.legs[0].DestinationAccount, openBook.legs[0].SourceAccount)
	require.NotEqual(t, req.DepositAddress, raydium.legs[0].DestinationAccount)
	require.Equal(t, req.DepositAddress, openBook.legs[0].DestinationAccount)
	require.NotEqual(t, req.Authority, openBook.legs[0].SourceOwner)

	// The non-first order-book leg got an executor-owned open orders account.
	require.Equal(t, 1, openOrders.created)
	require.Equal(t, openOrders.address, openBook.legs[0].OpenOrders)

	// Setup contains the intermediary account creation.
	require.Len(t, plan.Setup, 1)
}

func TestSelectRouteExcludesConfiguredVenues(t *testing.T) {
	req := testRequest()
	quoter := &fakeQuoter{}
	selector, _ := newTestSelector(quoter)

	_, err := selector.SelectRoute(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, quoter.last.ExcludedVenues, "Phoenix")
	require.Contains(t, quoter.last.ExcludedVenues, "Serum")
	require.NotContains(t, quoter.last.ExcludedVenues, dexes.VenueOpenBook)
	require.NotContains(t, quoter.last.ExcludedVenues, dexes.VenueRaydium)
}
