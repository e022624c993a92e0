package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/shopspring/decimal"

	"github.com/mithraiclabs/poseidon/internal/dexes"
	"github.com/mithraiclabs/poseidon/internal/strategy"
)

// ErrBoundViolation reports that routes were quoted but every liquid one
// priced worse than the strategy's bound. Distinct from "no routes at all",
// which is a normal empty result.
var ErrBoundViolation = errors.New("no quoted route satisfies the price bound")

// OpenOrdersProvider creates or reuses an order-tracking account for an owner
// on a market. The order-book adapter implements it.
type OpenOrdersProvider interface {
	EnsureOpenOrders(ctx context.Context, payer, owner, market solana.PublicKey) (solana.PublicKey, solana.Instruction, error)
}

// SelectRequest describes one strategy's trade opportunity.
type SelectRequest struct {
	StrategyKey solana.PublicKey
	// Authority is the strategy's derived signer, owner of the escrow.
	Authority solana.PublicKey
	// OpenOrders is the strategy's derived order-tracking account, used for
	// the first leg when it runs on the order book.
	OpenOrders            solana.PublicKey
	CollateralMint        solana.PublicKey
	CollateralAccount     solana.PublicKey
	CollateralBalance     uint64
	CollateralDecimals    uint8
	DepositMint           solana.PublicKey
	DepositAddress        solana.PublicKey
	DepositDecimals       uint8
	BoundPriceNumerator   uint64
	BoundPriceDenominator uint64
}

// Plan is an executable route: the ordered leg accounts for the trade
// instruction's tail, the side-channel bytes, and any setup instructions
// (intermediary token accounts, order-tracking accounts) that must land
// before or with the trade.
type Plan struct {
	Accounts       solana.AccountMetaSlice
	AdditionalData []byte
	Setup          []solana.Instruction
	InAmount       uint64
	OutAmount      uint64
}

// Selector picks the first quoted route that satisfies a strategy's bound and
// assembles its account plan.
type Selector struct {
	quoter           Quoter
	registry         *dexes.Registry
	openOrders       OpenOrdersProvider
	payer            solana.PublicKey
	slippageBps      uint64
	onlyDirectRoutes bool
	excludedVenues   []string
	logger           *slog.Logger
}

type SelectorOptions struct {
	SlippageBps      uint64
	OnlyDirectRoutes bool
	// ExtraExcludedVenues extends DefaultExcludedVenues, e.g. a venue whose
	// minimum lot economics make small trades pointless.
	ExtraExcludedVenues []string
}

func NewSelector(
	quoter Quoter,
	registry *dexes.Registry,
	openOrders OpenOrdersProvider,
	payer solana.PublicKey,
	opts SelectorOptions,
	logger *slog.Logger,
) *Selector {
	excluded := make([]string, 0, len(DefaultExcludedVenues)+len(opts.ExtraExcludedVenues))
	excluded = append(excluded, DefaultExcludedVenues...)
	excluded = append(excluded, opts.ExtraExcludedVenues...)
	return &Selector{
		quoter:           quoter,
		registry:         registry,
		openOrders:       openOrders,
		payer:            payer,
		slippageBps:      opts.SlippageBps,
		onlyDirectRoutes: opts.OnlyDirectRoutes,
		excludedVenues:   excluded,
		logger:           logger,
	}
}

// MaxPrice converts the bound's raw numerator/denominator into a
// decimal-adjusted price: collateral units spent per deposit unit received.
func MaxPrice(numerator, denominator uint64, collateralDecimals, depositDecimals uint8) decimal.Decimal {
	num := decimal.NewFromUint64(numerator).Shift(-int32(collateralDecimals))
	den := decimal.NewFromUint64(denominator).Shift(-int32(depositDecimals))
	return num.Div(den)
}

// SelectRoute returns the first acceptable route's plan, (nil, nil) when no
// routes are available, and ErrBoundViolation when liquid routes exist but
// all price worse than the bound.
func (s *Selector) SelectRoute(ctx context.Context, req SelectRequest) (*Plan, error) {
	if req.CollateralBalance == 0 {
		return nil, nil
	}

	routes, err := s.quoter.Quote(ctx, QuoteRequest{
		InputMint:        req.CollateralMint,
		OutputMint:       req.DepositMint,
		Amount:           req.CollateralBalance,
		SlippageBps:      s.slippageBps,
		OnlyDirectRoutes: s.onlyDirectRoutes,
		ExcludedVenues:   s.excludedVenues,
	})
	if err != nil {
		// Quoting is best-effort: a failed quote is "no trade this cycle",
		// retried on the next poll.
		s.logger.Warn("route quote failed", "strategy", req.StrategyKey, "err", err)
		return nil, nil
	}
	if len(routes) == 0 {
		return nil, nil
	}

	maxPrice := MaxPrice(req.BoundPriceNumerator, req.BoundPriceDenominator, req.CollateralDecimals, req.DepositDecimals)

	sawLiquidRoute := false
	for _, route := range routes {
		if hasIlliquidLeg(route) {
			continue
		}
		sawLiquidRoute = true

		price := realizedPrice(route, req.CollateralDecimals, req.DepositDecimals)
		if price.GreaterThan(maxPrice) {
			continue
		}

		plan, err := s.buildPlan(ctx, req, route)
		if err != nil {
			s.logger.Warn("route plan build failed",
				"strategy", req.StrategyKey,
				"legs", len(route.Legs),
				"err", err,
			)
			continue
		}
		return plan, nil
	}

	if sawLiquidRoute {
		return nil, ErrBoundViolation
	}
	return nil, nil
}

func hasIlliquidLeg(route Route) bool {
	for _, leg := range route.Legs {
		if leg.NotEnoughLiquidity {
			return true
		}
	}
	return len(route.Legs) == 0
}

func realizedPrice(route Route, collateralDecimals, depositDecimals uint8) decimal.Decimal {
	in := decimal.NewFromUint64(route.InAmount).Shift(-int32(collateralDecimals))
	out := decimal.NewFromUint64(route.OutAmount).Shift(-int32(depositDecimals))
	if out.IsZero() {
		// Zero output can never satisfy a bound; surface it as infinitely bad.
		return decimal.NewFromUint64(^uint64(0))
	}
	return in.Div(out)
}

// buildPlan walks the route's legs in order. The first leg spends from the
// strategy escrow under the strategy authority; later legs spend from
// executor-owned intermediary accounts. The last leg pays into the deposit
// address.
func (s *Selector) buildPlan(ctx context.Context, req SelectRequest, route Route) (*Plan, error) {
	plan := &Plan{InAmount: route.InAmount, OutAmount: route.OutAmount}

	for i, legQuote := range route.Legs {
		adapter, err := s.registry.Lookup(legQuote.Venue)
		if err != nil {
			return nil, err
		}

		leg := dexes.TradeLeg{Market: legQuote.MarketID}

		if i == 0 {
			leg.SourceAccount = req.CollateralAccount
			leg.SourceOwner = req.Authority
			leg.OpenOrders = req.OpenOrders
		} else {
			source, err := s.intermediaryAccount(legQuote.InputMint, plan)
			if err != nil {
				return nil, err
			}
			leg.SourceAccount = source
			leg.SourceOwner = s.payer
			if legQuote.Venue == dexes.VenueOpenBook {
				openOrdersKey, createIx, err := s.openOrders.EnsureOpenOrders(ctx, s.payer, s.payer, legQuote.MarketID)
				if err != nil {
					return nil, err
				}
				if createIx != nil {
					plan.Setup = append(plan.Setup, createIx)
				}
				leg.OpenOrders = openOrdersKey
			}
		}

		if i == len(route.Legs)-1 {
			leg.DestinationAccount = req.DepositAddress
		} else {
			destination, err := s.intermediaryAccount(legQuote.OutputMint, plan)
			if err != nil {
				return nil, err
			}
			leg.DestinationAccount = destination
		}

		accounts, data, err := adapter.BuildTradeAccounts(ctx, leg)
		if err != nil {
			return nil, fmt.Errorf("leg %d (%s): %w", i, legQuote.Venue, err)
		}
		plan.Accounts = append(plan.Accounts, accounts...)
		plan.AdditionalData = append(plan.AdditionalData, data...)
	}

	if len(plan.Accounts) > strategy.MaxRouteAccounts {
		return nil, fmt.Errorf("route needs %d accounts, max %d", len(plan.Accounts), strategy.MaxRouteAccounts)
	}
	return plan, nil
}

// intermediaryAccount derives the executor's associated token account for a
// mint and queues its creation. Create is idempotent at the instruction level
// only within this plan; the chain rejects a duplicate create, so each mint
// is added once.
func (s *Selector) intermediaryAccount(mint solana.PublicKey, plan *Plan) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(s.payer, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive intermediary account for mint %s: %w", mint, err)
	}

	for _, existing := range plan.Setup {
		if create, ok := existing.(*associatedtokenaccount.Instruction); ok {
			accounts := create.Accounts()
			if len(accounts) > 1 && accounts[1].PublicKey.Equals(address) {
				return address, nil
			}
		}
	}

	createIx, err := associatedtokenaccount.NewCreateInstruction(s.payer, s.payer, mint).ValidateAndBuild()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("build intermediary account create for mint %s: %w", mint, err)
	}
	plan.Setup = append(plan.Setup, createIx)
	return address, nil
}
