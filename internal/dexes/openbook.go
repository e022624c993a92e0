package dexes

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/mithraiclabs/poseidon/internal/chain"
	"github.com/mithraiclabs/poseidon/internal/spltoken"
)

// VenueOpenBook labels the order-book venue in route quotes.
const VenueOpenBook = "Openbook"

// OpenOrdersLen is the serialized size of an order-tracking account.
const OpenOrdersLen = 3228

// OpenBook builds trade accounts for the serum-style central limit order book.
//
// Account order, fixed by the on-chain program:
//
//	 0 - dex program
//	 1 - market
//	 2 - bids
//	 3 - asks
//	 4 - open orders
//	 5 - request queue
//	 6 - event queue
//	 7 - base vault
//	 8 - quote vault
//	 9 - vault signer
//	10 - token program
//	11 - rent sysvar
//	12 - referral account (rent sysvar stands in when there is none)
//	13 - open orders owner
//	14 - source wallet
//	15 - destination wallet
type OpenBook struct {
	client    chain.Client
	programID solana.PublicKey
}

func NewOpenBook(client chain.Client, programID solana.PublicKey) *OpenBook {
	return &OpenBook{client: client, programID: programID}
}

func (o *OpenBook) Venue() string { return VenueOpenBook }

// BuildTradeAccounts fetches and verifies the market, then lays out the leg's
// accounts. The returned bytes carry the market's base decimals, which the
// on-chain program needs to convert lot sizes.
func (o *OpenBook) BuildTradeAccounts(ctx context.Context, leg TradeLeg) (solana.AccountMetaSlice, []byte, error) {
	market, err := o.fetchMarket(ctx, leg.Market)
	if err != nil {
		return nil, nil, err
	}

	vaultSigner, err := market.VaultSigner(o.programID)
	if err != nil {
		return nil, nil, err
	}

	baseMint, err := o.client.GetAccount(ctx, market.BaseMint)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch base mint %s: %w", market.BaseMint, err)
	}
	baseDecimals, err := spltoken.ParseMintDecimals(baseMint.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode base mint %s: %w", market.BaseMint, err)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(o.programID, false, false),
		solana.NewAccountMeta(leg.Market, true, false),
		solana.NewAccountMeta(market.Bids, true, false),
		solana.NewAccountMeta(market.Asks, true, false),
		solana.NewAccountMeta(leg.OpenOrders, true, false),
		solana.NewAccountMeta(market.RequestQueue, true, false),
		solana.NewAccountMeta(market.EventQueue, true, false),
		solana.NewAccountMeta(market.BaseVault, true, false),
		solana.NewAccountMeta(market.QuoteVault, true, false),
		solana.NewAccountMeta(vaultSigner, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(leg.SourceOwner, false, false),
		solana.NewAccountMeta(leg.SourceAccount, true, false),
		solana.NewAccountMeta(leg.DestinationAccount, true, false),
	}
	return accounts, []byte{baseDecimals}, nil
}

// Market fetches and decodes a market owned by this venue's program.
func (o *OpenBook) Market(ctx context.Context, marketKey solana.PublicKey) (*SerumMarket, error) {
	return o.fetchMarket(ctx, marketKey)
}

func (o *OpenBook) fetchMarket(ctx context.Context, marketKey solana.PublicKey) (*SerumMarket, error) {
	info, err := o.client.GetAccount(ctx, marketKey)
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", marketKey, err)
	}
	if !info.Owner.Equals(o.programID) {
		return nil, fmt.Errorf("%w: market %s owned by %s, want %s",
			ErrUnexpectedMarketOwner, marketKey, info.Owner, o.programID)
	}
	market, err := ParseSerumMarket(info.Data)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", marketKey, err)
	}
	return market, nil
}

// OpenOrdersAddress derives a deterministic order-tracking account for an
// owner on a market, so repeated routes through the same market reuse one
// account instead of leaking rent.
func (o *OpenBook) OpenOrdersAddress(owner, market solana.PublicKey) (solana.PublicKey, string, error) {
	seed := market.String()[:32]
	address, err := solana.CreateWithSeed(owner, seed, o.programID)
	if err != nil {
		return solana.PublicKey{}, "", fmt.Errorf("derive open orders for %s on %s: %w", owner, market, err)
	}
	return address, seed, nil
}

// EnsureOpenOrders returns the instruction that creates the owner's
// order-tracking account for a market if it does not exist yet, or nil when
// it already does.
func (o *OpenBook) EnsureOpenOrders(ctx context.Context, payer, owner, market solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	address, seed, err := o.OpenOrdersAddress(owner, market)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	if _, err := o.client.GetAccount(ctx, address); err == nil {
		return address, nil, nil
	}

	lamports, err := o.client.MinimumBalanceForRentExemption(ctx, OpenOrdersLen)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("rent for open orders: %w", err)
	}

	ix, err := system.NewCreateAccountWithSeedInstruction(
		owner,
		seed,
		lamports,
		OpenOrdersLen,
		o.programID,
		payer,
		address,
		owner,
	).ValidateAndBuild()
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("build create open orders: %w", err)
	}
	return address, ix, nil
}
