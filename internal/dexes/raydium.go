package dexes

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/mithraiclabs/poseidon/internal/chain"
)

// VenueRaydium labels the AMM venue in route quotes.
const VenueRaydium = "Raydium"

// Seeds the AMM program uses for its pool accounts, keyed off the paired
// order-book market.
const (
	raydiumAuthoritySeed = "amm authority"
	ammAssociatedSeed    = "amm_associated_seed"
	ammOpenOrdersSeed    = "open_order_associated_seed"
	ammTargetOrdersSeed  = "target_associated_seed"
	ammCoinVaultSeed     = "coin_vault_associated_seed"
	ammPcVaultSeed       = "pc_vault_associated_seed"
)

// Raydium builds trade accounts for the constant-product AMM. Every pool
// address is derived from the paired order-book market, so a leg only needs
// the market key.
//
// Account order, fixed by the on-chain program:
//
//	 0 - amm program
//	 1 - amm pool
//	 2 - amm authority
//	 3 - amm open orders
//	 4 - amm target orders
//	 5 - pool base vault
//	 6 - pool quote vault
//	 7 - order-book program
//	 8 - order-book market
//	 9 - bids
//	10 - asks
//	11 - event queue
//	12 - market base vault
//	13 - market quote vault
//	14 - market vault signer
//	15 - source wallet
//	16 - destination wallet
//	17 - source owner
//	18 - token program
type Raydium struct {
	client         chain.Client
	programID      solana.PublicKey
	serumProgramID solana.PublicKey
}

func NewRaydium(client chain.Client, programID, serumProgramID solana.PublicKey) *Raydium {
	return &Raydium{client: client, programID: programID, serumProgramID: serumProgramID}
}

func (r *Raydium) Venue() string { return VenueRaydium }

// PoolKeys are the AMM-side addresses derived for one market.
type PoolKeys struct {
	AmmID        solana.PublicKey
	Authority    solana.PublicKey
	OpenOrders   solana.PublicKey
	TargetOrders solana.PublicKey
	BaseVault    solana.PublicKey
	QuoteVault   solana.PublicKey
}

// DerivePoolKeys computes the AMM pool addresses associated with a market.
func (r *Raydium) DerivePoolKeys(market solana.PublicKey) (PoolKeys, error) {
	authority, _, err := solana.FindProgramAddress([][]byte{[]byte(raydiumAuthoritySeed)}, r.programID)
	if err != nil {
		return PoolKeys{}, fmt.Errorf("derive amm authority: %w", err)
	}

	associated := func(seed string) (solana.PublicKey, error) {
		key, _, err := solana.FindProgramAddress([][]byte{
			r.programID.Bytes(),
			market.Bytes(),
			[]byte(seed),
		}, r.programID)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("derive %s for market %s: %w", seed, market, err)
		}
		return key, nil
	}

	ammID, err := associated(ammAssociatedSeed)
	if err != nil {
		return PoolKeys{}, err
	}
	openOrders, err := associated(ammOpenOrdersSeed)
	if err != nil {
		return PoolKeys{}, err
	}
	targetOrders, err := associated(ammTargetOrdersSeed)
	if err != nil {
		return PoolKeys{}, err
	}
	baseVault, err := associated(ammCoinVaultSeed)
	if err != nil {
		return PoolKeys{}, err
	}
	quoteVault, err := associated(ammPcVaultSeed)
	if err != nil {
		return PoolKeys{}, err
	}

	return PoolKeys{
		AmmID:        ammID,
		Authority:    authority,
		OpenOrders:   openOrders,
		TargetOrders: targetOrders,
		BaseVault:    baseVault,
		QuoteVault:   quoteVault,
	}, nil
}

// BuildTradeAccounts fetches the paired order-book market, derives the pool
// addresses and lays out the leg's accounts. The AMM leg carries no extra
// instruction bytes.
func (r *Raydium) BuildTradeAccounts(ctx context.Context, leg TradeLeg) (solana.AccountMetaSlice, []byte, error) {
	info, err := r.client.GetAccount(ctx, leg.Market)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch market %s: %w", leg.Market, err)
	}
	if !info.Owner.Equals(r.serumProgramID) {
		return nil, nil, fmt.Errorf("%w: market %s owned by %s, want %s",
			ErrUnexpectedMarketOwner, leg.Market, info.Owner, r.serumProgramID)
	}
	market, err := ParseSerumMarket(info.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("market %s: %w", leg.Market, err)
	}

	pool, err := r.DerivePoolKeys(leg.Market)
	if err != nil {
		return nil, nil, err
	}

	vaultSigner, err := market.VaultSigner(r.serumProgramID)
	if err != nil {
		return nil, nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(r.programID, false, false),
		solana.NewAccountMeta(pool.AmmID, true, false),
		solana.NewAccountMeta(pool.Authority, false, false),
		solana.NewAccountMeta(pool.OpenOrders, true, false),
		solana.NewAccountMeta(pool.TargetOrders, true, false),
		solana.NewAccountMeta(pool.BaseVault, true, false),
		solana.NewAccountMeta(pool.QuoteVault, true, false),
		solana.NewAccountMeta(r.serumProgramID, false, false),
		solana.NewAccountMeta(leg.Market, true, false),
		solana.NewAccountMeta(market.Bids, true, false),
		solana.NewAccountMeta(market.Asks, true, false),
		solana.NewAccountMeta(market.EventQueue, true, false),
		solana.NewAccountMeta(market.BaseVault, true, false),
		solana.NewAccountMeta(market.QuoteVault, true, false),
		solana.NewAccountMeta(vaultSigner, false, false),
		solana.NewAccountMeta(leg.SourceAccount, true, false),
		solana.NewAccountMeta(leg.DestinationAccount, true, false),
		solana.NewAccountMeta(leg.SourceOwner, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	return accounts, nil, nil
}
