// Package dexes builds the fixed account lists each trading venue expects in
// the trade instruction's tail. Account order is a wire contract with the
// on-chain program, so each adapter documents its layout and emits it
// position by position.
package dexes

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrUnknownVenue          = errors.New("unknown venue")
	ErrUnexpectedMarketOwner = errors.New("market account owned by unexpected program")
)

// TradeLeg is one hop of a route: spend from SourceAccount, receive into
// DestinationAccount, trading on Market.
type TradeLeg struct {
	// Market is the order-book market address. AMM venues derive their pool
	// addresses from it.
	Market             solana.PublicKey
	SourceAccount      solana.PublicKey
	SourceOwner        solana.PublicKey
	DestinationAccount solana.PublicKey
	// OpenOrders is the order-tracking account for order-book venues. AMM
	// venues ignore it.
	OpenOrders solana.PublicKey
}

// Adapter renders a leg into the venue's expected account list plus any bytes
// the on-chain program needs alongside the accounts.
type Adapter interface {
	Venue() string
	BuildTradeAccounts(ctx context.Context, leg TradeLeg) (solana.AccountMetaSlice, []byte, error)
}

// Registry resolves venue labels to adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	byName := make(map[string]Adapter, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Venue()] = adapter
	}
	return &Registry{adapters: byName}
}

func (r *Registry) Lookup(venue string) (Adapter, error) {
	adapter, ok := r.adapters[venue]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVenue, venue)
	}
	return adapter, nil
}

// Venues lists the registered venue labels.
func (r *Registry) Venues() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	return out
}
