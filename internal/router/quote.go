// Package router turns a strategy's bound into a concrete, executable trade
// route: it queries an external quoting service, rejects routes that violate
// the bound, and assembles the per-leg account lists for the first route that
// passes.
package router

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// QuoteRequest asks the quoting service for candidate routes spending Amount
// of InputMint for OutputMint.
type QuoteRequest struct {
	InputMint        solana.PublicKey
	OutputMint       solana.PublicKey
	Amount           uint64
	SlippageBps      uint64
	OnlyDirectRoutes bool
	ExcludedVenues   []string
}

// LegQuote is one hop of a quoted route.
type LegQuote struct {
	// MarketID identifies the venue market to trade on.
	MarketID solana.PublicKey
	// Venue is the label the quoting service uses for the venue, matched
	// against adapter registrations.
	Venue              string
	InputMint          solana.PublicKey
	OutputMint         solana.PublicKey
	InAmount           uint64
	OutAmount          uint64
	NotEnoughLiquidity bool
}

// Route is a candidate execution path. The quoting service returns routes
// best-first.
type Route struct {
	InAmount  uint64
	OutAmount uint64
	Legs      []LegQuote
}

// Quoter supplies candidate routes. Implementations are treated as unreliable
// external services: any error means "no routes this cycle".
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) ([]Route, error)
}

// DefaultExcludedVenues lists venues whose settlement semantics the on-chain
// program cannot execute against. Quoted routes touching any of these are
// discarded.
var DefaultExcludedVenues = []string{
	"Aldrin",
	"Balansol",
	"Crema",
	"Cropper",
	"Cykura",
	"DeltaFi",
	"Dradex",
	"GooseFX",
	"Invariant",
	"Lifinity",
	"Lifinity V2",
	"Marco Polo",
	"Marinade",
	"Mercurial",
	"Meteora",
	"Orca",
	"Orca (Whirlpools)",
	"Penguin",
	"Phoenix",
	"Raydium CLMM",
	"Saber",
	"Saber (Decimals)",
	"Saros",
	"Sencha",
	"Serum",
	"Step",
	"Stepn",
	"Unknown",
}
