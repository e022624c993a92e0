package strategy

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// Seed tags for the program-derived addresses owned by a strategy.
const (
	strategySeed   = "boundedStrategy"
	orderPayerSeed = "orderPayer"
	authoritySeed  = "authority"
	openOrdersSeed = "openOrders"
)

// DeriveStrategy derives the strategy account address. The seeds cover every
// economic term, so two strategies with identical mint, bound price and
// reclaim date resolve to the same address and a duplicate creation fails
// closed instead of overwriting.
func DeriveStrategy(
	programID solana.PublicKey,
	collateralMint solana.PublicKey,
	boundPriceNumerator uint64,
	boundPriceDenominator uint64,
	reclaimDate int64,
) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{
		collateralMint.Bytes(),
		u64LE(boundPriceNumerator),
		u64LE(boundPriceDenominator),
		u64LE(uint64(reclaimDate)),
		[]byte(strategySeed),
	}, programID)
}

// DeriveCollateralAccount derives the escrow token account ("order payer")
// for a strategy.
func DeriveCollateralAccount(programID, strategy solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{strategy.Bytes(), []byte(orderPayerSeed)}, programID)
}

// DeriveAuthority derives the PDA that signs on behalf of a strategy.
func DeriveAuthority(programID, strategy solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{strategy.Bytes(), []byte(authoritySeed)}, programID)
}

// DeriveOpenOrders derives the order-book order-tracking account owned by a
// strategy's authority.
func DeriveOpenOrders(programID, strategy solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{strategy.Bytes(), []byte(openOrdersSeed)}, programID)
}

// StrategyKeys bundles every derived address for one strategy.
type StrategyKeys struct {
	Strategy          solana.PublicKey
	StrategyBump      uint8
	CollateralAccount solana.PublicKey
	Authority         solana.PublicKey
	AuthorityBump     uint8
	OpenOrders        solana.PublicKey
}

// DeriveAllKeys derives the full key set for the given strategy parameters.
func DeriveAllKeys(programID solana.PublicKey, params Params) (StrategyKeys, error) {
	strategyKey, strategyBump, err := DeriveStrategy(
		programID,
		params.CollateralMint,
		params.BoundPriceNumerator,
		params.BoundPriceDenominator,
		params.ReclaimDate,
	)
	if err != nil {
		return StrategyKeys{}, err
	}
	collateral, _, err := DeriveCollateralAccount(programID, strategyKey)
	if err != nil {
		return StrategyKeys{}, err
	}
	authority, authorityBump, err := DeriveAuthority(programID, strategyKey)
	if err != nil {
		return StrategyKeys{}, err
	}
	openOrders, _, err := DeriveOpenOrders(programID, strategyKey)
	if err != nil {
		return StrategyKeys{}, err
	}
	return StrategyKeys{
		Strategy:          strategyKey,
		StrategyBump:      strategyBump,
		CollateralAccount: collateral,
		Authority:         authority,
		AuthorityBump:     authorityBump,
		OpenOrders:        openOrders,
	}, nil
}

func u64LE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}
