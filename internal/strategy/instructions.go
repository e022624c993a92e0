package strategy

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// Anchor-style instruction discriminators.
var (
	initBoundedStrategyDisc = instructionDiscriminator("init_bounded_strategy")
	boundedTradeDisc        = instructionDiscriminator("bounded_trade")
	reclaimDisc             = instructionDiscriminator("reclaim")
)

// NewInitBoundedStrategyInstruction creates and funds a strategy: it
// initializes the strategy and escrow accounts at their derived addresses and
// moves the transfer amount from the reclaim account into escrow.
func NewInitBoundedStrategyInstruction(
	programID solana.PublicKey,
	params Params,
	keys StrategyKeys,
	payer solana.PublicKey,
) solana.Instruction {
	data := make([]byte, 0, 8+8+8+8+8+1+1)
	data = append(data, initBoundedStrategyDisc[:]...)
	data = appendU64(data, params.TransferAmount)
	data = appendU64(data, params.BoundPriceNumerator)
	data = appendU64(data, params.BoundPriceDenominator)
	data = appendU64(data, uint64(params.ReclaimDate))
	data = append(data, uint8(params.OrderSide), uint8(params.Bound))

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(keys.Authority, false, false),
		solana.NewAccountMeta(params.CollateralMint, false, false),
		solana.NewAccountMeta(keys.Strategy, true, false),
		solana.NewAccountMeta(keys.CollateralAccount, true, false),
		solana.NewAccountMeta(params.ReclaimAddress, true, false),
		solana.NewAccountMeta(params.DepositAddress, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}
	return solana.NewInstruction(programID, accounts, data)
}

// NewBoundedTradeInstruction executes a staged route against a strategy. The
// leg accounts follow the fixed header accounts in route order; the program
// walks them venue by venue.
func NewBoundedTradeInstruction(
	programID solana.PublicKey,
	payer solana.PublicKey,
	strategyKey solana.PublicKey,
	collateralAccount solana.PublicKey,
	depositAccount solana.PublicKey,
	legAccounts solana.AccountMetaSlice,
	additionalData []byte,
) solana.Instruction {
	data := make([]byte, 0, 8+4+len(additionalData))
	data = append(data, boundedTradeDisc[:]...)
	data = appendU32(data, uint32(len(additionalData)))
	data = append(data, additionalData...)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, false, true),
		solana.NewAccountMeta(strategyKey, true, false),
		solana.NewAccountMeta(collateralAccount, true, false),
		solana.NewAccountMeta(depositAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	accounts = append(accounts, legAccounts...)
	return solana.NewInstruction(programID, accounts, data)
}

// NewReclaimInstruction returns the remaining escrow balance to the reclaim
// address and closes the escrow and strategy accounts, releasing their rent to
// the receiver. openOrders, when non-nil, is the venue order-tracking account
// to close alongside.
func NewReclaimInstruction(
	programID solana.PublicKey,
	receiver solana.PublicKey,
	strategyKey solana.PublicKey,
	authority solana.PublicKey,
	collateralAccount solana.PublicKey,
	reclaimAccount solana.PublicKey,
	openOrders *solana.PublicKey,
) solana.Instruction {
	data := make([]byte, 8)
	copy(data, reclaimDisc[:])

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(receiver, true, true),
		solana.NewAccountMeta(strategyKey, true, false),
		solana.NewAccountMeta(authority, false, false),
		solana.NewAccountMeta(collateralAccount, true, false),
		solana.NewAccountMeta(reclaimAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	if openOrders != nil {
		accounts = append(accounts, solana.NewAccountMeta(*openOrders, true, false))
	}
	return solana.NewInstruction(programID, accounts, data)
}

func instructionDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

func appendU64(buf []byte, value uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], value)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, value uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], value)
	return append(buf, tmp[:]...)
}
