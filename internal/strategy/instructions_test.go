package strategy

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestInitBoundedStrategyInstructionData(t *testing.T) {
	params := validParams()
	keys, err := DeriveAllKeys(testProgramID, params)
	require.NoError(t, err)
	payer := solana.NewWallet().PublicKey()

	ix := NewInitBoundedStrategyInstruction(testProgramID, params, keys, payer)
	require.Equal(t, testProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+8+8+8+8+1+1)
	require.Equal(t, initBoundedStrategyDisc[:], data[:8])
	require.Equal(t, params.TransferAmount, binary.LittleEndian.Uint64(data[8:16]))
	require.Equal(t, params.BoundPriceNumerator, binary.LittleEndian.Uint64(data[16:24]))
	require.Equal(t, params.BoundPriceDenominator, binary.LittleEndian.Uint64(data[24:32]))
	require.Equal(t, uint64(params.ReclaimDate), binary.LittleEndian.Uint64(data[32:40]))
	require.Equal(t, uint8(params.OrderSide), data[40])
	require.Equal(t, uint8(params.Bound), data[41])

	accounts := ix.Accounts()
	require.Len(t, accounts, 10)
	require.Equal(t, payer, accounts[0].PublicKey)
	require.True(t, accounts[0].IsSigner)
	require.True(t, accounts[0].IsWritable)
	require.Equal(t, keys.Strategy, accounts[3].PublicKey)
	require.Equal(t, solana.SystemProgramID, accounts[8].PublicKey)
}

func TestBoundedTradeInstructionAppendsLegAccounts(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	strategyKey := solana.NewWallet().PublicKey()
	collateral := solana.NewWallet().PublicKey()
	deposit := solana.NewWallet().PublicKey()
	legAccounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(solana.NewWallet().PublicKey(), true, false),
		solana.NewAccountMeta(solana.NewWallet().PublicKey(), false, false),
	}

	ix := NewBoundedTradeInstruction(testProgramID, payer, strategyKey, collateral, deposit, legAccounts, []byte{9})

	accounts := ix.Accounts()
	require.Len(t, accounts, 5+len(legAccounts))
	require.Equal(t, legAccounts[0].PublicKey, accounts[5].PublicKey)
	require.Equal(t, legAccounts[1].PublicKey, accounts[6].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Equal(t, boundedTradeDisc[:], data[:8])
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[8:12]))
	require.Equal(t, byte(9), data[12])
}

func TestReclaimInstructionOptionalOpenOrders(t *testing.T) {
	receiver := solana.NewWallet().PublicKey()
	strategyKey := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	collateral := solana.NewWallet().PublicKey()
	reclaim := solana.NewWallet().PublicKey()

	without := NewReclaimInstruction(testProgramID, receiver, strategyKey, authority, collateral, reclaim, nil)
	require.Len(t, without.Accounts(), 6)

	openOrders := solana.NewWallet().PublicKey()
	with := NewReclaimInstruction(testProgramID, receiver, strategyKey, authority, collateral, reclaim, &openOrders)
	accounts := with.Accounts()
	require.Len(t, accounts, 7)
	require.Equal(t, openOrders, accounts[6].PublicKey)
	require.True(t, accounts[6].IsWritable)
}
