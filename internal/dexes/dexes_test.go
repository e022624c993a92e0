package dexes

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/mithraiclabs/poseidon/internal/chain"
	"github.com/mithraiclabs/poseidon/internal/spltoken"
)

var (
	testOpenBookProgram = solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	testRaydiumProgram  = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
)

type fakeClient struct {
	accounts map[solana.PublicKey]chain.AccountInfo
	rent     uint64
}

func newFakeClient() *fakeClient {
	return &fakeClient{accounts: make(map[solana.PublicKey]chain.AccountInfo), rent: 22_000_000}
}

func (f *fakeClient) GetAccount(_ context.Context, key solana.PublicKey) (chain.AccountInfo, error) {
	info, ok := f.accounts[key]
	if !ok {
		return chain.AccountInfo{}, fmt.Errorf("%w: %s", chain.ErrAccountNotFound, key)
	}
	return info, nil
}

func (f *fakeClient) GetMultipleAccountData(ctx context.Context, keys ...solana.PublicKey) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if info, ok := f.accounts[key]; ok {
			out[i] = info.Data
		}
	}
	return out, nil
}

func (f *fakeClient) GetProgramAccounts(context.Context, solana.PublicKey, []byte) ([]chain.ProgramAccount, error) {
	return nil, nil
}

func (f *fakeClient) MinimumBalanceForRentExemption(context.Context, uint64) (uint64, error) {
	return f.rent, nil
}

func (f *fakeClient) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}

func (f *fakeClient) SendTransaction(context.Context, *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, nil
}

func (f *fakeClient) SignatureStatus(context.Context, solana.Signature) (*rpc.SignatureStatusesResult, error) {
	return nil, nil
}

func (f *fakeClient) ClusterUnixTime(context.Context) (int64, error) {
	return 0, nil
}

// craftMarket builds a serum market whose vault-signer nonce actually derives,
// and registers it with the fake client.
func craftMarket(t *testing.T, client *fakeClient, owner solana.PublicKey) (solana.PublicKey, *SerumMarket) {
	t.Helper()

	marketKey := solana.NewWallet().PublicKey()
	var nonce uint64
	found := false
	for ; nonce < 255; nonce++ {
		seeds := [][]byte{marketKey.Bytes(), u64LEBytes(nonce)}
		if _, err := solana.CreateProgramAddress(seeds, testOpenBookProgram); err == nil {
			found = true
			break
		}
	}
	require.True(t, found, "no valid vault signer nonce for market")

	market := &SerumMarket{
		AccountFlags:     3,
		OwnAddress:       marketKey,
		VaultSignerNonce: nonce,
		BaseMint:         solana.NewWallet().PublicKey(),
		QuoteMint:        solana.NewWallet().PublicKey(),
		BaseVault:        solana.NewWallet().PublicKey(),
		QuoteVault:       solana.NewWallet().PublicKey(),
		RequestQueue:     solana.NewWallet().PublicKey(),
		EventQueue:       solana.NewWallet().PublicKey(),
		Bids:             solana.NewWallet().PublicKey(),
		Asks:             solana.NewWallet().PublicKey(),
		BaseLotSize:      100_000,
		QuoteLotSize:     100,
	}

	body := new(bytes.Buffer)
	require.NoError(t, bin.NewBinEncoder(body).Encode(market))

	data := make([]byte, 0, serumHeadPadding+body.Len()+serumTailPadding)
	data = append(data, []byte("serum")...)
	data = append(data, body.Bytes()...)
	data = append(data, []byte("padding")...)

	client.accounts[marketKey] = chain.AccountInfo{Owner: owner, Data: data}

	mintData := make([]byte, spltoken.MintLen)
	mintData[44] = 9
	client.accounts[market.BaseMint] = chain.AccountInfo{Owner: solana.TokenProgramID, Data: mintData}

	return marketKey, market
}

func u64LEBytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

func TestParseSerumMarketRoundTrip(t *testing.T) {
	client := newFakeClient()
	marketKey, want := craftMarket(t, client, testOpenBookProgram)

	got, err := ParseSerumMarket(client.accounts[marketKey].Data)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestOpenBookTradeAccountsLayout(t *testing.T) {
	client := newFakeClient()
	marketKey, market := craftMarket(t, client, testOpenBookProgram)

	adapter := NewOpenBook(client, testOpenBookProgram)
	leg := TradeLeg{
		Market:             marketKey,
		SourceAccount:      solana.NewWallet().PublicKey(),
		SourceOwner:        solana.NewWallet().PublicKey(),
		DestinationAccount: solana.NewWallet().PublicKey(),
		OpenOrders:         solana.NewWallet().PublicKey(),
	}

	accounts, additionalData, err := adapter.BuildTradeAccounts(context.Background(), leg)
	require.NoError(t, err)
	require.Equal(t, []byte{9}, additionalData)
	require.Len(t, accounts, 16)

	vaultSigner, err := market.VaultSigner(testOpenBookProgram)
	require.NoError(t, err)

	wantKeys := []solana.PublicKey{
		testOpenBookProgram,
		marketKey,
		market.Bids,
		market.Asks,
		leg.OpenOrders,
		market.RequestQueue,
		market.EventQueue,
		market.BaseVault,
		market.QuoteVault,
		vaultSigner,
		solana.TokenProgramID,
		solana.SysVarRentPubkey,
		solana.SysVarRentPubkey,
		leg.SourceOwner,
		leg.SourceAccount,
		leg.DestinationAccount,
	}
	wantWritable := []bool{
		false, true, true, true, true, true, true, true, true,
		false, false, false, false, false, true, true,
	}
	for i := range wantKeys {
		require.Equal(t, wantKeys[i], accounts[i].PublicKey, "account %d", i)
		require.Equal(t, wantWritable[i], accounts[i].IsWritable, "writable flag %d", i)
		require.False(t, accounts[i].IsSigner, "signer flag %d", i)
	}
}

func TestOpenBookRejectsSpoofedMarketOwner(t *testing.T) {
	client := newFakeClient()
	marketKey, _ := craftMarket(t, client, solana.NewWallet().PublicKey())

	adapter := NewOpenBook(client, testOpenBookProgram)
	_, _, err := adapter.BuildTradeAccounts(context.Background(), TradeLeg{Market: marketKey})
	require.ErrorIs(t, err, ErrUnexpectedMarketOwner)
}

func TestOpenBookEnsureOpenOrders(t *testing.T) {
	client := newFakeClient()
	adapter := NewOpenBook(client, testOpenBookProgram)
	owner := solana.NewWallet().PublicKey()
	market := solana.NewWallet().PublicKey()

	address, createIx, err := adapter.EnsureOpenOrders(context.Background(), owner, owner, market)
	require.NoError(t, err)
	require.NotNil(t, createIx, "missing account should produce a create instruction")

	derived, _, err := adapter.OpenOrdersAddress(owner, market)
	require.NoError(t, err)
	require.Equal(t, derived, address)

	// A second call with the account present reuses it.
	client.accounts[address] = chain.AccountInfo{Owner: testOpenBookProgram, Data: make([]byte, OpenOrdersLen)}
	again, createIx, err := adapter.EnsureOpenOrders(context.Background(), owner, owner, market)
	require.NoError(t, err)
	require.Nil(t, createIx)
	require.Equal(t, address, again)
}

func TestRaydiumPoolKeysDeterministic(t *testing.T) {
	client := newFakeClient()
	adapter := NewRaydium(client, testRaydiumProgram, testOpenBookProgram)
	market := solana.NewWallet().PublicKey()

	first, err := adapter.DerivePoolKeys(market)
	require.NoError(t, err)
	second, err := adapter.DerivePoolKeys(market)
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := adapter.DerivePoolKeys(solana.NewWallet().PublicKey())
	require.NoError(t, err)
	require.NotEqual(t, first.AmmID, other.AmmID)
	require.Equal(t, first.Authority, other.Authority, "amm authority is market independent")
}

func TestRaydiumTradeAccountsLayout(t *testing.T) {
	client := newFakeClient()
	marketKey, market := craftMarket(t, client, testOpenBookProgram)

	adapter := NewRaydium(client, testRaydiumProgram, testOpenBookProgram)
	leg := TradeLeg{
		Market:             marketKey,
		SourceAccount:      solana.NewWallet().PublicKey(),
		SourceOwner:        solana.NewWallet().PublicKey(),
		DestinationAccount: solana.NewWallet().PublicKey(),
	}

	accounts, additionalData, err := adapter.BuildTradeAccounts(context.Background(), leg)
	require.NoError(t, err)
	require.Empty(t, additionalData)
	require.Len(t, accounts, 19)

	pool, err := adapter.DerivePoolKeys(marketKey)
	require.NoError(t, err)
	vaultSigner, err := market.VaultSigner(testOpenBookProgram)
	require.NoError(t, err)

	require.Equal(t, testRaydiumProgram, accounts[0].PublicKey)
	require.Equal(t, pool.AmmID, accounts[1].PublicKey)
	require.Equal(t, pool.Authority, accounts[2].PublicKey)
	require.Equal(t, testOpenBookProgram, accounts[7].PublicKey)
	require.Equal(t, marketKey, accounts[8].PublicKey)
	require.Equal(t, vaultSigner, accounts[14].PublicKey)
	require.Equal(t, leg.SourceAccount, accounts[15].PublicKey)
	require.Equal(t, leg.DestinationAccount, accounts[16].PublicKey)
	require.Equal(t, leg.SourceOwner, accounts[17].PublicKey)
	require.Equal(t, solana.TokenProgramID, accounts[18].PublicKey)

	for _, i := range []int{0, 2, 7, 14, 17, 18} {
		require.False(t, accounts[i].IsWritable, "account %d should be read-only", i)
	}
	for _, i := range []int{1, 3, 4, 5, 6, 8, 9, 10, 11, 12, 13, 15, 16} {
		require.True(t, accounts[i].IsWritable, "account %d should be writable", i)
	}
}

func TestRaydiumRejectsSpoofedMarketOwner(t *testing.T) {
	client := newFakeClient()
	marketKey, _ := craftMarket(t, client, solana.NewWallet().PublicKey())

	adapter := NewRaydium(client, testRaydiumProgram, testOpenBookProgram)
	_, _, err := adapter.BuildTradeAccounts(context.Background(), TradeLeg{Market: marketKey})
	require.ErrorIs(t, err, ErrUnexpectedMarketOwner)
}

func TestRegistryLookup(t *testing.T) {
	client := newFakeClient()
	openBook := NewOpenBook(client, testOpenBookProgram)
	raydium := NewRaydium(client, testRaydiumProgram, testOpenBookProgram)
	registry := NewRegistry(openBook, raydium)

	adapter, err := registry.Lookup(VenueOpenBook)
	require.NoError(t, err)
	require.Equal(t, VenueOpenBook, adapter.Venue())

	_, err = registry.Lookup("Phoenix")
	require.ErrorIs(t, err, ErrUnknownVenue)
}
