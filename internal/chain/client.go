// Package chain wraps the Solana JSON-RPC surface the executor depends on
// behind a narrow interface, with retry and confirmation helpers.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrAccountNotFound marks a fetch for an account that does not exist at the
// requested commitment.
var ErrAccountNotFound = errors.New("account not found")

// ProgramAccount pairs an account's address with its raw data.
type ProgramAccount struct {
	Pubkey solana.PublicKey
	Data   []byte
}

// AccountInfo is the owner and payload of a fetched account.
type AccountInfo struct {
	Owner solana.PublicKey
	Data  []byte
}

// Client is the RPC surface the executor uses. A fake implementation stands in
// for the network in tests.
type Client interface {
	GetAccount(ctx context.Context, key solana.PublicKey) (AccountInfo, error)
	GetMultipleAccountData(ctx context.Context, keys ...solana.PublicKey) ([][]byte, error)
	GetProgramAccounts(ctx context.Context, programID solana.PublicKey, discriminator []byte) ([]ProgramAccount, error)
	MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error)
	ClusterUnixTime(ctx context.Context) (int64, error)
}

type rpcClient struct {
	rpc           *rpc.Client
	commitment    rpc.CommitmentType
	skipPreflight bool
	maxRetries    *uint
	retryTries    uint
}

// Options configures the RPC-backed client.
type Options struct {
	Commitment    rpc.CommitmentType
	SkipPreflight bool
	MaxRetries    *uint
	// RetryAttempts bounds the exponential-backoff retry loop around read
	// calls. Zero means a single attempt.
	RetryAttempts uint
}

// NewClient builds a Client over the given RPC endpoint.
func NewClient(rpcURL string, opts Options) Client {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 1
	}
	return &rpcClient{
		rpc:           rpc.New(rpcURL),
		commitment:    opts.Commitment,
		skipPreflight: opts.SkipPreflight,
		maxRetries:    opts.MaxRetries,
		retryTries:    opts.RetryAttempts,
	}
}

func retry[T any](ctx context.Context, tries uint, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tries),
	)
}

func (c *rpcClient) GetAccount(ctx context.Context, key solana.PublicKey) (AccountInfo, error) {
	return retry(ctx, c.retryTries, func() (AccountInfo, error) {
		resp, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				return AccountInfo{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrAccountNotFound, key))
			}
			return AccountInfo{}, err
		}
		if resp == nil || resp.Value == nil {
			return AccountInfo{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrAccountNotFound, key))
		}
		return AccountInfo{
			Owner: resp.Value.Owner,
			Data:  resp.Value.Data.GetBinary(),
		}, nil
	})
}

func (c *rpcClient) GetMultipleAccountData(ctx context.Context, keys ...solana.PublicKey) ([][]byte, error) {
	return retry(ctx, c.retryTries, func() ([][]byte, error) {
		resp, err := c.rpc.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{Commitment: c.commitment})
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Value) != len(keys) {
			return nil, fmt.Errorf("unexpected account count: got %d, want %d", len(resp.Value), len(keys))
		}
		out := make([][]byte, len(keys))
		for i, acc := range resp.Value {
			if acc == nil {
				continue
			}
			out[i] = acc.Data.GetBinary()
		}
		return out, nil
	})
}

func (c *rpcClient) GetProgramAccounts(ctx context.Context, programID solana.PublicKey, discriminator []byte) ([]ProgramAccount, error) {
	return retry(ctx, c.retryTries, func() ([]ProgramAccount, error) {
		resp, err := c.rpc.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
			Commitment: c.commitment,
			Filters: []rpc.RPCFilter{
				{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(discriminator)}},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("getProgramAccounts %s: %w", programID, err)
		}
		out := make([]ProgramAccount, 0, len(resp))
		for _, item := range resp {
			if item == nil || item.Account == nil {
				continue
			}
			out = append(out, ProgramAccount{Pubkey: item.Pubkey, Data: item.Account.Data.GetBinary()})
		}
		return out, nil
	})
}

func (c *rpcClient) MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	return retry(ctx, c.retryTries, func() (uint64, error) {
		return c.rpc.GetMinimumBalanceForRentExemption(ctx, dataLen, c.commitment)
	})
}

func (c *rpcClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return retry(ctx, c.retryTries, func() (solana.Hash, error) {
		recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
		}
		return recent.Value.Blockhash, nil
	})
}

func (c *rpcClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	opts := rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	}
	if c.maxRetries != nil {
		retries := *c.maxRetries
		opts.MaxRetries = &retries
	}
	return c.rpc.SendTransactionWithOpts(ctx, tx, opts)
}

func (c *rpcClient) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// ClusterUnixTime reads the block time of the most recent slot. Callers fall
// back to the local clock on error; strategy expiries compare against cluster
// time, so the chain's opinion wins whenever it is available.
func (c *rpcClient) ClusterUnixTime(ctx context.Context) (int64, error) {
	slot, err := c.rpc.GetSlot(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	blockTime, err := c.rpc.GetBlockTime(ctx, slot)
	if err != nil {
		return 0, fmt.Errorf("get block time for slot %d: %w", slot, err)
	}
	if blockTime == nil {
		return 0, fmt.Errorf("no block time for slot %d", slot)
	}
	return int64(*blockTime), nil
}

// ErrPollTimeout reports that a poll loop exhausted its attempts.
var ErrPollTimeout = errors.New("poll attempts exhausted")

// PollUntil invokes fn every interval until it reports done, errors, the
// context is cancelled, or maxAttempts elapse.
func PollUntil(ctx context.Context, interval time.Duration, maxAttempts int, fn func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := fn(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
	return ErrPollTimeout
}

// WaitForConfirmation polls signature status until the transaction is
// confirmed or finalized.
func WaitForConfirmation(ctx context.Context, client Client, sig solana.Signature, interval time.Duration, maxAttempts int) error {
	return PollUntil(ctx, interval, maxAttempts, func(ctx context.Context) (bool, error) {
		status, err := client.SignatureStatus(ctx, sig)
		if err != nil || status == nil {
			return false, nil
		}
		if status.Err != nil {
			return false, fmt.Errorf("transaction %s failed: %v", sig, status.Err)
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return true, nil
		}
		return false, nil
	})
}
