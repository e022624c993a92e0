// Package executor runs the polling loop that drives open strategies to
// completion: trade while the bound can be met, reclaim once expired.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"golang.org/x/sync/errgroup"

	"github.com/mithraiclabs/poseidon/internal/chain"
	"github.com/mithraiclabs/poseidon/internal/config"
	"github.com/mithraiclabs/poseidon/internal/router"
	"github.com/mithraiclabs/poseidon/internal/spltoken"
	"github.com/mithraiclabs/poseidon/internal/store"
	"github.com/mithraiclabs/poseidon/internal/strategy"
)

// routePlanner is the route-selection surface the service depends on, kept
// narrow so tests can fake it.
type routePlanner interface {
	SelectRoute(ctx context.Context, req router.SelectRequest) (*router.Plan, error)
}

// recorder persists confirmed executions. Nil disables persistence.
type recorder interface {
	RecordFill(ctx context.Context, fill store.Fill) error
	RecordReclaim(ctx context.Context, reclaim store.Reclaim) error
}

type Service struct {
	cfg     config.ExecutorConfig
	client  chain.Client
	planner routePlanner
	records recorder
	signer  solana.PrivateKey
	logger  *slog.Logger
}

// OpenStrategy pairs a decoded strategy with its on-chain address.
type OpenStrategy struct {
	Pubkey   solana.PublicKey
	Strategy *strategy.BoundedStrategy
}

// TradeOutcome classifies an AttemptTrade result.
type TradeOutcome int

const (
	TradeFilled TradeOutcome = iota
	TradeNoRouteFound
	TradeBoundViolation
)

func (o TradeOutcome) String() string {
	switch o {
	case TradeFilled:
		return "filled"
	case TradeNoRouteFound:
		return "no_route_found"
	case TradeBoundViolation:
		return "bound_violation"
	default:
		return fmt.Sprintf("trade_outcome(%d)", int(o))
	}
}

// TradeResult reports what AttemptTrade did.
type TradeResult struct {
	Outcome   TradeOutcome
	Signature solana.Signature
	InAmount  uint64
	OutAmount uint64
}

// ReclaimOutcome classifies an AttemptReclaim result.
type ReclaimOutcome int

const (
	Reclaimed ReclaimOutcome = iota
	ReclaimNotYetExpired
)

func (o ReclaimOutcome) String() string {
	switch o {
	case Reclaimed:
		return "reclaimed"
	case ReclaimNotYetExpired:
		return "not_yet_expired"
	default:
		return fmt.Sprintf("reclaim_outcome(%d)", int(o))
	}
}

// ReclaimResult reports what AttemptReclaim did.
type ReclaimResult struct {
	Outcome   ReclaimOutcome
	Signature solana.Signature
}

func New(
	cfg config.ExecutorConfig,
	client chain.Client,
	planner routePlanner,
	records recorder,
	logger *slog.Logger,
) (*Service, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}
	return &Service{
		cfg:     cfg,
		client:  client,
		planner: planner,
		records: records,
		signer:  signer,
		logger:  logger,
	}, nil
}

// Payer is the executor's signing identity.
func (s *Service) Payer() solana.PublicKey {
	return s.signer.PublicKey()
}

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("executor started",
		"rpc", s.cfg.RPCURL,
		"commitment", s.cfg.Commitment,
		"payer", s.signer.PublicKey(),
		"program", s.cfg.ProgramID,
	)

	if err := s.tick(ctx); err != nil {
		s.logger.Error("executor tick failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("executor stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("executor tick failed", "err", err)
			}
		}
	}
}

func (s *Service) tick(ctx context.Context) error {
	strategies, err := s.ListOpenStrategies(ctx)
	if err != nil {
		return err
	}
	if len(strategies) == 0 {
		return nil
	}

	now := s.clusterUnixTime(ctx)

	// Expired strategies first: reclaims are the cheap, guaranteed-progress
	// work, and a strategy left unexecuted past expiry is locked capital.
	sort.Slice(strategies, func(i, j int) bool {
		iExpired := strategies[i].Strategy.Expired(now)
		jExpired := strategies[j].Strategy.Expired(now)
		if iExpired != jExpired {
			return iExpired
		}
		return strategies[i].Strategy.ReclaimDate < strategies[j].Strategy.ReclaimDate
	})

	limit := s.cfg.MaxStrategiesPerTick
	if limit > len(strategies) {
		limit = len(strategies)
	}

	var group errgroup.Group
	group.SetLimit(s.cfg.Concurrency)
	for idx := 0; idx < limit; idx++ {
		candidate := strategies[idx]
		group.Go(func() error {
			// Per-strategy failures are logged and retried next poll, never
			// propagated: one strategy must not abort the cycle.
			s.processStrategy(ctx, now, candidate)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	s.logger.Info("executor tick complete", "open_strategies", len(strategies), "attempted", limit)
	return ctx.Err()
}

func (s *Service) processStrategy(ctx context.Context, now int64, candidate OpenStrategy) {
	if candidate.Strategy.Expired(now) {
		result, err := s.AttemptReclaim(ctx, now, candidate)
		if err != nil {
			s.logger.Warn("reclaim failed", "strategy", candidate.Pubkey, "err", err)
			return
		}
		s.logger.Info("reclaim attempted",
			"strategy", candidate.Pubkey,
			"outcome", result.Outcome.String(),
			"signature", result.Signature,
		)
		return
	}

	result, err := s.AttemptTrade(ctx, now, candidate)
	if err != nil {
		s.logger.Warn("trade failed", "strategy", candidate.Pubkey, "err", err)
		return
	}
	switch result.Outcome {
	case TradeFilled:
		s.logger.Info("strategy filled",
			"strategy", candidate.Pubkey,
			"in_amount", result.InAmount,
			"out_amount", result.OutAmount,
			"signature", result.Signature,
		)
	default:
		s.logger.Debug("no trade this cycle",
			"strategy", candidate.Pubkey,
			"outcome", result.Outcome.String(),
		)
	}
}

// ListOpenStrategies scans the program's accounts for strategy records,
// skipping any that fail to decode.
func (s *Service) ListOpenStrategies(ctx context.Context) ([]OpenStrategy, error) {
	accounts, err := s.client.GetProgramAccounts(ctx, s.cfg.ProgramID, strategy.AccountDiscriminator[:])
	if err != nil {
		return nil, err
	}

	out := make([]OpenStrategy, 0, len(accounts))
	for _, account := range accounts {
		decoded, err := strategy.ParseBoundedStrategy(account.Data)
		if err != nil {
			s.logger.Warn("failed to parse strategy account", "pubkey", account.Pubkey, "err", err)
			continue
		}
		out = append(out, OpenStrategy{Pubkey: account.Pubkey, Strategy: decoded})
	}
	return out, nil
}

// AttemptTrade quotes a route for the strategy and executes it when the bound
// is satisfied.
func (s *Service) AttemptTrade(ctx context.Context, now int64, candidate OpenStrategy) (TradeResult, error) {
	if err := candidate.Strategy.CheckTradeable(now); err != nil {
		return TradeResult{}, err
	}

	req, err := s.buildSelectRequest(ctx, candidate)
	if err != nil {
		return TradeResult{}, err
	}

	plan, err := s.planner.SelectRoute(ctx, req)
	if errors.Is(err, router.ErrBoundViolation) {
		return TradeResult{Outcome: TradeBoundViolation}, nil
	}
	if err != nil {
		return TradeResult{}, fmt.Errorf("select route: %w", err)
	}
	if plan == nil {
		return TradeResult{Outcome: TradeNoRouteFound}, nil
	}

	tradeIx := strategy.NewBoundedTradeInstruction(
		s.cfg.ProgramID,
		s.signer.PublicKey(),
		candidate.Pubkey,
		candidate.Strategy.CollateralAccount,
		candidate.Strategy.DepositAddress,
		plan.Accounts,
		plan.AdditionalData,
	)
	instructions := s.withComputeBudget(plan.Setup)
	instructions = append(instructions, tradeIx)

	signature, err := s.submitAndConfirm(ctx, instructions)
	if err != nil {
		return TradeResult{}, err
	}

	if s.records != nil {
		fill := store.Fill{
			Strategy:   candidate.Pubkey,
			Signature:  signature,
			InAmount:   plan.InAmount,
			OutAmount:  plan.OutAmount,
			LegCount:   len(plan.Setup) + 1,
			ExecutedAt: time.Now().UTC(),
		}
		if err := s.records.RecordFill(ctx, fill); err != nil {
			s.logger.Warn("record fill failed", "strategy", candidate.Pubkey, "err", err)
		}
	}

	return TradeResult{
		Outcome:   TradeFilled,
		Signature: signature,
		InAmount:  plan.InAmount,
		OutAmount: plan.OutAmount,
	}, nil
}

func (s *Service) buildSelectRequest(ctx context.Context, candidate OpenStrategy) (router.SelectRequest, error) {
	record := candidate.Strategy

	accountData, err := s.client.GetMultipleAccountData(ctx, record.CollateralAccount, record.DepositAddress)
	if err != nil {
		return router.SelectRequest{}, fmt.Errorf("fetch strategy token accounts: %w", err)
	}
	collateral, err := spltoken.ParseAccount(accountData[0])
	if err != nil {
		return router.SelectRequest{}, fmt.Errorf("decode collateral account %s: %w", record.CollateralAccount, err)
	}
	deposit, err := spltoken.ParseAccount(accountData[1])
	if err != nil {
		return router.SelectRequest{}, fmt.Errorf("decode deposit account %s: %w", record.DepositAddress, err)
	}

	mintData, err := s.client.GetMultipleAccountData(ctx, collateral.Mint, deposit.Mint)
	if err != nil {
		return router.SelectRequest{}, fmt.Errorf("fetch mints: %w", err)
	}
	collateralDecimals, err := spltoken.ParseMintDecimals(mintData[0])
	if err != nil {
		return router.SelectRequest{}, fmt.Errorf("decode collateral mint %s: %w", collateral.Mint, err)
	}
	depositDecimals, err := spltoken.ParseMintDecimals(mintData[1])
	if err != nil {
		return router.SelectRequest{}, fmt.Errorf("decode deposit mint %s: %w", deposit.Mint, err)
	}

	openOrders, _, err := strategy.DeriveOpenOrders(s.cfg.ProgramID, candidate.Pubkey)
	if err != nil {
		return router.SelectRequest{}, fmt.Errorf("derive open orders: %w", err)
	}

	return router.SelectRequest{
		StrategyKey:           candidate.Pubkey,
		Authority:             record.Authority,
		OpenOrders:            openOrders,
		CollateralMint:        record.CollateralMint,
		CollateralAccount:     record.CollateralAccount,
		CollateralBalance:     collateral.Amount,
		CollateralDecimals:    collateralDecimals,
		DepositMint:           deposit.Mint,
		DepositAddress:        record.DepositAddress,
		DepositDecimals:       depositDecimals,
		BoundPriceNumerator:   record.BoundPriceNumerator,
		BoundPriceDenominator: record.BoundPriceDenominator,
	}, nil
}

// AttemptReclaim returns the escrow balance to the reclaim address once the
// strategy has expired.
func (s *Service) AttemptReclaim(ctx context.Context, now int64, candidate OpenStrategy) (ReclaimResult, error) {
	if err := candidate.Strategy.CheckReclaimable(now); err != nil {
		if errors.Is(err, strategy.ErrNotYetExpired) {
			return ReclaimResult{Outcome: ReclaimNotYetExpired}, nil
		}
		return ReclaimResult{}, err
	}

	record := candidate.Strategy

	var remaining uint64
	if info, err := s.client.GetAccount(ctx, record.CollateralAccount); err == nil {
		if escrow, parseErr := spltoken.ParseAccount(info.Data); parseErr == nil {
			remaining = escrow.Amount
		}
	}

	var openOrdersKey *solana.PublicKey
	derived, _, err := strategy.DeriveOpenOrders(s.cfg.ProgramID, candidate.Pubkey)
	if err != nil {
		return ReclaimResult{}, fmt.Errorf("derive open orders: %w", err)
	}
	if _, err := s.client.GetAccount(ctx, derived); err == nil {
		openOrdersKey = &derived
	}

	reclaimIx := strategy.NewReclaimInstruction(
		s.cfg.ProgramID,
		s.signer.PublicKey(),
		candidate.Pubkey,
		record.Authority,
		record.CollateralAccount,
		record.ReclaimAddress,
		openOrdersKey,
	)
	instructions := s.withComputeBudget(nil)
	instructions = append(instructions, reclaimIx)

	signature, err := s.submitAndConfirm(ctx, instructions)
	if err != nil {
		return ReclaimResult{}, err
	}

	if s.records != nil {
		reclaim := store.Reclaim{
			Strategy:   candidate.Pubkey,
			Signature:  signature,
			Amount:     remaining,
			ExecutedAt: time.Now().UTC(),
		}
		if err := s.records.RecordReclaim(ctx, reclaim); err != nil {
			s.logger.Warn("record reclaim failed", "strategy", candidate.Pubkey, "err", err)
		}
	}

	return ReclaimResult{Outcome: Reclaimed, Signature: signature}, nil
}

// InitStrategy validates, derives and funds a new strategy, returning its
// address once the creation confirms.
func (s *Service) InitStrategy(ctx context.Context, params strategy.Params) (solana.PublicKey, error) {
	now := s.clusterUnixTime(ctx)
	if err := params.Validate(now); err != nil {
		return solana.PublicKey{}, err
	}

	accountData, err := s.client.GetMultipleAccountData(ctx, params.ReclaimAddress, params.DepositAddress)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("fetch reclaim and deposit accounts: %w", err)
	}
	reclaim, err := spltoken.ParseAccount(accountData[0])
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("decode reclaim account %s: %w", params.ReclaimAddress, err)
	}
	deposit, err := spltoken.ParseAccount(accountData[1])
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("decode deposit account %s: %w", params.DepositAddress, err)
	}
	if err := params.ValidateAccounts(reclaim, deposit); err != nil {
		return solana.PublicKey{}, err
	}

	keys, err := strategy.DeriveAllKeys(s.cfg.ProgramID, params)
	if err != nil {
		return solana.PublicKey{}, err
	}

	initIx := strategy.NewInitBoundedStrategyInstruction(s.cfg.ProgramID, params, keys, s.signer.PublicKey())
	instructions := s.withComputeBudget(nil)
	instructions = append(instructions, initIx)

	if _, err := s.submitAndConfirm(ctx, instructions); err != nil {
		return solana.PublicKey{}, err
	}
	return keys.Strategy, nil
}

// withComputeBudget prepends the configured compute-budget instructions to a
// setup list, returning a fresh slice.
func (s *Service) withComputeBudget(setup []solana.Instruction) []solana.Instruction {
	instructions := make([]solana.Instruction, 0, len(setup)+3)
	if s.cfg.ComputeUnitLimit > 0 {
		if ix, err := computebudget.NewSetComputeUnitLimitInstruction(s.cfg.ComputeUnitLimit).ValidateAndBuild(); err == nil {
			instructions = append(instructions, ix)
		}
	}
	if s.cfg.ComputeUnitPriceMicroLamports > 0 {
		if ix, err := computebudget.NewSetComputeUnitPriceInstruction(s.cfg.ComputeUnitPriceMicroLamports).ValidateAndBuild(); err == nil {
			instructions = append(instructions, ix)
		}
	}
	return append(instructions, setup...)
}

func (s *Service) submitAndConfirm(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	blockhash, err := s.client.LatestBlockhash(txCtx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(s.signer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.signer.PublicKey().Equals(key) {
			return &s.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	signature, err := s.client.SendTransaction(txCtx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}

	if err := chain.WaitForConfirmation(txCtx, s.client, signature, s.cfg.ConfirmPollInterval, s.cfg.ConfirmMaxAttempts); err != nil {
		return solana.Signature{}, fmt.Errorf("confirm %s: %w", signature, err)
	}
	return signature, nil
}

func (s *Service) clusterUnixTime(ctx context.Context) int64 {
	now, err := s.client.ClusterUnixTime(ctx)
	if err != nil {
		s.logger.Warn("using local clock because cluster time unavailable", "err", err)
		return time.Now().Unix()
	}
	return now
}
