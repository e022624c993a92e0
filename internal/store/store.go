// Package store persists execution history: one row per confirmed fill or
// reclaim. The store is optional; the executor runs without it when no DSN is
// configured.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *sql.DB
}

// Fill records a confirmed trade execution.
type Fill struct {
	Strategy   solana.PublicKey
	Signature  solana.Signature
	InAmount   uint64
	OutAmount  uint64
	LegCount   int
	ExecutedAt time.Time
}

// Reclaim records a confirmed collateral return.
type Reclaim struct {
	Strategy   solana.PublicKey
	Signature  solana.Signature
	Amount     uint64
	ExecutedAt time.Time
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(8)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS strategy_fills (
			id BIGSERIAL PRIMARY KEY,
			strategy TEXT NOT NULL,
			signature TEXT NOT NULL UNIQUE,
			in_amount NUMERIC(20, 0) NOT NULL,
			out_amount NUMERIC(20, 0) NOT NULL,
			leg_count INT NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_fills_strategy ON strategy_fills (strategy)`,
		`CREATE TABLE IF NOT EXISTS strategy_reclaims (
			id BIGSERIAL PRIMARY KEY,
			strategy TEXT NOT NULL,
			signature TEXT NOT NULL UNIQUE,
			amount NUMERIC(20, 0) NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_reclaims_strategy ON strategy_reclaims (strategy)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) RecordFill(ctx context.Context, fill Fill) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategy_fills (strategy, signature, in_amount, out_amount, leg_count, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (signature) DO NOTHING`,
		fill.Strategy.String(),
		fill.Signature.String(),
		fill.InAmount,
		fill.OutAmount,
		fill.LegCount,
		fill.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("record fill %s: %w", fill.Signature, err)
	}
	return nil
}

func (s *Store) RecordReclaim(ctx context.Context, reclaim Reclaim) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategy_reclaims (strategy, signature, amount, executed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (signature) DO NOTHING`,
		reclaim.Strategy.String(),
		reclaim.Signature.String(),
		reclaim.Amount,
		reclaim.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("record reclaim %s: %w", reclaim.Signature, err)
	}
	return nil
}
