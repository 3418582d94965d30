package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammsim/internal/model"
)

// Store provides Postgres persistence for simulation output.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertRun records a run summary and returns its row id.
func (s *Store) InsertRun(ctx context.Context, report *model.RunReport) (int64, error) {
	var runID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sim_runs (
			scenario, seed, step_count, swap_count, volume, fees_collected,
			stop_loss_triggers, final_reserve_a, final_reserve_b,
			final_price, final_lp_supply, stop_loss_active, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		RETURNING id
	`,
		report.Scenario,
		report.Seed,
		len(report.Steps),
		int64(report.Summary.SwapCount),
		report.Summary.Volume,
		report.Summary.FeesCollected,
		int64(report.Summary.StopLossTriggers),
		report.FinalState.ReserveA,
		report.FinalState.ReserveB,
		report.FinalState.Price,
		report.FinalState.TotalLPSupply,
		report.FinalState.StopLossActive,
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// InsertSteps batch-inserts the per-step records of a run.
func (s *Store) InsertSteps(ctx context.Context, runID int64, steps []model.SimStep) error {
	if len(steps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, step := range steps {
		batch.Queue(`
			INSERT INTO sim_steps (
				run_id, step, event, reference_price, pool_price,
				amount, result, success, stop_loss
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			runID,
			step.Step,
			string(step.Event),
			step.ReferencePrice,
			step.PoolPrice,
			step.Amount,
			step.Result,
			step.Success,
			step.StopLoss,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range steps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
	}
	return nil
}

// InsertTransactions batch-inserts a pool's transaction log for a run.
func (s *Store) InsertTransactions(ctx context.Context, runID int64, pair string, txs []model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(`
			INSERT INTO sim_transactions (
				run_id, pair, tx_id, tx_type, token_in, token_out,
				amount_a, amount_b, amount_in, amount_out, lp_tokens,
				fee_charged, resulting_price, ts
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (tx_id) DO NOTHING
		`,
			runID,
			pair,
			tx.ID,
			string(tx.Type),
			tx.TokenIn,
			tx.TokenOut,
			tx.AmountA,
			tx.AmountB,
			tx.AmountIn,
			tx.AmountOut,
			tx.LPTokens,
			tx.FeeCharged,
			tx.ResultingPrice,
			tx.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range txs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return nil
}
