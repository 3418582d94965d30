package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammsim/internal/amm"
	"ammsim/internal/config"
	"ammsim/internal/metrics"
	"ammsim/internal/risk"
	"ammsim/internal/sim"
	"ammsim/internal/storage"
	"ammsim/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	scenario, err := sim.ParseScenario(cfg.Scenario)
	if err != nil {
		return err
	}
	if cfg.Steps > 0 {
		scenario.Steps = cfg.Steps
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := sim.DeterministicClock(time.Unix(0, 0).UTC())
	engine := amm.NewEngine(amm.WithPoolOptions(
		amm.WithClock(clock),
		amm.WithIDSource(sim.DeterministicIDs(cfg.Seed)),
	))
	riskMgr := risk.NewManager(logger, risk.WithClock(clock))
	tracker := metrics.NewTracker()

	simulator := sim.NewSimulator(sim.Config{
		TokenA:      cfg.TokenA,
		TokenB:      cfg.TokenB,
		InitialA:    cfg.InitialA,
		InitialB:    cfg.InitialB,
		Seed:        cfg.Seed,
		StopLossPct: cfg.StopLossPct,
	}, scenario, engine, riskMgr, tracker, logger)

	logger.Info("simulation start",
		zap.String("scenario", cfg.Scenario),
		zap.Int("steps", scenario.Steps),
		zap.Int64("seed", cfg.Seed),
		zap.String("pair", amm.PairKey(cfg.TokenA, cfg.TokenB)),
	)

	report, err := simulator.Run(ctx)
	if err != nil {
		return err
	}

	pair := amm.PairKey(cfg.TokenA, cfg.TokenB)
	txs, err := engine.TransactionHistory(cfg.TokenA, cfg.TokenB)
	if err != nil {
		return err
	}

	var sink storage.Sink = storage.NewJsonlSink(cfg.Out)
	if err := sink.PutSteps(report.Steps); err != nil {
		return fmt.Errorf("write steps: %w", err)
	}
	if err := sink.PutTransactions(pair, txs); err != nil {
		return fmt.Errorf("write transactions: %w", err)
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		runID, err := store.InsertRun(ctx, report)
		if err != nil {
			return err
		}
		if err := store.InsertSteps(ctx, runID, report.Steps); err != nil {
			return err
		}
		if err := store.InsertTransactions(ctx, runID, pair, txs); err != nil {
			return err
		}
		logger.Info("run persisted", zap.Int64("run_id", runID))
	}

	logger.Info("simulation done",
		zap.Uint64("swaps", report.Summary.SwapCount),
		zap.Float64("volume", report.Summary.Volume),
		zap.Float64("fees", report.Summary.FeesCollected),
		zap.Uint64("stop_loss_triggers", report.Summary.StopLossTriggers),
		zap.Float64("final_price", report.FinalState.Price),
		zap.String("out", cfg.Out),
	)

	return nil
}
