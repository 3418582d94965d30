// Package sim drives a liquidity pool through synthetic market scenarios.
// A seeded generator makes runs reproducible: the same seed yields the
// same sequence of steps, trades, and final pool state.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ammsim/internal/amm"
	"ammsim/internal/metrics"
	"ammsim/internal/model"
	"ammsim/internal/risk"
)

// Config holds runtime settings for one simulation run.
type Config struct {
	TokenA        string
	TokenB        string
	InitialA      float64
	InitialB      float64
	Seed          int64
	StopLossPct   float64
	VaRConfidence float64
	VaRWindow     int
}

type runState int

const (
	stateInitialized runState = iota
	stateRunning
	stateCompleted
)

// Simulator executes one scenario against an engine. Not reusable: each
// run consumes the simulator.
type Simulator struct {
	cfg      Config
	scenario Scenario
	engine   *amm.Engine
	risk     *risk.Manager
	tracker  *metrics.Tracker
	logger   *zap.Logger
	rng      *rand.Rand

	state          runState
	referencePrice float64
	swapsHalted    bool
}

// NewSimulator builds a Simulator with its dependencies. The RNG is
// seeded from cfg.Seed and owned exclusively by this simulator.
func NewSimulator(cfg Config, scenario Scenario, engine *amm.Engine, riskMgr *risk.Manager, tracker *metrics.Tracker, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		cfg:      cfg,
		scenario: scenario,
		engine:   engine,
		risk:     riskMgr,
		tracker:  tracker,
		logger:   logger,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Run seeds the pool and walks the scenario to completion. Any operation
// failure aborts the run and surfaces the error, with the aborting step
// recorded in the partial report; a context cancellation between steps
// leaves the pool in its last committed state.
func (s *Simulator) Run(ctx context.Context) (*model.RunReport, error) {
	if s.state != stateInitialized {
		return nil, errors.New("simulation already consumed")
	}
	if s.engine == nil || s.risk == nil || s.tracker == nil {
		return nil, errors.New("simulator dependencies are nil")
	}
	if err := s.scenario.validate(); err != nil {
		return nil, err
	}
	if s.cfg.InitialA <= 0 || s.cfg.InitialB <= 0 {
		return nil, fmt.Errorf("initial reserves must be positive")
	}
	if s.cfg.StopLossPct <= 0 || s.cfg.StopLossPct >= 1 {
		return nil, fmt.Errorf("stop loss percentage must be in (0, 1)")
	}
	s.state = stateRunning

	if _, err := s.engine.AddLiquidity(s.cfg.TokenA, s.cfg.TokenB, s.cfg.InitialA, s.cfg.InitialB); err != nil {
		return nil, fmt.Errorf("seed pool: %w", err)
	}
	pool, err := s.engine.Get(s.cfg.TokenA, s.cfg.TokenB)
	if err != nil {
		return nil, err
	}
	s.referencePrice = pool.CurrentPrice()
	entryPrice := s.referencePrice

	report := &model.RunReport{
		Scenario:   string(s.scenario.Kind),
		Seed:       s.cfg.Seed,
		Steps:      make([]model.SimStep, 0, s.scenario.Steps),
		EntryPrice: entryPrice,
	}

	for step := 1; step <= s.scenario.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := s.step(step, pool)
		if err != nil {
			report.Steps = append(report.Steps, record)
			return report, fmt.Errorf("step %d: %w", step, err)
		}
		report.Steps = append(report.Steps, record)
	}

	s.state = stateCompleted
	report.FinalState = pool.State()
	if report.FinalState.Price > 0 {
		if loss, err := metrics.ImpermanentLoss(entryPrice, report.FinalState.Price); err == nil {
			report.ImpermanentLoss = loss
		}
	}

	key := amm.PairKey(s.cfg.TokenA, s.cfg.TokenB)
	if summary, ok := s.tracker.Summary(key); ok {
		report.Summary = summary
	}

	confidence := s.cfg.VaRConfidence
	if confidence == 0 {
		confidence = 0.95
	}
	window := s.cfg.VaRWindow
	if window == 0 {
		window = risk.DefaultWindow
	}
	if snapshot, err := s.risk.ComputeVaR(pool, confidence, window); err == nil {
		report.Risk = &snapshot
	}

	s.logger.Info("simulation completed",
		zap.String("scenario", string(s.scenario.Kind)),
		zap.Int64("seed", s.cfg.Seed),
		zap.Int("steps", s.scenario.Steps),
		zap.Uint64("swaps", report.Summary.SwapCount),
		zap.Bool("stop_loss", report.FinalState.StopLossActive),
	)

	return report, nil
}

func (s *Simulator) step(step int, pool *amm.Pool) (model.SimStep, error) {
	// (1) Move the external reference price.
	change := s.rng.NormFloat64() * s.scenario.Volatility
	s.referencePrice *= 1 + change
	if s.referencePrice <= 0 {
		s.referencePrice = 1e-12
	}

	record := model.SimStep{
		Step:           step,
		Event:          model.EventNone,
		ReferencePrice: s.referencePrice,
	}

	// (2) Issue a trade or a liquidity event.
	var err error
	if !s.swapsHalted && s.rng.Float64() < s.scenario.TradeProbability {
		err = s.simulateSwap(pool, &record)
	} else {
		err = s.simulateLiquidityEvent(pool, &record)
	}
	if err != nil {
		record.Error = err.Error()
		return record, err
	}

	// (3) Re-evaluate the stop loss; once triggered, swap generation
	// stops for the remainder of the run.
	triggered, err := s.risk.EvaluateStopLoss(pool, s.cfg.StopLossPct)
	if err != nil {
		record.Error = err.Error()
		return record, err
	}
	if triggered && !s.swapsHalted {
		s.swapsHalted = true
		s.logger.Info("swap generation halted", zap.Int("step", step))
	}
	record.StopLoss = triggered

	// Volatility-scaled fee: calm markets trade at the base rate,
	// turbulent ones at the cap.
	pool.AdjustFee(s.risk.RecommendFee(pool))

	// (4) Observe the resulting state.
	s.tracker.Record(pool)

	record.PoolPrice = pool.CurrentPrice()
	record.FeeRate = pool.State().FeeRate
	record.Success = true
	return record, nil
}

// simulateSwap trades toward the reference price: when the pool quotes
// above the outside market the pool's quote token is sold off, and vice
// versa.
func (s *Simulator) simulateSwap(pool *amm.Pool, record *model.SimStep) error {
	state := pool.State()
	tokenFrom, tokenTo := state.TokenA, state.TokenB
	reserveFrom := state.ReserveA
	if state.Price < s.referencePrice {
		tokenFrom, tokenTo = state.TokenB, state.TokenA
		reserveFrom = state.ReserveB
	}

	reserveTo := state.ReserveB
	if tokenFrom == state.TokenB {
		reserveTo = state.ReserveA
	}
	spotBefore := reserveTo / reserveFrom

	amount := s.scenario.TradeFraction * reserveFrom * (0.5 + s.rng.Float64())
	out, err := s.engine.Swap(tokenFrom, tokenTo, amount)
	if err != nil {
		return err
	}

	record.Event = model.EventSwap
	record.Amount = amount
	record.Result = out
	if slippage, err := metrics.Slippage(amount, out, spotBefore); err == nil {
		record.Slippage = slippage
	}
	return nil
}

// simulateLiquidityEvent adds reserves in the pool's exact ratio or
// removes a bounded share of LP supply, so generated events always pass
// validation.
func (s *Simulator) simulateLiquidityEvent(pool *amm.Pool, record *model.SimStep) error {
	state := pool.State()
	fraction := s.scenario.LiquidityFraction * (0.5 + s.rng.Float64())

	if s.rng.Float64() < 0.5 {
		amountA := fraction * state.ReserveA
		amountB := fraction * state.ReserveB
		minted, err := s.engine.AddLiquidity(state.TokenA, state.TokenB, amountA, amountB)
		if err != nil {
			return err
		}
		record.Event = model.EventAddLiquidity
		record.Amount = amountA
		record.Result = minted
		return nil
	}

	lpTokens := fraction * state.TotalLPSupply
	if lpTokens <= 0 {
		return nil
	}
	amountA, _, err := s.engine.RemoveLiquidity(state.TokenA, state.TokenB, lpTokens)
	if err != nil {
		return err
	}
	record.Event = model.EventRemoveLiquidity
	record.Amount = lpTokens
	record.Result = amountA
	return nil
}

// DeterministicClock starts at a fixed instant and advances one second
// per call, giving seeded runs reproducible record timestamps.
func DeterministicClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(time.Second)
		return now
	}
}

// DeterministicIDs derives UUIDs from a seeded stream so seeded runs
// produce identical transaction logs.
func DeterministicIDs(seed int64) func() string {
	source := rand.New(rand.NewSource(seed))
	return func() string {
		id, err := uuid.NewRandomFromReader(source)
		if err != nil {
			return uuid.NewString()
		}
		return id.String()
	}
}
