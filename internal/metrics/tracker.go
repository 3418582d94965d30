// Package metrics accumulates derived statistics per pool over a run.
// The tracker only observes: it never mutates pool state.
package metrics

import (
	"fmt"
	"math"
	"sync"

	"ammsim/internal/amm"
	"ammsim/internal/model"
)

// Tracker keeps an append-only ledger of pool snapshots and rolling
// per-pool summaries.
type Tracker struct {
	mu         sync.Mutex
	snapshots  map[string][]model.PoolSnapshot
	summaries  map[string]model.PoolSummary
	lastHalted map[string]bool
}

// NewTracker builds an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		snapshots:  make(map[string][]model.PoolSnapshot),
		summaries:  make(map[string]model.PoolSummary),
		lastHalted: make(map[string]bool),
	}
}

// Record snapshots the pool after an operation and folds the snapshot
// into the pool's rolling summary.
func (t *Tracker) Record(pool *amm.Pool) {
	tokenA, tokenB := pool.Tokens()
	key := amm.PairKey(tokenA, tokenB)
	snap := pool.Snapshot()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshots[key] = append(t.snapshots[key], snap)

	summary := t.summaries[key]
	summary.SwapCount = snap.SwapCount
	summary.Volume = snap.Volume
	summary.FeesCollected = snap.FeesCollected
	if snap.StopLossActive && !t.lastHalted[key] {
		summary.StopLossTriggers++
	}
	t.lastHalted[key] = snap.StopLossActive
	t.summaries[key] = summary
}

// Summary returns the rolling aggregate for a pair key.
func (t *Tracker) Summary(key string) (model.PoolSummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	summary, ok := t.summaries[key]
	return summary, ok
}

// Snapshots copies the snapshot ledger for a pair key.
func (t *Tracker) Snapshots(key string) []model.PoolSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	src := t.snapshots[key]
	out := make([]model.PoolSnapshot, len(src))
	copy(out, src)
	return out
}

// ImpermanentLoss is the closed-form loss fraction of providing liquidity
// versus holding, for a 50/50 constant-product pool, given the price ratio
// change r = currentPrice/entryPrice: 1 - 2*sqrt(r)/(1+r). Zero when the
// price is unchanged, strictly positive otherwise.
func ImpermanentLoss(entryPrice, currentPrice float64) (float64, error) {
	if entryPrice <= 0 || currentPrice <= 0 || math.IsNaN(entryPrice) || math.IsNaN(currentPrice) {
		return 0, fmt.Errorf("%w: prices must be positive", amm.ErrInvalidParameter)
	}

	r := currentPrice / entryPrice
	loss := 1 - 2*math.Sqrt(r)/(1+r)
	if loss < 0 {
		// Guard against rounding noise around r == 1.
		loss = 0
	}
	return loss, nil
}

// Slippage is the deviation of the realized exchange rate from the
// pre-trade spot price, as a fraction of the spot price.
func Slippage(amountIn, amountOut, spotBefore float64) (float64, error) {
	if amountIn <= 0 || amountOut <= 0 || spotBefore <= 0 {
		return 0, fmt.Errorf("%w: slippage inputs must be positive", amm.ErrInvalidParameter)
	}
	realized := amountOut / amountIn
	return (spotBefore - realized) / spotBefore, nil
}
