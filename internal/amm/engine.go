package amm

import (
	"fmt"
	"math"
	"sync"

	"ammsim/internal/model"
)

// MaxRebalanceIncentive caps the LP bonus for deposits that move a
// pool's reserve ratio toward parity.
const MaxRebalanceIncentive = 0.02

// Engine owns every liquidity pool, keyed by normalized token pair.
// Pools for (ETH, USDC) and (USDC, ETH) resolve to the same instance;
// the pool itself stores the pair in sorted order. All mutation is
// delegated to the resolved pool.
type Engine struct {
	mu    sync.RWMutex
	pools map[string]*Pool

	defaultFee float64
	poolOpts   []PoolOption
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithDefaultFee sets the fee applied to newly created pools.
func WithDefaultFee(feeRate float64) EngineOption {
	return func(e *Engine) {
		e.defaultFee = clampFee(feeRate)
	}
}

// WithPoolOptions forwards options to every pool the engine creates.
// Simulations use this to inject deterministic clocks and ID sources.
func WithPoolOptions(opts ...PoolOption) EngineOption {
	return func(e *Engine) {
		e.poolOpts = append(e.poolOpts, opts...)
	}
}

// NewEngine builds an engine with no pools.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		pools:      make(map[string]*Pool),
		defaultFee: MinFeeRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PairKey normalizes a token pair into the registry key.
func PairKey(tokenA, tokenB string) string {
	if tokenB < tokenA {
		tokenA, tokenB = tokenB, tokenA
	}
	return tokenA + "-" + tokenB
}

// GetOrCreate resolves the pool for a pair, creating an empty one on
// first access.
func (e *Engine) GetOrCreate(tokenA, tokenB string) (*Pool, error) {
	if err := validatePair(tokenA, tokenB); err != nil {
		return nil, err
	}

	key := PairKey(tokenA, tokenB)

	e.mu.RLock()
	pool, ok := e.pools[key]
	e.mu.RUnlock()
	if ok {
		return pool, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if pool, ok := e.pools[key]; ok {
		return pool, nil
	}
	first, second := tokenA, tokenB
	if second < first {
		first, second = second, first
	}
	pool = NewPool(first, second, e.defaultFee, e.poolOpts...)
	e.pools[key] = pool
	return pool, nil
}

// Get resolves an existing pool for a pair.
func (e *Engine) Get(tokenA, tokenB string) (*Pool, error) {
	if err := validatePair(tokenA, tokenB); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	pool, ok := e.pools[PairKey(tokenA, tokenB)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, PairKey(tokenA, tokenB))
	}
	return pool, nil
}

// AddLiquidity deposits into the pair's pool, creating it on first use.
// Amounts are given in the caller's token order and mapped onto the
// pool's sorted order.
func (e *Engine) AddLiquidity(tokenA, tokenB string, amountA, amountB float64) (float64, error) {
	pool, err := e.GetOrCreate(tokenA, tokenB)
	if err != nil {
		return 0, err
	}
	first, _ := pool.Tokens()
	if tokenA != first {
		amountA, amountB = amountB, amountA
	}
	return pool.AddLiquidity(amountA, amountB)
}

// RebalancingIncentive scores a prospective deposit by how much it
// would move the pool's reserve ratio toward parity. The bonus fraction
// scales with the relative improvement and is capped at
// MaxRebalanceIncentive; deposits that leave the pool no better
// balanced earn nothing.
func (e *Engine) RebalancingIncentive(tokenA, tokenB string, amountA, amountB float64) (float64, error) {
	pool, err := e.Get(tokenA, tokenB)
	if err != nil {
		return 0, err
	}
	if !positiveFinite(amountA) || !positiveFinite(amountB) {
		return 0, fmt.Errorf("%w: deposit amounts must be positive", ErrInvalidParameter)
	}
	first, _ := pool.Tokens()
	if tokenA != first {
		amountA, amountB = amountB, amountA
	}

	state := pool.State()
	if state.ReserveA == 0 || state.ReserveB == 0 {
		return 0, nil
	}

	currentRatio := state.ReserveA / state.ReserveB
	newRatio := (state.ReserveA + amountA) / (state.ReserveB + amountB)

	currentImbalance := math.Abs(currentRatio - 1)
	newImbalance := math.Abs(newRatio - 1)
	improvement := currentImbalance - newImbalance
	if improvement <= 0 {
		return 0, nil
	}

	incentive := MaxRebalanceIncentive * improvement / currentImbalance
	if incentive > MaxRebalanceIncentive {
		incentive = MaxRebalanceIncentive
	}
	return incentive, nil
}

// AddLiquidityWithIncentive deposits like AddLiquidity and credits a
// rebalancing bonus on top of the minted shares. The bonus is reflected
// in the credited figure only; the pool supply tracks the unboosted
// mint.
func (e *Engine) AddLiquidityWithIncentive(tokenA, tokenB string, amountA, amountB float64) (float64, float64, error) {
	if _, err := e.GetOrCreate(tokenA, tokenB); err != nil {
		return 0, 0, err
	}
	incentive, err := e.RebalancingIncentive(tokenA, tokenB, amountA, amountB)
	if err != nil {
		return 0, 0, err
	}
	minted, err := e.AddLiquidity(tokenA, tokenB, amountA, amountB)
	if err != nil {
		return 0, 0, err
	}
	return minted * (1 + incentive), incentive, nil
}

// RemoveLiquidity redeems LP shares from the pair's pool. The returned
// amounts follow the caller's token order.
func (e *Engine) RemoveLiquidity(tokenA, tokenB string, lpTokens float64) (float64, float64, error) {
	pool, err := e.Get(tokenA, tokenB)
	if err != nil {
		return 0, 0, err
	}
	amountA, amountB, err := pool.RemoveLiquidity(lpTokens)
	if err != nil {
		return 0, 0, err
	}
	first, _ := pool.Tokens()
	if tokenA != first {
		amountA, amountB = amountB, amountA
	}
	return amountA, amountB, nil
}

// Swap trades tokenFrom for tokenTo in their shared pool.
func (e *Engine) Swap(tokenFrom, tokenTo string, amountIn float64) (float64, error) {
	pool, err := e.Get(tokenFrom, tokenTo)
	if err != nil {
		return 0, err
	}
	return pool.Swap(tokenFrom, amountIn)
}

// PoolState returns a copy of the pair's pool state.
func (e *Engine) PoolState(tokenA, tokenB string) (model.PoolState, error) {
	pool, err := e.Get(tokenA, tokenB)
	if err != nil {
		return model.PoolState{}, err
	}
	return pool.State(), nil
}

// TransactionHistory returns the pair's ordered transaction records.
func (e *Engine) TransactionHistory(tokenA, tokenB string) ([]model.Transaction, error) {
	pool, err := e.Get(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	return pool.Transactions(), nil
}

// TotalValueLocked sums reserves per token across all pools.
func (e *Engine) TotalValueLocked() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tvl := make(map[string]float64, len(e.pools))
	for _, pool := range e.pools {
		state := pool.State()
		tvl[state.TokenA] += state.ReserveA
		tvl[state.TokenB] += state.ReserveB
	}
	return tvl
}

// FeesEarned sums collected swap fees per token across all pools.
func (e *Engine) FeesEarned() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fees := make(map[string]float64, len(e.pools))
	for _, pool := range e.pools {
		tokenA, tokenB := pool.Tokens()
		feesA, feesB := pool.FeesEarned()
		fees[tokenA] += feesA
		fees[tokenB] += feesB
	}
	return fees
}

func validatePair(tokenA, tokenB string) error {
	if tokenA == "" || tokenB == "" {
		return fmt.Errorf("%w: token identifiers must be non-empty", ErrInvalidToken)
	}
	if tokenA == tokenB {
		return fmt.Errorf("%w: pair requires two distinct tokens", ErrInvalidToken)
	}
	return nil
}
