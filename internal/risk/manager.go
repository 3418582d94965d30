// Package risk computes downside-risk metrics over a pool's price history
// and enforces the stop-loss halt. The manager holds no state of its own;
// every call reads the pool's history fresh.
package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"ammsim/internal/amm"
	"ammsim/internal/model"
)

const (
	// MinObservations is the fewest price points any metric needs.
	MinObservations = 2

	// DefaultWindow is the lookback used when callers do not choose one.
	DefaultWindow = 20

	// volatilityFloor keeps position sizing finite on flat histories.
	volatilityFloor = 1e-6

	// feeVolatilityScale is the per-step volatility at which the
	// recommended fee saturates at MaxFeeRate.
	feeVolatilityScale = 0.05
)

// Manager evaluates risk for pools. Safe for concurrent use.
type Manager struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes manager construction.
type Option func(*Manager)

// WithClock injects the timestamp source for snapshots.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a Manager. A nil logger is replaced with a no-op.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ComputeVaR estimates Value at Risk by historical simulation: the
// confidence-quantile of the loss distribution of period returns over the
// last window observations, scaled to the pool's current position value.
func (m *Manager) ComputeVaR(pool *amm.Pool, confidence float64, window int) (model.RiskSnapshot, error) {
	if confidence <= 0 || confidence >= 1 || math.IsNaN(confidence) {
		return model.RiskSnapshot{}, fmt.Errorf("%w: confidence level must be in (0, 1)", amm.ErrInvalidParameter)
	}
	if window < MinObservations {
		return model.RiskSnapshot{}, fmt.Errorf("%w: window must be at least %d", amm.ErrInvalidParameter, MinObservations)
	}

	returns, err := windowedReturns(pool, window)
	if err != nil {
		return model.RiskSnapshot{}, err
	}

	losses := make([]float64, len(returns))
	for i, r := range returns {
		losses[i] = -r
	}
	sort.Float64s(losses)

	state := pool.State()
	positionValue := state.ReserveA*state.Price + state.ReserveB

	varValue := quantile(losses, confidence)
	if varValue < 0 {
		varValue = 0
	}
	varValue *= positionValue

	snapshot := model.RiskSnapshot{
		VaR:             varValue,
		ConfidenceLevel: confidence,
		WindowSize:      window,
		PositionValue:   positionValue,
		ComputedAt:      m.now().UnixNano(),
	}

	m.logger.Debug("var computed",
		zap.String("pair", amm.PairKey(state.TokenA, state.TokenB)),
		zap.Float64("var", varValue),
		zap.Float64("confidence", confidence),
		zap.Int("window", window),
	)

	return snapshot, nil
}

// EvaluateStopLoss halts the pool when the drawdown from the reference
// price reaches stopLossPct. Re-evaluating a halted pool is a no-op that
// still reports true.
func (m *Manager) EvaluateStopLoss(pool *amm.Pool, stopLossPct float64) (bool, error) {
	if stopLossPct <= 0 || stopLossPct >= 1 || math.IsNaN(stopLossPct) {
		return false, fmt.Errorf("%w: stop loss percentage must be in (0, 1)", amm.ErrInvalidParameter)
	}

	if pool.Halted() {
		return true, nil
	}

	reference := pool.ReferencePrice()
	if reference <= 0 {
		return false, nil
	}

	current := pool.CurrentPrice()
	drawdown := (reference - current) / reference
	if drawdown < stopLossPct {
		return false, nil
	}

	if pool.Halt() {
		tokenA, tokenB := pool.Tokens()
		m.logger.Warn("stop loss triggered",
			zap.String("pair", amm.PairKey(tokenA, tokenB)),
			zap.Float64("reference_price", reference),
			zap.Float64("current_price", current),
			zap.Float64("drawdown", drawdown),
		)
	}
	return true, nil
}

// SuggestPositionSize sizes a position inversely to recent volatility:
// poolValue * riskFactor / volatility, capped at the pool value.
func (m *Manager) SuggestPositionSize(pool *amm.Pool, riskFactor float64) (float64, error) {
	if riskFactor <= 0 || riskFactor > 1 || math.IsNaN(riskFactor) {
		return 0, fmt.Errorf("%w: risk factor must be in (0, 1]", amm.ErrInvalidParameter)
	}

	volatility, err := m.RecentVolatility(pool, DefaultWindow)
	if err != nil {
		return 0, err
	}
	if volatility < volatilityFloor {
		volatility = volatilityFloor
	}

	state := pool.State()
	poolValue := state.ReserveA*state.Price + state.ReserveB

	size := poolValue * riskFactor / volatility
	if size > poolValue {
		size = poolValue
	}
	return size, nil
}

// LiquidityReturns measures the fractional gain of a position entered
// with the given deposit, valuing both legs in the pool's first token at
// priceRatio (units of the second token per first). The position's share
// is inferred from the geometric mean of the deposit, mirroring the
// initial mint rule.
func (m *Manager) LiquidityReturns(pool *amm.Pool, initialA, initialB, priceRatio float64) (float64, error) {
	if initialA <= 0 || initialB <= 0 || math.IsNaN(initialA) || math.IsNaN(initialB) {
		return 0, fmt.Errorf("%w: initial deposit amounts must be positive", amm.ErrInvalidParameter)
	}
	if priceRatio <= 0 || math.IsNaN(priceRatio) {
		return 0, fmt.Errorf("%w: price ratio must be positive", amm.ErrInvalidParameter)
	}

	state := pool.State()
	if state.TotalLPSupply <= 0 {
		return 0, fmt.Errorf("%w: pool has no liquidity", amm.ErrInsufficientLiquidity)
	}

	share := math.Sqrt(initialA*initialB) / state.TotalLPSupply
	currentA := share * state.ReserveA
	currentB := share * state.ReserveB

	initialValue := initialA + initialB/priceRatio
	currentValue := currentA + currentB/priceRatio

	return (currentValue - initialValue) / initialValue, nil
}

// RecentVolatility is the standard deviation of period returns over the
// last window observations.
func (m *Manager) RecentVolatility(pool *amm.Pool, window int) (float64, error) {
	if window < MinObservations {
		return 0, fmt.Errorf("%w: window must be at least %d", amm.ErrInvalidParameter, MinObservations)
	}
	returns, err := windowedReturns(pool, window)
	if err != nil {
		return 0, err
	}
	return stddev(returns), nil
}

// RecommendFee maps recent volatility onto the allowed fee band: flat
// markets get the base fee, volatile markets saturate at the cap.
func (m *Manager) RecommendFee(pool *amm.Pool) float64 {
	volatility, err := m.RecentVolatility(pool, DefaultWindow)
	if err != nil {
		return amm.MinFeeRate
	}

	scale := volatility / feeVolatilityScale
	if scale > 1 {
		scale = 1
	}
	return amm.MinFeeRate + (amm.MaxFeeRate-amm.MinFeeRate)*scale
}

func windowedReturns(pool *amm.Pool, window int) ([]float64, error) {
	history := pool.PriceHistory()
	if len(history) > window {
		history = history[len(history)-window:]
	}
	if len(history) < MinObservations {
		return nil, fmt.Errorf("%w: need at least %d observations, have %d", amm.ErrInsufficientHistory, MinObservations, len(history))
	}

	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Price
		if prev == 0 {
			continue
		}
		returns = append(returns, history[i].Price/prev-1)
	}
	if len(returns) == 0 {
		return nil, fmt.Errorf("%w: no usable returns in window", amm.ErrInsufficientHistory)
	}
	return returns, nil
}

// quantile interpolates the q-quantile of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
