package amm

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"ammsim/internal/model"
)

const (
	// MinFeeRate and MaxFeeRate bound the swap fee fraction.
	MinFeeRate = 0.003
	MaxFeeRate = 0.01

	// ratioTolerance is the relative tolerance for deposit ratio checks.
	ratioTolerance = 1e-3
)

// Pool is a constant-product liquidity pool for one token pair.
// The token order is fixed at creation; the quote price is reserveB/reserveA.
// All exported methods serialize on the pool's own lock, so concurrent
// requests on the same pair cannot break the reserve-product invariant.
type Pool struct {
	mu sync.Mutex

	tokenA string
	tokenB string

	reserveA      float64
	reserveB      float64
	feeRate       float64
	totalLPSupply float64

	priceHistory []model.PricePoint
	transactions []model.Transaction

	stopLossActive bool
	referencePrice float64

	swapCount uint64
	volume    float64
	feesA     float64
	feesB     float64

	now   func() time.Time
	newID func() string
}

// NewPool builds an empty pool for the given ordered pair.
func NewPool(tokenA, tokenB string, feeRate float64, opts ...PoolOption) *Pool {
	p := &Pool{
		tokenA:  tokenA,
		tokenB:  tokenB,
		feeRate: clampFee(feeRate),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PoolOption customizes pool construction.
type PoolOption func(*Pool)

// WithClock injects the timestamp source used for records.
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDSource injects the transaction ID generator.
func WithIDSource(newID func() string) PoolOption {
	return func(p *Pool) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// AddLiquidity deposits both tokens and mints LP shares.
// An empty pool accepts any ratio and mints sqrt(a*b); a funded pool
// requires the deposit to match the reserve ratio within tolerance.
func (p *Pool) AddLiquidity(amountA, amountB float64) (float64, error) {
	if !positiveFinite(amountA) || !positiveFinite(amountB) {
		return 0, fmt.Errorf("%w: amounts must be positive and finite", ErrInvalidParameter)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var minted float64
	if p.totalLPSupply == 0 {
		minted = math.Sqrt(amountA * amountB)
		p.reserveA = amountA
		p.reserveB = amountB
		p.totalLPSupply = minted
	} else {
		ratio := p.reserveB / p.reserveA
		depositRatio := amountB / amountA
		if math.Abs(depositRatio-ratio) > ratioTolerance*ratio {
			return 0, fmt.Errorf("%w: deposit ratio %.6f, pool ratio %.6f", ErrRatioMismatch, depositRatio, ratio)
		}
		minted = p.totalLPSupply * math.Min(amountA/p.reserveA, amountB/p.reserveB)
		p.reserveA += amountA
		p.reserveB += amountB
		p.totalLPSupply += minted
	}

	price := p.reserveB / p.reserveA
	p.referencePrice = price
	p.observePrice(price)
	p.appendTx(model.Transaction{
		Type:           model.TxAdd,
		AmountA:        amountA,
		AmountB:        amountB,
		LPTokens:       minted,
		ResultingPrice: price,
	})

	return minted, nil
}

// RemoveLiquidity redeems LP shares for a proportional slice of both reserves.
func (p *Pool) RemoveLiquidity(lpTokens float64) (float64, float64, error) {
	if !positiveFinite(lpTokens) {
		return 0, 0, fmt.Errorf("%w: lp tokens must be positive and finite", ErrInvalidParameter)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if lpTokens > p.totalLPSupply {
		return 0, 0, fmt.Errorf("%w: requested %.8f, total supply %.8f", ErrInsufficientShares, lpTokens, p.totalLPSupply)
	}

	share := lpTokens / p.totalLPSupply
	amountA := share * p.reserveA
	amountB := share * p.reserveB

	p.reserveA -= amountA
	p.reserveB -= amountB
	p.totalLPSupply -= lpTokens

	var price float64
	if p.reserveA > 0 {
		price = p.reserveB / p.reserveA
		p.referencePrice = price
		p.observePrice(price)
	} else {
		// Fully drained pool: supply must be zero with the reserves.
		p.totalLPSupply = 0
		p.reserveA = 0
		p.reserveB = 0
	}

	p.appendTx(model.Transaction{
		Type:           model.TxRemove,
		AmountA:        amountA,
		AmountB:        amountB,
		LPTokens:       lpTokens,
		ResultingPrice: price,
	})

	return amountA, amountB, nil
}

// Swap trades amountIn of tokenFrom for the other token along the
// constant-product curve, charging the fee on the input side.
func (p *Pool) Swap(tokenFrom string, amountIn float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopLossActive {
		return 0, fmt.Errorf("%w: %s/%s is halted", ErrStopLossActive, p.tokenA, p.tokenB)
	}
	if tokenFrom != p.tokenA && tokenFrom != p.tokenB {
		return 0, fmt.Errorf("%w: %q is not in pool %s/%s", ErrInvalidToken, tokenFrom, p.tokenA, p.tokenB)
	}
	if !positiveFinite(amountIn) {
		return 0, fmt.Errorf("%w: swap input must be positive and finite", ErrInsufficientLiquidity)
	}

	reserveFrom, reserveTo := p.reserveA, p.reserveB
	tokenTo := p.tokenB
	if tokenFrom == p.tokenB {
		reserveFrom, reserveTo = p.reserveB, p.reserveA
		tokenTo = p.tokenA
	}

	inAfterFee := amountIn * (1 - p.feeRate)
	amountOut := reserveTo - (reserveFrom*reserveTo)/(reserveFrom+inAfterFee)
	if amountOut <= 0 || amountOut >= reserveTo {
		return 0, fmt.Errorf("%w: output %.8f against reserve %.8f", ErrInsufficientLiquidity, amountOut, reserveTo)
	}

	reserveFrom += amountIn
	reserveTo -= amountOut
	fee := amountIn * p.feeRate

	if tokenFrom == p.tokenA {
		p.reserveA, p.reserveB = reserveFrom, reserveTo
		p.feesA += fee
	} else {
		p.reserveB, p.reserveA = reserveFrom, reserveTo
		p.feesB += fee
	}

	p.swapCount++
	p.volume += amountIn
	p.observePrice(p.reserveB / p.reserveA)
	p.appendTx(model.Transaction{
		Type:           model.TxSwap,
		TokenIn:        tokenFrom,
		TokenOut:       tokenTo,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		FeeCharged:     fee,
		ResultingPrice: reserveTo / reserveFrom,
	})

	return amountOut, nil
}

// CurrentPrice returns the spot price reserveB/reserveA.
func (p *Pool) CurrentPrice() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserveA == 0 {
		return 0
	}
	return p.reserveB / p.reserveA
}

// AdjustFee sets the swap fee, clamped into [MinFeeRate, MaxFeeRate].
func (p *Pool) AdjustFee(feeRate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeRate = clampFee(feeRate)
}

// Halt activates the stop loss, rejecting swaps until reset externally.
// Returns false when the pool was already halted.
func (p *Pool) Halt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopLossActive {
		return false
	}
	p.stopLossActive = true
	return true
}

// Halted reports whether the stop loss is active.
func (p *Pool) Halted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLossActive
}

// ReferencePrice is the price at the last liquidity event, or the first
// observation for pools that have only swapped. Stop-loss drawdown is
// measured against it.
func (p *Pool) ReferencePrice() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.referencePrice > 0 {
		return p.referencePrice
	}
	if len(p.priceHistory) > 0 {
		return p.priceHistory[0].Price
	}
	return 0
}

// Tokens returns the pool's pair in creation order.
func (p *Pool) Tokens() (string, string) {
	return p.tokenA, p.tokenB
}

// State copies the pool's public state.
func (p *Pool) State() model.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// Snapshot copies the state plus cumulative activity counters.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.PoolSnapshot{
		PoolState:     p.stateLocked(),
		SwapCount:     p.swapCount,
		Volume:        p.volume,
		FeesCollected: p.feesA + p.feesB,
		RecordedAt:    p.now().UnixNano(),
	}
}

// PriceHistory copies the append-only price series.
func (p *Pool) PriceHistory() []model.PricePoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.PricePoint, len(p.priceHistory))
	copy(out, p.priceHistory)
	return out
}

// Transactions copies the append-only transaction log.
func (p *Pool) Transactions() []model.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Transaction, len(p.transactions))
	copy(out, p.transactions)
	return out
}

// FeesEarned returns cumulative swap fees per token.
func (p *Pool) FeesEarned() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feesA, p.feesB
}

func (p *Pool) stateLocked() model.PoolState {
	var price float64
	if p.reserveA > 0 {
		price = p.reserveB / p.reserveA
	}
	return model.PoolState{
		TokenA:         p.tokenA,
		TokenB:         p.tokenB,
		ReserveA:       p.reserveA,
		ReserveB:       p.reserveB,
		FeeRate:        p.feeRate,
		TotalLPSupply:  p.totalLPSupply,
		Price:          price,
		StopLossActive: p.stopLossActive,
	}
}

func (p *Pool) observePrice(price float64) {
	p.priceHistory = append(p.priceHistory, model.PricePoint{
		Timestamp: p.now().UnixNano(),
		Price:     price,
	})
}

func (p *Pool) appendTx(tx model.Transaction) {
	tx.ID = p.newID()
	tx.Timestamp = p.now().UnixNano()
	p.transactions = append(p.transactions, tx)
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func clampFee(feeRate float64) float64 {
	if feeRate < MinFeeRate || math.IsNaN(feeRate) {
		return MinFeeRate
	}
	if feeRate > MaxFeeRate {
		return MaxFeeRate
	}
	return feeRate
}
