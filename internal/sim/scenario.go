package sim

import "fmt"

// Kind names a market regime.
type Kind string

const (
	Stable         Kind = "stable"
	HighVolatility Kind = "high_volatility"
	LargeTrades    Kind = "large_trades"
)

// Scenario parameterizes one simulation run. Constructed by the caller,
// consumed once by the simulator.
type Scenario struct {
	Kind Kind

	// Volatility is the standard deviation of the per-step relative
	// change applied to the external reference price.
	Volatility float64

	// Steps is the number of simulation steps.
	Steps int

	// TradeProbability is the chance a step issues a swap instead of a
	// liquidity event.
	TradeProbability float64

	// TradeFraction scales swap sizes relative to the source reserve.
	TradeFraction float64

	// LiquidityFraction scales add/remove events relative to current
	// reserves and LP supply.
	LiquidityFraction float64
}

// StableScenario is a calm market: low volatility, small trades.
func StableScenario() Scenario {
	return Scenario{
		Kind:              Stable,
		Volatility:        0.005,
		Steps:             100,
		TradeProbability:  0.7,
		TradeFraction:     0.01,
		LiquidityFraction: 0.02,
	}
}

// HighVolatilityScenario keeps stable trade sizes under price swings an
// order of magnitude larger.
func HighVolatilityScenario() Scenario {
	s := StableScenario()
	s.Kind = HighVolatility
	s.Volatility = 0.05
	return s
}

// LargeTradesScenario keeps stable volatility but sizes trades to a
// material fraction of the reserves.
func LargeTradesScenario() Scenario {
	s := StableScenario()
	s.Kind = LargeTrades
	s.TradeFraction = 0.2
	return s
}

// ParseScenario resolves a scenario name to its default parameters.
func ParseScenario(name string) (Scenario, error) {
	switch Kind(name) {
	case Stable:
		return StableScenario(), nil
	case HighVolatility:
		return HighVolatilityScenario(), nil
	case LargeTrades:
		return LargeTradesScenario(), nil
	default:
		return Scenario{}, fmt.Errorf("unknown scenario %q (want %s, %s, or %s)", name, Stable, HighVolatility, LargeTrades)
	}
}

func (s Scenario) validate() error {
	if s.Steps <= 0 {
		return fmt.Errorf("scenario steps must be positive")
	}
	if s.Volatility <= 0 {
		return fmt.Errorf("scenario volatility must be positive")
	}
	if s.TradeProbability < 0 || s.TradeProbability > 1 {
		return fmt.Errorf("trade probability must be in [0, 1]")
	}
	if s.TradeFraction <= 0 || s.TradeFraction >= 1 {
		return fmt.Errorf("trade fraction must be in (0, 1)")
	}
	if s.LiquidityFraction <= 0 || s.LiquidityFraction >= 1 {
		return fmt.Errorf("liquidity fraction must be in (0, 1)")
	}
	return nil
}
