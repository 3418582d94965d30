package model

// RiskSnapshot is a point-in-time downside risk estimate for one pool.
type RiskSnapshot struct {
	VaR             float64 `json:"var_value"`
	ConfidenceLevel float64 `json:"confidence_level"`
	WindowSize      int     `json:"window_size"`
	PositionValue   float64 `json:"position_value"`
	ComputedAt      int64   `json:"computed_at"`
}
