package model

// PoolState is a point-in-time copy of a liquidity pool's public state.
type PoolState struct {
	TokenA         string  `json:"token_a"`
	TokenB         string  `json:"token_b"`
	ReserveA       float64 `json:"reserve_a"`
	ReserveB       float64 `json:"reserve_b"`
	FeeRate        float64 `json:"fee_rate"`
	TotalLPSupply  float64 `json:"total_lp_supply"`
	Price          float64 `json:"price"`
	StopLossActive bool    `json:"stop_loss_active"`
}

// PoolSnapshot extends PoolState with cumulative counters for metrics ledgers.
type PoolSnapshot struct {
	PoolState
	SwapCount     uint64  `json:"swap_count"`
	Volume        float64 `json:"volume"`
	FeesCollected float64 `json:"fees_collected"`
	RecordedAt    int64   `json:"recorded_at"`
}
