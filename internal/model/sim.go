package model

// SimEvent identifies what a simulation step did to the pool.
type SimEvent string

const (
	EventSwap            SimEvent = "swap"
	EventAddLiquidity    SimEvent = "add_liquidity"
	EventRemoveLiquidity SimEvent = "remove_liquidity"
	EventNone            SimEvent = "none"
)

// SimStep records the outcome of one simulation step.
type SimStep struct {
	Step           int      `json:"step"`
	Event          SimEvent `json:"event"`
	ReferencePrice float64  `json:"reference_price"`
	PoolPrice      float64  `json:"pool_price"`
	Amount         float64  `json:"amount,omitempty"`
	Result         float64  `json:"result,omitempty"`
	Slippage       float64  `json:"slippage,omitempty"`
	FeeRate        float64  `json:"fee_rate"`
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	StopLoss       bool     `json:"stop_loss"`
}

// PoolSummary aggregates a pool's activity over a run.
type PoolSummary struct {
	SwapCount        uint64  `json:"swap_count"`
	Volume           float64 `json:"volume"`
	FeesCollected    float64 `json:"fees_collected"`
	StopLossTriggers uint64  `json:"stop_loss_triggers"`
}

// RunReport is the full output of one simulation run.
type RunReport struct {
	Scenario        string        `json:"scenario"`
	Seed            int64         `json:"seed"`
	Steps           []SimStep     `json:"steps"`
	FinalState      PoolState     `json:"final_state"`
	Summary         PoolSummary   `json:"summary"`
	EntryPrice      float64       `json:"entry_price"`
	ImpermanentLoss float64       `json:"impermanent_loss"`
	Risk            *RiskSnapshot `json:"risk,omitempty"`
}
