package model

// TxType identifies the kind of pool operation a transaction records.
type TxType string

const (
	TxAdd    TxType = "add_liquidity"
	TxRemove TxType = "remove_liquidity"
	TxSwap   TxType = "swap"
)

// Transaction is an immutable record of a committed pool operation.
type Transaction struct {
	ID             string  `json:"id"`
	Type           TxType  `json:"type"`
	TokenIn        string  `json:"token_in,omitempty"`
	TokenOut       string  `json:"token_out,omitempty"`
	AmountA        float64 `json:"amount_a,omitempty"`
	AmountB        float64 `json:"amount_b,omitempty"`
	AmountIn       float64 `json:"amount_in,omitempty"`
	AmountOut      float64 `json:"amount_out,omitempty"`
	LPTokens       float64 `json:"lp_tokens,omitempty"`
	FeeCharged     float64 `json:"fee_charged"`
	ResultingPrice float64 `json:"resulting_price"`
	Timestamp      int64   `json:"timestamp"`
}

// PricePoint is one observation in a pool's append-only price history.
type PricePoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}
