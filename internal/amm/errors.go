package amm

import "errors"

// Failure taxonomy surfaced by pool and engine operations. Callers match
// with errors.Is; boundary layers map each kind to a response code.
var (
	ErrPoolNotFound          = errors.New("pool not found")
	ErrInvalidToken          = errors.New("invalid token")
	ErrRatioMismatch         = errors.New("deposit ratio mismatch")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientShares    = errors.New("insufficient lp shares")
	ErrStopLossActive        = errors.New("stop loss active")
	ErrInsufficientHistory   = errors.New("insufficient price history")
	ErrInvalidParameter      = errors.New("invalid parameter")
)
