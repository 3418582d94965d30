// Package api exposes the engine and risk manager over HTTP. It holds no
// pool logic: every handler validates input, delegates, and maps the
// failure kind to a status code.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ammsim/internal/amm"
	"ammsim/internal/risk"
)

// Server is the HTTP boundary over the AMM core.
type Server struct {
	router *gin.Engine
	engine *amm.Engine
	risk   *risk.Manager
	logger *zap.Logger
}

// NewServer wires routes over the given engine and risk manager.
func NewServer(engine *amm.Engine, riskMgr *risk.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	s := &Server{
		router: router,
		engine: engine,
		risk:   riskMgr,
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// shutdownTimeout bounds the drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Run serves on addr until the listener fails or ctx is canceled, then
// drains in-flight requests before returning.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.health)
		v1.GET("/stats", s.stats)

		v1.POST("/pools", s.createPool)
		v1.GET("/pools/:pair/state", s.poolState)
		v1.GET("/pools/:pair/transactions", s.transactionHistory)
		v1.GET("/pools/:pair/risk", s.riskMetrics)

		v1.POST("/liquidity/add", s.addLiquidity)
		v1.POST("/liquidity/add-incentivized", s.addLiquidityIncentivized)
		v1.POST("/liquidity/remove", s.removeLiquidity)
		v1.POST("/swap", s.swap)

		v1.POST("/risk/stop-loss", s.stopLoss)
		v1.POST("/risk/lp-returns", s.lpReturns)
		v1.POST("/risk/position-size", s.positionSize)
		v1.POST("/risk/adjust-fee", s.adjustFee)
	}
}

func (s *Server) health(c *gin.Context) {
	respond(c, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	respond(c, gin.H{
		"total_value_locked": s.engine.TotalValueLocked(),
		"fees_earned":        s.engine.FeesEarned(),
	})
}

type createPoolRequest struct {
	TokenA string `json:"token_a" binding:"required"`
	TokenB string `json:"token_b" binding:"required"`
}

func (s *Server) createPool(c *gin.Context) {
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pool, err := s.engine.GetOrCreate(req.TokenA, req.TokenB)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, pool.State())
}

type addLiquidityRequest struct {
	TokenA  string  `json:"token_a" binding:"required"`
	TokenB  string  `json:"token_b" binding:"required"`
	AmountA float64 `json:"amount_a" binding:"required"`
	AmountB float64 `json:"amount_b" binding:"required"`
}

func (s *Server) addLiquidity(c *gin.Context) {
	var req addLiquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	minted, err := s.engine.AddLiquidity(req.TokenA, req.TokenB, req.AmountA, req.AmountB)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"lp_tokens": minted})
}

// addLiquidityIncentivized credits a rebalancing bonus on top of the
// minted shares for deposits that move the pool toward parity.
func (s *Server) addLiquidityIncentivized(c *gin.Context) {
	var req addLiquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	credited, incentive, err := s.engine.AddLiquidityWithIncentive(req.TokenA, req.TokenB, req.AmountA, req.AmountB)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"lp_tokens": credited, "incentive": incentive})
}

type removeLiquidityRequest struct {
	TokenA   string  `json:"token_a" binding:"required"`
	TokenB   string  `json:"token_b" binding:"required"`
	LPTokens float64 `json:"lp_tokens" binding:"required"`
}

func (s *Server) removeLiquidity(c *gin.Context) {
	var req removeLiquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	amountA, amountB, err := s.engine.RemoveLiquidity(req.TokenA, req.TokenB, req.LPTokens)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"amount_a": amountA, "amount_b": amountB})
}

type swapRequest struct {
	TokenFrom string  `json:"token_from" binding:"required"`
	TokenTo   string  `json:"token_to" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
}

func (s *Server) swap(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	amountOut, err := s.engine.Swap(req.TokenFrom, req.TokenTo, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"amount_out": amountOut})
}

func (s *Server) poolState(c *gin.Context) {
	tokenA, tokenB, ok := splitPair(c)
	if !ok {
		return
	}

	state, err := s.engine.PoolState(tokenA, tokenB)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, state)
}

func (s *Server) transactionHistory(c *gin.Context) {
	tokenA, tokenB, ok := splitPair(c)
	if !ok {
		return
	}

	txs, err := s.engine.TransactionHistory(tokenA, tokenB)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, txs)
}

func (s *Server) riskMetrics(c *gin.Context) {
	tokenA, tokenB, ok := splitPair(c)
	if !ok {
		return
	}

	confidence := 0.95
	if raw := c.Query("confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, err)
			return
		}
		confidence = parsed
	}

	window := risk.DefaultWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		window = parsed
	}

	pool, err := s.engine.Get(tokenA, tokenB)
	if err != nil {
		fail(c, err)
		return
	}

	snapshot, err := s.risk.ComputeVaR(pool, confidence, window)
	if err != nil {
		fail(c, err)
		return
	}
	volatility, err := s.risk.RecentVolatility(pool, window)
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, gin.H{"var": snapshot, "volatility": volatility})
}

type stopLossRequest struct {
	TokenA      string  `json:"token_a" binding:"required"`
	TokenB      string  `json:"token_b" binding:"required"`
	StopLossPct float64 `json:"stop_loss_percentage" binding:"required"`
}

func (s *Server) stopLoss(c *gin.Context) {
	var req stopLossRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pool, err := s.engine.Get(req.TokenA, req.TokenB)
	if err != nil {
		fail(c, err)
		return
	}

	triggered, err := s.risk.EvaluateStopLoss(pool, req.StopLossPct)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"triggered": triggered})
}

type lpReturnsRequest struct {
	TokenA     string  `json:"token_a" binding:"required"`
	TokenB     string  `json:"token_b" binding:"required"`
	InitialA   float64 `json:"initial_a" binding:"required"`
	InitialB   float64 `json:"initial_b" binding:"required"`
	PriceRatio float64 `json:"price_ratio"`
}

// lpReturns reports a liquidity position's fractional gain. PriceRatio
// defaults to the pool's current price when omitted.
func (s *Server) lpReturns(c *gin.Context) {
	var req lpReturnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pool, err := s.engine.Get(req.TokenA, req.TokenB)
	if err != nil {
		fail(c, err)
		return
	}

	initialA, initialB := req.InitialA, req.InitialB
	if first, _ := pool.Tokens(); req.TokenA != first {
		initialA, initialB = initialB, initialA
	}

	ratio := req.PriceRatio
	if ratio == 0 {
		ratio = pool.CurrentPrice()
	}
	returns, err := s.risk.LiquidityReturns(pool, initialA, initialB, ratio)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"liquidity_returns": returns, "price_ratio": ratio})
}

type positionSizeRequest struct {
	TokenA     string  `json:"token_a" binding:"required"`
	TokenB     string  `json:"token_b" binding:"required"`
	RiskFactor float64 `json:"risk_factor" binding:"required"`
}

func (s *Server) positionSize(c *gin.Context) {
	var req positionSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pool, err := s.engine.Get(req.TokenA, req.TokenB)
	if err != nil {
		fail(c, err)
		return
	}

	size, err := s.risk.SuggestPositionSize(pool, req.RiskFactor)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"suggested_amount": size})
}

type adjustFeeRequest struct {
	TokenA string `json:"token_a" binding:"required"`
	TokenB string `json:"token_b" binding:"required"`
}

// adjustFee applies the volatility-scaled fee recommendation to the pool.
func (s *Server) adjustFee(c *gin.Context) {
	var req adjustFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pool, err := s.engine.Get(req.TokenA, req.TokenB)
	if err != nil {
		fail(c, err)
		return
	}

	fee := s.risk.RecommendFee(pool)
	pool.AdjustFee(fee)
	respond(c, gin.H{"fee_rate": pool.State().FeeRate})
}

// splitPair parses a "TOKENA-TOKENB" path segment. Writes the error
// response itself when the segment is malformed.
func splitPair(c *gin.Context) (string, string, bool) {
	parts := strings.SplitN(c.Param("pair"), "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "pair must be TOKENA-TOKENB"})
		return "", "", false
	}
	return parts[0], parts[1], true
}

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

// fail maps the failure taxonomy onto response codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, amm.ErrPoolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, amm.ErrStopLossActive):
		status = http.StatusConflict
	case errors.Is(err, amm.ErrInsufficientLiquidity),
		errors.Is(err, amm.ErrInsufficientShares):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, amm.ErrInvalidToken),
		errors.Is(err, amm.ErrRatioMismatch),
		errors.Is(err, amm.ErrInsufficientHistory),
		errors.Is(err, amm.ErrInvalidParameter):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
