package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ammsim/internal/amm"
	"ammsim/internal/risk"
)

func newTestServer(t *testing.T) (*Server, *amm.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := amm.NewEngine()
	server := NewServer(engine, risk.NewManager(nil), nil)
	return server, engine
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: %d != %d", rec.Code, http.StatusOK)
	}
}

func TestLiquidityAndSwapFlow(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/liquidity/add", gin.H{
		"token_a": "ETH", "token_b": "USDC", "amount_a": 100.0, "amount_b": 200000.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add liquidity status: %d, body: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/swap", gin.H{
		"token_from": "ETH", "token_to": "USDC", "amount": 1.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("swap status: %d, body: %s", rec.Code, rec.Body.String())
	}

	var swapResp struct {
		Success bool `json:"success"`
		Data    struct {
			AmountOut float64 `json:"amount_out"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &swapResp); err != nil {
		t.Fatalf("decode swap response: %v", err)
	}
	if !swapResp.Success || swapResp.Data.AmountOut <= 0 {
		t.Fatalf("swap response mismatch: %+v", swapResp)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/pools/ETH-USDC/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state status: %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/pools/ETH-USDC/transactions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions status: %d", rec.Code)
	}
}

func TestPoolNotFoundMapsTo404(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/pools/ETH-USDC/state", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status mismatch: %d != %d", rec.Code, http.StatusNotFound)
	}
}

func TestHaltedPoolMapsTo409(t *testing.T) {
	server, engine := newTestServer(t)

	if _, err := engine.AddLiquidity("ETH", "USDC", 100, 200000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	pool, err := engine.Get("ETH", "USDC")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	pool.Halt()

	rec := doJSON(t, server, http.MethodPost, "/api/v1/swap", gin.H{
		"token_from": "ETH", "token_to": "USDC", "amount": 1.0,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status mismatch: %d != %d", rec.Code, http.StatusConflict)
	}
}

func TestRatioMismatchMapsTo400(t *testing.T) {
	server, engine := newTestServer(t)

	if _, err := engine.AddLiquidity("ETH", "USDC", 100, 200000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/liquidity/add", gin.H{
		"token_a": "ETH", "token_b": "USDC", "amount_a": 10.0, "amount_b": 5.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status mismatch: %d != %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRiskMetricsRequireHistory(t *testing.T) {
	server, engine := newTestServer(t)

	if _, err := engine.AddLiquidity("ETH", "USDC", 100, 200000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	rec := doJSON(t, server, http.MethodGet, "/api/v1/pools/ETH-USDC/risk", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status mismatch: %d != %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRiskMetricsAfterActivity(t *testing.T) {
	server, engine := newTestServer(t)

	if _, err := engine.AddLiquidity("ETH", "USDC", 100, 200000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := engine.Swap("ETH", "USDC", 1); err != nil {
			t.Fatalf("swap: %v", err)
		}
	}

	rec := doJSON(t, server, http.MethodGet, "/api/v1/pools/ETH-USDC/risk?confidence=0.99&window=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: %d, body: %s", rec.Code, rec.Body.String())
	}
}

func TestStopLossEndpoint(t *testing.T) {
	server, engine := newTestServer(t)

	if _, err := engine.AddLiquidity("ETH", "USDC", 100, 200); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	if _, err := engine.Swap("ETH", "USDC", 30); err != nil {
		t.Fatalf("swap: %v", err)
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/risk/stop-loss", gin.H{
		"token_a": "ETH", "token_b": "USDC", "stop_loss_percentage": 0.2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Triggered bool `json:"triggered"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Data.Triggered {
		t.Fatalf("expected stop loss to trigger")
	}
}

func TestAddLiquidityIncentivizedEndpoint(t *testing.T) {
	server, engine := newTestServer(t)

	if _, err := engine.AddLiquidity("ETH", "USDC", 100, 200); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/liquidity/add-incentivized", gin.H{
		"token_a": "ETH", "token_b": "USDC", "amount_a": 100.0, "amount_b": 199.9,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			LPTokens  float64 `json:"lp_tokens"`
			Incentive float64 `json:"incentive"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.LPTokens <= 0 {
		t.Fatalf("expected minted tokens, got %v", resp.Data.LPTokens)
	}
	if resp.Data.Incentive <= 0 || resp.Data.Incentive > amm.MaxRebalanceIncentive {
		t.Fatalf("incentive %v outside (0, %v]", resp.Data.Incentive, amm.MaxRebalanceIncentive)
	}
}

func TestLPReturnsEndpoint(t *testing.T) {
	server, engine := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/risk/lp-returns", gin.H{
		"token_a": "ETH", "token_b": "USDC", "initial_a": 100.0, "initial_b": 200000.0,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing pool status mismatch: %d != %d", rec.Code, http.StatusNotFound)
	}

	if _, err := engine.AddLiquidity("ETH", "USDC", 100, 200000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	if _, err := engine.Swap("ETH", "USDC", 2); err != nil {
		t.Fatalf("swap: %v", err)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/risk/lp-returns", gin.H{
		"token_a": "ETH", "token_b": "USDC",
		"initial_a": 100.0, "initial_b": 200000.0, "price_ratio": 2000.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			LiquidityReturns float64 `json:"liquidity_returns"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.LiquidityReturns <= 0 {
		t.Fatalf("expected positive returns after fee accrual, got %v", resp.Data.LiquidityReturns)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	server, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx, "127.0.0.1:0") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down after cancellation")
	}
}

func TestAdjustFeeEndpoint(t *testing.T) {
	server, engine := newTestServer(t)

	if _, err := engine.AddLiquidity("ETH", "USDC", 100, 200000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/risk/adjust-fee", gin.H{
		"token_a": "ETH", "token_b": "USDC",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			FeeRate float64 `json:"fee_rate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.FeeRate < amm.MinFeeRate || resp.Data.FeeRate > amm.MaxFeeRate {
		t.Fatalf("fee %v outside band", resp.Data.FeeRate)
	}
}

func TestBadPairSegment(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/pools/ETHUSDC/state", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status mismatch: %d != %d", rec.Code, http.StatusBadRequest)
	}
}
