package metrics

import (
	"errors"
	"math"
	"testing"

	"ammsim/internal/amm"
)

func TestImpermanentLossZeroWhenPriceUnchanged(t *testing.T) {
	loss, err := ImpermanentLoss(2000, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loss != 0 {
		t.Fatalf("expected zero loss, got %v", loss)
	}
}

func TestImpermanentLossPositiveOnDivergence(t *testing.T) {
	for _, current := range []float64{500, 1500, 2500, 8000} {
		loss, err := ImpermanentLoss(2000, current)
		if err != nil {
			t.Fatalf("price %v: unexpected error: %v", current, err)
		}
		if loss <= 0 {
			t.Fatalf("price %v: expected positive loss, got %v", current, loss)
		}
		if loss >= 1 {
			t.Fatalf("price %v: loss fraction out of range: %v", current, loss)
		}
	}
}

func TestImpermanentLossKnownValue(t *testing.T) {
	// Price doubling: IL = 1 - 2*sqrt(2)/3.
	loss, err := ImpermanentLoss(1000, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1 - 2*math.Sqrt2/3
	if math.Abs(loss-want) > 1e-12 {
		t.Fatalf("loss mismatch: %v != %v", loss, want)
	}
}

func TestImpermanentLossRejectsBadPrices(t *testing.T) {
	for _, prices := range [][2]float64{{0, 1}, {1, 0}, {-1, 1}, {1, -1}} {
		if _, err := ImpermanentLoss(prices[0], prices[1]); !errors.Is(err, amm.ErrInvalidParameter) {
			t.Fatalf("prices %v: expected ErrInvalidParameter, got %v", prices, err)
		}
	}
}

func TestSlippage(t *testing.T) {
	// Spot 2.0, realized 1.9: 5% slippage.
	got, err := Slippage(1, 1.9, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-0.05) > 1e-12 {
		t.Fatalf("slippage mismatch: %v != 0.05", got)
	}

	if _, err := Slippage(0, 1, 2); !errors.Is(err, amm.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestTrackerAccumulates(t *testing.T) {
	tracker := NewTracker()

	pool := amm.NewPool("ETH", "USDC", amm.MinFeeRate)
	if _, err := pool.AddLiquidity(100, 200000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	tracker.Record(pool)

	if _, err := pool.Swap("ETH", 2); err != nil {
		t.Fatalf("swap: %v", err)
	}
	tracker.Record(pool)

	key := amm.PairKey("ETH", "USDC")
	summary, ok := tracker.Summary(key)
	if !ok {
		t.Fatalf("missing summary for %s", key)
	}
	if summary.SwapCount != 1 {
		t.Fatalf("swap count mismatch: %d != 1", summary.SwapCount)
	}
	if summary.Volume != 2 {
		t.Fatalf("volume mismatch: %v != 2", summary.Volume)
	}
	if math.Abs(summary.FeesCollected-2*amm.MinFeeRate) > 1e-12 {
		t.Fatalf("fees mismatch: %v != %v", summary.FeesCollected, 2*amm.MinFeeRate)
	}

	if got := len(tracker.Snapshots(key)); got != 2 {
		t.Fatalf("snapshot count mismatch: %d != 2", got)
	}
}

func TestTrackerCountsStopLossOnce(t *testing.T) {
	tracker := NewTracker()

	pool := amm.NewPool("ETH", "USDC", amm.MinFeeRate)
	if _, err := pool.AddLiquidity(100, 200000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	tracker.Record(pool)
	pool.Halt()
	tracker.Record(pool)
	tracker.Record(pool)

	summary, _ := tracker.Summary(amm.PairKey("ETH", "USDC"))
	if summary.StopLossTriggers != 1 {
		t.Fatalf("trigger count mismatch: %d != 1", summary.StopLossTriggers)
	}
}
