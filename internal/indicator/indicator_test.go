package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func assertSeries(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if IsNoValue(want[i]) {
			if !IsNoValue(got[i]) {
				t.Errorf("day %d: got %v, want sentinel", i, got[i])
			}
			continue
		}
		if IsNoValue(got[i]) || !almostEqual(got[i], want[i]) {
			t.Errorf("day %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSMAWideningThenSliding(t *testing.T) {
	got := SMA(3, []float64{10, 20, 30, 40, 50})
	assertSeries(t, got, []float64{10, 15, 20, 30, 40})
}

func TestSMARounding(t *testing.T) {
	got := SMA(3, []float64{1, 2, 2})
	// (1+2+2)/3 = 1.6666... -> 1.667
	if got[2] != 1.667 {
		t.Fatalf("got %v, want 1.667", got[2])
	}
}

func TestEMASeedAndRecurrence(t *testing.T) {
	got := EMA(3, []float64{10, 20, 30, 40, 50})
	assertSeries(t, got, []float64{NoValue(), NoValue(), 20, 30, 40})
}

func TestEMAShorterThanLength(t *testing.T) {
	got := EMA(5, []float64{1, 2, 3})
	for i, v := range got {
		if !IsNoValue(v) {
			t.Errorf("day %d: got %v, want sentinel", i, v)
		}
	}
}

func TestMACDSentinelUntilSlowEMAWarm(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 10
	}
	got := MACD(prices)
	for i := 0; i < 25; i++ {
		if !IsNoValue(got[i]) {
			t.Errorf("day %d: got %v, want sentinel", i, got[i])
		}
	}
	for i := 25; i < 30; i++ {
		if got[i] != 0 {
			t.Errorf("day %d: got %v, want 0 on flat prices", i, got[i])
		}
	}
}

func TestStochasticWideningWindow(t *testing.T) {
	highs := []float64{10, 20, 30}
	lows := []float64{5, 10, 15}
	closes := []float64{7, 18, 27}
	got := Stochastic(3, highs, lows, closes)
	assertSeries(t, got, []float64{40, 86.667, 88})
}

func TestStochasticFlatRangeIsSentinel(t *testing.T) {
	flat := []float64{10, 10}
	got := Stochastic(2, flat, flat, flat)
	for i, v := range got {
		if !IsNoValue(v) {
			t.Errorf("day %d: got %v, want sentinel on zero range", i, v)
		}
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		length int
		prices []float64
		want   []float64
	}{
		{
			name:   "alternating gains and losses",
			length: 2,
			prices: []float64{10, 11, 10, 11},
			want:   []float64{NoValue(), NoValue(), 50, 75},
		},
		{
			name:   "all gains pins at 100",
			length: 2,
			prices: []float64{1, 2, 3, 4},
			want:   []float64{NoValue(), NoValue(), 100, 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertSeries(t, RSI(tt.length, tt.prices), tt.want)
		})
	}
}

func TestColors(t *testing.T) {
	got, err := Colors([]float64{1, 2, 3}, []float64{2, 1, 3})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{ColorGreen, ColorRed, ColorRed}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("day %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestColorsLengthMismatch(t *testing.T) {
	if _, err := Colors([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatal("want error on length mismatch")
	}
}
