// Package indicator implements the numeric series behind strategy rules.
//
// All functions are pure: one output value per input day, computed from the
// inputs alone. Days inside an indicator's warm-up period carry the no-value
// sentinel; comparisons against a sentinel never match.
package indicator

import (
	"fmt"
	"math"
)

// DefaultRSILength is used when an RSI rule key carries no explicit length.
const DefaultRSILength = 14

const (
	ColorGreen = "green"
	ColorRed   = "red"
)

// NoValue is the sentinel for days an indicator cannot be computed yet.
func NoValue() float64 { return math.NaN() }

// IsNoValue reports whether v is the warm-up sentinel.
func IsNoValue(v float64) bool { return math.IsNaN(v) }

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// SMA returns the simple moving average with a widening window: the first
// length-1 days average over however many points exist so far.
func SMA(length int, prices []float64) []float64 {
	out := make([]float64, len(prices))
	var sum float64
	for i, p := range prices {
		sum += p
		n := i + 1
		if i >= length {
			sum -= prices[i-length]
			n = length
		} else if n > length {
			n = length
		}
		out[i] = round3(sum / float64(n))
	}
	return out
}

// EMA seeds with the SMA of the first length prices at index length-1 and
// applies alpha = 2/(length+1) smoothing afterward. Days before the seed are
// sentinel. The recurrence runs on unrounded values; stored values are
// rounded to 3 decimals.
func EMA(length int, prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i := range out {
		out[i] = NoValue()
	}
	if len(prices) < length {
		return out
	}

	var seed float64
	for i := 0; i < length; i++ {
		seed += prices[i]
	}
	ema := seed / float64(length)
	out[length-1] = round3(ema)

	alpha := 2.0 / float64(length+1)
	for i := length; i < len(prices); i++ {
		ema = alpha*(prices[i]-ema) + ema
		out[i] = round3(ema)
	}
	return out
}

// MACD is EMA(12) minus EMA(26) day-for-day. A day is sentinel until both
// inputs are warmed up.
func MACD(prices []float64) []float64 {
	fast := EMA(12, prices)
	slow := EMA(26, prices)
	out := make([]float64, len(prices))
	for i := range out {
		if IsNoValue(fast[i]) || IsNoValue(slow[i]) {
			out[i] = NoValue()
			continue
		}
		out[i] = round3(fast[i] - slow[i])
	}
	return out
}

// Stochastic returns %K over a trailing window of length days, widening while
// fewer days are available. A flat window (high == low) yields the sentinel
// rather than a division by zero.
func Stochastic(length int, highs, lows, closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		start := i - length + 1
		if start < 0 {
			start = 0
		}
		hi, lo := highs[start], lows[start]
		for j := start + 1; j <= i; j++ {
			if highs[j] > hi {
				hi = highs[j]
			}
			if lows[j] < lo {
				lo = lows[j]
			}
		}
		if hi == lo {
			out[i] = NoValue()
			continue
		}
		out[i] = round3((closes[i] - lo) / (hi - lo) * 100)
	}
	return out
}

// RSI implements Wilder's relative strength index. The first length days are
// sentinel; the seed averages the first length price changes, after which
// Wilder smoothing applies. A zero average loss pins the value at 100.
func RSI(length int, prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i := range out {
		out[i] = NoValue()
	}
	if len(prices) <= length {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= length; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(length)
	avgLoss /= float64(length)
	out[length] = rsiValue(avgGain, avgLoss)

	n := float64(length)
	for i := length + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*(n-1) + gain) / n
		avgLoss = (avgLoss*(n-1) + loss) / n
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return round3(100 - 100/(1+rs))
}

// Colors labels each day green when close beats open, red otherwise.
func Colors(opens, closes []float64) ([]string, error) {
	if len(opens) != len(closes) {
		return nil, fmt.Errorf("colors: open/close length mismatch: %d vs %d", len(opens), len(closes))
	}
	out := make([]string, len(opens))
	for i := range opens {
		if closes[i] > opens[i] {
			out[i] = ColorGreen
		} else {
			out[i] = ColorRed
		}
	}
	return out, nil
}
