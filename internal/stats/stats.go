// Package stats aggregates the closed positions of a finished simulation.
// A Summary is built once from the final position list and never mutated, so
// its metrics carry no staleness risk.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"strategy-backtester/internal/position"
)

var hundred = decimal.NewFromInt(100)

// Summary holds every aggregate metric of a simulation, rounded to 3 decimal
// places. All fields are 0 for an empty position list.
type Summary struct {
	TotalTrades   int             `json:"total_trades"`
	Effectiveness decimal.Decimal `json:"effectiveness"`

	TotalPL  decimal.Decimal `json:"total_pl"`
	AvgPL    decimal.Decimal `json:"average_pl"`
	MedianPL decimal.Decimal `json:"median_pl"`
	StdDevPL decimal.Decimal `json:"stddev_pl"`

	TotalPLPercent  decimal.Decimal `json:"total_pl_percent"`
	AvgPLPercent    decimal.Decimal `json:"average_pl_percent"`
	MedianPLPercent decimal.Decimal `json:"median_pl_percent"`
	StdDevPLPercent decimal.Decimal `json:"stddev_pl_percent"`

	AvgDuration decimal.Decimal `json:"average_trade_duration"`
}

// New computes a Summary over closed positions. Passing an open position is
// a programming error and fails.
func New(closed []*position.Position) (*Summary, error) {
	s := &Summary{TotalTrades: len(closed)}
	if len(closed) == 0 {
		return s, nil
	}

	for i, p := range closed {
		if !p.Closed() {
			return nil, fmt.Errorf("stats: position %d is still open", i)
		}
	}

	pls := lo.Map(closed, func(p *position.Position, _ int) decimal.Decimal {
		pl, _ := p.LifetimeProfitLoss()
		return pl
	})
	plPcts := lo.Map(closed, func(p *position.Position, _ int) decimal.Decimal {
		pl, _ := p.LifetimeProfitLossPercent()
		return pl
	})
	durations := lo.Map(closed, func(p *position.Position, _ int) decimal.Decimal {
		d, _ := p.Duration()
		return decimal.NewFromInt(int64(d))
	})

	wins := lo.CountBy(pls, func(pl decimal.Decimal) bool {
		return !pl.IsNegative()
	})
	n := decimal.NewFromInt(int64(len(closed)))
	s.Effectiveness = decimal.NewFromInt(int64(wins)).Div(n).Mul(hundred).Round(3)

	s.TotalPL = sum(pls).Round(3)
	s.AvgPL = mean(pls).Round(3)
	s.MedianPL = median(pls).Round(3)
	s.StdDevPL = stddev(pls)

	s.TotalPLPercent = sum(plPcts).Round(3)
	s.AvgPLPercent = mean(plPcts).Round(3)
	s.MedianPLPercent = median(plPcts).Round(3)
	s.StdDevPLPercent = stddev(plPcts)

	s.AvgDuration = mean(durations).Round(3)
	return s, nil
}

func sum(values []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(decimal.Zero, values...)
}

func mean(values []decimal.Decimal) decimal.Decimal {
	return sum(values).Div(decimal.NewFromInt(int64(len(values))))
}

func median(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// stddev is the population standard deviation, computed in float64 for the
// square root and rounded back to 3 decimals.
func stddev(values []decimal.Decimal) decimal.Decimal {
	m := mean(values).InexactFloat64()
	var acc float64
	for _, v := range values {
		d := v.InexactFloat64() - m
		acc += d * d
	}
	return decimal.NewFromFloat(math.Sqrt(acc / float64(len(values)))).Round(3)
}
