// Package engine drives the day-by-day simulation: the lookback pre-pass,
// the FLAT/HOLDING position state machine, and result assembly.
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"strategy-backtester/internal/position"
	"strategy-backtester/internal/series"
	"strategy-backtester/internal/stats"
	"strategy-backtester/internal/strategy"
	"strategy-backtester/internal/trigger"
)

// Config carries per-run settings.
type Config struct {
	InitialBalance decimal.Decimal
}

// Result is the record a finished simulation hands to reporting layers.
// OpenPosition is non-nil when the run ended still holding; it is excluded
// from Summary.
type Result struct {
	JobID         string
	Symbol        string
	Strategy      *strategy.Strategy
	Elapsed       time.Duration
	TradeableDays int
	Positions     []*position.Position
	OpenPosition  *position.Position
	FinalBalance  decimal.Decimal
	ProfitLoss    decimal.Decimal
	Summary       *stats.Summary
}

// Engine runs simulations. One Engine may run many simulations; each run
// owns its frame, account and position state, so runs are independent.
type Engine struct {
	reg *trigger.Registry
	log *zap.Logger
}

func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{reg: trigger.NewRegistry(), log: log}
}

// RequiredLookback validates both rule trees and returns the extra history
// days to fetch before the strategy's start so every indicator is warmed up
// by the first trading day.
func (e *Engine) RequiredLookback(s *strategy.Strategy) (int, error) {
	if err := e.reg.Validate(s.Buy); err != nil {
		return 0, err
	}
	if err := e.reg.Validate(s.Sell); err != nil {
		return 0, err
	}
	buyDays, err := e.reg.Lookback(s.Buy)
	if err != nil {
		return 0, err
	}
	sellDays, err := e.reg.Lookback(s.Sell)
	if err != nil {
		return 0, err
	}
	if sellDays > buyDays {
		return sellDays, nil
	}
	return buyDays, nil
}

// Run simulates one symbol. bars must span at least the strategy's lookback
// requirement before its start; days after the strategy's end are ignored.
// All strategy errors surface here before the first simulated day.
func (e *Engine) Run(symbol string, s *strategy.Strategy, bars []series.Bar, cfg Config) (*Result, error) {
	started := time.Now()
	jobID := uuid.New().String()

	lookback, err := e.RequiredLookback(s)
	if err != nil {
		return nil, err
	}

	// Drop days past the strategy window before building the frame.
	for len(bars) > 0 && bars[len(bars)-1].Date.After(s.End) {
		bars = bars[:len(bars)-1]
	}

	frame, err := series.NewFrame(bars)
	if err != nil {
		return nil, err
	}

	tradeStart := -1
	for i, b := range bars {
		if !b.Date.Before(s.Start) {
			tradeStart = i
			break
		}
	}
	if tradeStart < 0 {
		return nil, &strategy.InsufficientDataError{Need: lookback + 1, Have: len(bars)}
	}
	if tradeStart < lookback {
		return nil, &strategy.InsufficientDataError{Need: lookback, Have: tradeStart}
	}

	// Pre-pass: every indicator column exists before day-by-day evaluation.
	if err := e.reg.EnsureData(s.Buy, frame); err != nil {
		return nil, err
	}
	if err := e.reg.EnsureData(s.Sell, frame); err != nil {
		return nil, err
	}
	if err := frame.TrimFrom(tradeStart); err != nil {
		return nil, err
	}

	e.log.Debug("simulation starting",
		zap.String("job_id", jobID),
		zap.String("symbol", symbol),
		zap.Int("lookback_days", lookback),
		zap.Int("tradeable_days", frame.Len()),
	)

	account := position.NewAccount(cfg.InitialBalance)
	var (
		open   *position.Position
		closed []*position.Position
	)

	for day := 0; day < frame.Len(); day++ {
		bar, err := frame.Bar(day)
		if err != nil {
			return nil, err
		}

		soldToday := false
		if open != nil {
			hit, err := e.reg.EvaluateSet(s.Sell, frame, open, day)
			if err != nil {
				return nil, err
			}
			if hit {
				if err := open.Close(bar.Close, day); err != nil {
					return nil, err
				}
				proceeds, err := open.Proceeds()
				if err != nil {
					return nil, err
				}
				account.Credit(proceeds)
				closed = append(closed, open)
				open = nil
				soldToday = true
			}
		}

		// One transition per day: a position sold today cannot be replaced
		// until tomorrow.
		if open == nil && !soldToday {
			hit, err := e.reg.EvaluateSet(s.Buy, frame, nil, day)
			if err != nil {
				return nil, err
			}
			if hit && account.Balance().IsPositive() {
				balance := account.Balance()
				shares := balance.Div(bar.Close)
				if err := account.Debit(balance); err != nil {
					return nil, err
				}
				open = position.Open(bar.Close, shares, day)
			}
		}
	}

	summary, err := stats.New(closed)
	if err != nil {
		return nil, err
	}

	res := &Result{
		JobID:         jobID,
		Symbol:        symbol,
		Strategy:      s,
		Elapsed:       time.Since(started),
		TradeableDays: frame.Len(),
		Positions:     closed,
		OpenPosition:  open,
		FinalBalance:  account.Balance(),
		ProfitLoss:    account.ProfitLoss(),
		Summary:       summary,
	}
	e.log.Info("simulation finished",
		zap.String("job_id", jobID),
		zap.String("symbol", symbol),
		zap.Int("trades", summary.TotalTrades),
		zap.Bool("still_holding", open != nil),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}
