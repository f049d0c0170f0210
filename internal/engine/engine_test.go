package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"strategy-backtester/internal/series"
	"strategy-backtester/internal/strategy"
)

func mkBars(t *testing.T, closes ...float64) []series.Bar {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, len(closes))
	for i, c := range closes {
		bars[i] = series.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   decimal.NewFromFloat(c - 1),
			High:   decimal.NewFromFloat(c + 1),
			Low:    decimal.NewFromFloat(c - 2),
			Close:  decimal.NewFromFloat(c),
			Volume: 1000,
		}
	}
	return bars
}

func priceStrategy(start, end time.Time, buyExpr, sellExpr string) *strategy.Strategy {
	return &strategy.Strategy{
		Start: start,
		End:   end,
		Buy:   strategy.RuleSet{{Key: "price", Expr: buyExpr}},
		Sell:  strategy.RuleSet{{Key: "price", Expr: sellExpr}},
	}
}

func TestRunPositionLifecycle(t *testing.T) {
	bars := mkBars(t, 10, 12, 30, 14, 28, 26, 9, 8, 7, 6)
	s := priceStrategy(bars[0].Date, bars[len(bars)-1].Date, "<15", ">25")

	res, err := New(nil).Run("TEST", s, bars, Config{InitialBalance: decimal.NewFromInt(10000)})
	if err != nil {
		t.Fatal(err)
	}

	if res.TradeableDays != 10 {
		t.Fatalf("TradeableDays = %d, want 10", res.TradeableDays)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("closed positions = %d, want 2", len(res.Positions))
	}
	wantDays := [][2]int{{0, 2}, {3, 4}}
	for i, p := range res.Positions {
		if !p.Closed() {
			t.Fatalf("position %d not closed", i)
		}
		if p.BuyDay() != wantDays[i][0] || p.SellDay() != wantDays[i][1] {
			t.Errorf("position %d days = (%d,%d), want (%d,%d)",
				i, p.BuyDay(), p.SellDay(), wantDays[i][0], wantDays[i][1])
		}
	}
	if res.OpenPosition == nil {
		t.Fatal("want open position at end of run")
	}
	if res.OpenPosition.BuyDay() != 6 {
		t.Fatalf("open position buy day = %d, want 6", res.OpenPosition.BuyDay())
	}

	// Buys are all-in, so cash is zero while holding.
	if !res.FinalBalance.IsZero() {
		t.Fatalf("FinalBalance = %s, want 0", res.FinalBalance)
	}

	// The summary covers closed positions only.
	if res.Summary.TotalTrades != 2 {
		t.Fatalf("Summary.TotalTrades = %d, want 2", res.Summary.TotalTrades)
	}
	if !res.Summary.TotalPL.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("Summary.TotalPL = %s, want 50000", res.Summary.TotalPL)
	}
	if !res.Summary.Effectiveness.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Summary.Effectiveness = %s, want 100", res.Summary.Effectiveness)
	}
}

func TestRunNoSameDayReentry(t *testing.T) {
	bars := mkBars(t, 10, 30, 20)
	s := priceStrategy(bars[0].Date, bars[len(bars)-1].Date, ">0", ">25")

	res, err := New(nil).Run("TEST", s, bars, Config{InitialBalance: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Positions) != 1 {
		t.Fatalf("closed positions = %d, want 1", len(res.Positions))
	}
	if res.Positions[0].SellDay() != 1 {
		t.Fatalf("sell day = %d, want 1", res.Positions[0].SellDay())
	}
	if res.OpenPosition == nil || res.OpenPosition.BuyDay() != 2 {
		t.Fatal("re-entry must wait until the day after a sell")
	}
}

func TestRunIgnoresBarsAfterEnd(t *testing.T) {
	bars := mkBars(t, 10, 20, 30, 40, 50, 60)
	s := priceStrategy(bars[0].Date, bars[2].Date, "<5", ">100")

	res, err := New(nil).Run("TEST", s, bars, Config{InitialBalance: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatal(err)
	}
	if res.TradeableDays != 3 {
		t.Fatalf("TradeableDays = %d, want 3", res.TradeableDays)
	}
}

func TestRunLookback(t *testing.T) {
	bars := mkBars(t, 10, 20, 30, 40, 50)
	buySMA := &strategy.Strategy{
		Start: bars[3].Date,
		End:   bars[4].Date,
		Buy:   strategy.RuleSet{{Key: "SMA3", Expr: ">1000"}},
		Sell:  strategy.RuleSet{{Key: "price", Expr: ">1000"}},
	}

	res, err := New(nil).Run("TEST", buySMA, bars, Config{InitialBalance: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatal(err)
	}
	if res.TradeableDays != 2 {
		t.Fatalf("TradeableDays = %d, want 2", res.TradeableDays)
	}

	// Starting on the first bar leaves no room for the 3-day lookback.
	buySMA.Start = bars[0].Date
	_, err = New(nil).Run("TEST", buySMA, bars, Config{InitialBalance: decimal.NewFromInt(1000)})
	var insufficient *strategy.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientDataError", err)
	}
}

func TestRunStartAfterData(t *testing.T) {
	bars := mkBars(t, 10, 20, 30)
	s := priceStrategy(bars[2].Date.AddDate(0, 1, 0), bars[2].Date.AddDate(0, 2, 0), ">0", ">100")

	_, err := New(nil).Run("TEST", s, bars, Config{InitialBalance: decimal.NewFromInt(1000)})
	var insufficient *strategy.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientDataError", err)
	}
}

func TestRunRejectsUnknownIndicatorBeforeSimulating(t *testing.T) {
	bars := mkBars(t, 10, 20, 30)
	s := &strategy.Strategy{
		Start: bars[0].Date,
		End:   bars[2].Date,
		Buy:   strategy.RuleSet{{Key: "price", Expr: ">0"}},
		Sell:  strategy.RuleSet{{Key: "FOO", Expr: ">0"}},
	}
	_, err := New(nil).Run("TEST", s, bars, Config{InitialBalance: decimal.NewFromInt(1000)})
	var indicatorErr *strategy.IndicatorError
	if !errors.As(err, &indicatorErr) {
		t.Fatalf("got %v, want IndicatorError", err)
	}
}

func TestRequiredLookbackIsMaxOfBothSides(t *testing.T) {
	s := &strategy.Strategy{
		Start: time.Now(),
		End:   time.Now().AddDate(1, 0, 0),
		Buy:   strategy.RuleSet{{Key: "SMA50", Expr: ">100"}},
		Sell:  strategy.RuleSet{{Key: "RSI", Expr: ">70"}},
	}
	got, err := New(nil).RequiredLookback(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != 50 {
		t.Fatalf("lookback = %d, want 50", got)
	}
}
