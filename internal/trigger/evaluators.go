package trigger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"strategy-backtester/internal/indicator"
	"strategy-backtester/internal/position"
	"strategy-backtester/internal/series"
	"strategy-backtester/internal/strategy"
)

// Evaluator is one rule evaluator per indicator kind. Validate and Lookback
// run during the pre-pass, EnsureData populates backing columns before the
// simulation loop, Evaluate is the per-day trigger decision.
type Evaluator interface {
	// Symbol is the key prefix this evaluator is dispatched on.
	Symbol() string
	// Referenceable reports whether this indicator may appear as the
	// right-hand side of another rule's comparison.
	Referenceable() bool
	Validate(r strategy.Rule) error
	Lookback(r strategy.Rule) (int, error)
	EnsureData(r strategy.Rule, f *series.Frame) error
	Evaluate(r strategy.Rule, f *series.Frame, pos *position.Position, day int) (bool, error)
}

// valuer is implemented by evaluators whose current-day value can serve as a
// comparison operand.
type valuer interface {
	Value(r strategy.Rule, f *series.Frame, day int) (float64, error)
}

// binder is implemented by evaluators that resolve right-hand-side indicator
// references through the registry.
type binder interface {
	bind(reg *Registry)
}

// ---- length-parameterized column indicators (SMA, EMA, RSI, stochastic) ----

type computeFunc func(length int, f *series.Frame) ([]float64, error)

type lengthIndicator struct {
	symbol     string
	defaultLen int // 0 means a length is required in the key
	compute    computeFunc
	reg        *Registry
}

func (e *lengthIndicator) Symbol() string      { return e.symbol }
func (e *lengthIndicator) Referenceable() bool { return true }
func (e *lengthIndicator) bind(reg *Registry)  { e.reg = reg }

func (e *lengthIndicator) length(r strategy.Rule) (int, error) {
	suffix := strings.TrimPrefix(r.Key, e.symbol)
	if suffix == "" {
		if e.defaultLen > 0 {
			return e.defaultLen, nil
		}
		return 0, &strategy.IndicatorError{Key: r.Key, Reason: e.symbol + " requires an explicit length"}
	}
	length, err := strconv.Atoi(suffix)
	if err != nil || length <= 0 {
		return 0, &strategy.IndicatorError{Key: r.Key, Reason: "unparsable length " + strconv.Quote(suffix)}
	}
	return length, nil
}

func (e *lengthIndicator) column(r strategy.Rule) (string, int, error) {
	length, err := e.length(r)
	if err != nil {
		return "", 0, err
	}
	return e.symbol + strconv.Itoa(length), length, nil
}

func (e *lengthIndicator) Validate(r strategy.Rule) error {
	if _, err := e.length(r); err != nil {
		return err
	}
	return validateComparisonRule(e.reg, e.symbol, r)
}

func (e *lengthIndicator) Lookback(r strategy.Rule) (int, error) {
	return e.length(r)
}

func (e *lengthIndicator) EnsureData(r strategy.Rule, f *series.Frame) error {
	name, length, err := e.column(r)
	if err != nil {
		return err
	}
	if f.HasColumn(name) {
		return nil
	}
	values, err := e.compute(length, f)
	if err != nil {
		return err
	}
	return f.AddColumn(name, values)
}

func (e *lengthIndicator) Value(r strategy.Rule, f *series.Frame, day int) (float64, error) {
	name, _, err := e.column(r)
	if err != nil {
		return 0, err
	}
	return f.Point(name, day)
}

func (e *lengthIndicator) Evaluate(r strategy.Rule, f *series.Frame, _ *position.Position, day int) (bool, error) {
	lhs, err := e.Value(r, f, day)
	if err != nil {
		return false, err
	}
	return e.reg.compareAgainst(r, lhs, f, day)
}

func smaColumn(length int, f *series.Frame) ([]float64, error) {
	closes, err := f.Column(series.ColClose)
	if err != nil {
		return nil, err
	}
	return indicator.SMA(length, closes), nil
}

func emaColumn(length int, f *series.Frame) ([]float64, error) {
	closes, err := f.Column(series.ColClose)
	if err != nil {
		return nil, err
	}
	return indicator.EMA(length, closes), nil
}

func rsiColumn(length int, f *series.Frame) ([]float64, error) {
	closes, err := f.Column(series.ColClose)
	if err != nil {
		return nil, err
	}
	return indicator.RSI(length, closes), nil
}

func stochasticColumn(length int, f *series.Frame) ([]float64, error) {
	highs, err := f.Column(series.ColHigh)
	if err != nil {
		return nil, err
	}
	lows, err := f.Column(series.ColLow)
	if err != nil {
		return nil, err
	}
	closes, err := f.Column(series.ColClose)
	if err != nil {
		return nil, err
	}
	return indicator.Stochastic(length, highs, lows, closes), nil
}

// ---- MACD ----

type macdEvaluator struct {
	reg *Registry
}

const macdColumn = "MACD"

// macdLookback is the slow EMA length MACD is built from.
const macdLookback = 26

func (e *macdEvaluator) Symbol() string      { return "MACD" }
func (e *macdEvaluator) Referenceable() bool { return true }
func (e *macdEvaluator) bind(reg *Registry)  { e.reg = reg }

func (e *macdEvaluator) Validate(r strategy.Rule) error {
	if r.Key != "MACD" {
		return &strategy.IndicatorError{Key: r.Key, Reason: "MACD takes no length or modifier"}
	}
	return validateComparisonRule(e.reg, "MACD", r)
}

func (e *macdEvaluator) Lookback(strategy.Rule) (int, error) { return macdLookback, nil }

func (e *macdEvaluator) EnsureData(_ strategy.Rule, f *series.Frame) error {
	if f.HasColumn(macdColumn) {
		return nil
	}
	closes, err := f.Column(series.ColClose)
	if err != nil {
		return err
	}
	return f.AddColumn(macdColumn, indicator.MACD(closes))
}

func (e *macdEvaluator) Value(_ strategy.Rule, f *series.Frame, day int) (float64, error) {
	return f.Point(macdColumn, day)
}

func (e *macdEvaluator) Evaluate(r strategy.Rule, f *series.Frame, _ *position.Position, day int) (bool, error) {
	lhs, err := e.Value(r, f, day)
	if err != nil {
		return false, err
	}
	return e.reg.compareAgainst(r, lhs, f, day)
}

// ---- price ----

// priceEvaluator matches the exact key "price" or "price$slope<N>", which
// compares the close move over the last N days instead of the close itself.
type priceEvaluator struct {
	reg *Registry
}

const slopeModifier = "$slope"

func (e *priceEvaluator) Symbol() string      { return "price" }
func (e *priceEvaluator) Referenceable() bool { return true }
func (e *priceEvaluator) bind(reg *Registry)  { e.reg = reg }

func (e *priceEvaluator) slope(r strategy.Rule) (int, error) {
	suffix := strings.TrimPrefix(r.Key, "price")
	if suffix == "" {
		return 0, nil
	}
	if !strings.HasPrefix(suffix, slopeModifier) {
		return 0, &strategy.IndicatorError{Key: r.Key, Reason: "price takes no length, only the " + slopeModifier + " modifier"}
	}
	days, err := strconv.Atoi(strings.TrimPrefix(suffix, slopeModifier))
	if err != nil || days <= 0 {
		return 0, &strategy.IndicatorError{Key: r.Key, Reason: "unparsable slope window in " + strconv.Quote(r.Key)}
	}
	return days, nil
}

func (e *priceEvaluator) Validate(r strategy.Rule) error {
	if _, err := e.slope(r); err != nil {
		return err
	}
	return validateComparisonRule(e.reg, "price", r)
}

func (e *priceEvaluator) Lookback(r strategy.Rule) (int, error) {
	return e.slope(r)
}

func (e *priceEvaluator) EnsureData(strategy.Rule, *series.Frame) error { return nil }

func (e *priceEvaluator) Value(r strategy.Rule, f *series.Frame, day int) (float64, error) {
	days, err := e.slope(r)
	if err != nil {
		return 0, err
	}
	today, err := f.Point(series.ColClose, day)
	if err != nil {
		return 0, err
	}
	if days == 0 {
		return today, nil
	}
	if day-days < 0 {
		return indicator.NoValue(), nil
	}
	then, err := f.Point(series.ColClose, day-days)
	if err != nil {
		return 0, err
	}
	return today - then, nil
}

func (e *priceEvaluator) Evaluate(r strategy.Rule, f *series.Frame, _ *position.Position, day int) (bool, error) {
	lhs, err := e.Value(r, f, day)
	if err != nil {
		return false, err
	}
	return e.reg.compareAgainst(r, lhs, f, day)
}

// ---- volume ----

// volumeEvaluator compares the day's volume. Volume is not referenceable as
// a comparison operand.
type volumeEvaluator struct {
	reg *Registry
}

func (e *volumeEvaluator) Symbol() string      { return "volume" }
func (e *volumeEvaluator) Referenceable() bool { return false }
func (e *volumeEvaluator) bind(reg *Registry)  { e.reg = reg }

func (e *volumeEvaluator) Validate(r strategy.Rule) error {
	if r.Key != "volume" {
		return &strategy.IndicatorError{Key: r.Key, Reason: "volume takes no length or modifier"}
	}
	return validateComparisonRule(e.reg, "volume", r)
}

func (e *volumeEvaluator) Lookback(strategy.Rule) (int, error)           { return 0, nil }
func (e *volumeEvaluator) EnsureData(strategy.Rule, *series.Frame) error { return nil }

func (e *volumeEvaluator) Evaluate(r strategy.Rule, f *series.Frame, _ *position.Position, day int) (bool, error) {
	lhs, err := f.Point(series.ColVolume, day)
	if err != nil {
		return false, err
	}
	return e.reg.compareAgainst(r, lhs, f, day)
}

// ---- candlestick color ----

// colorEvaluator matches a sequence of expected candle colors at relative
// day offsets. The rule hits only when the whole sequence matches; offsets
// reaching before the window's first day never match.
type colorEvaluator struct{}

func (colorEvaluator) Symbol() string      { return "color" }
func (colorEvaluator) Referenceable() bool { return false }

func (colorEvaluator) Validate(r strategy.Rule) error {
	if len(r.Colors) == 0 {
		return &strategy.IndicatorError{Key: r.Key, Reason: "color requires an offset-to-color mapping"}
	}
	return nil
}

func (colorEvaluator) Lookback(r strategy.Rule) (int, error) {
	if len(r.Colors) == 0 {
		return 0, &strategy.IndicatorError{Key: r.Key, Reason: "color requires an offset-to-color mapping"}
	}
	return r.MaxOffset(), nil
}

func (colorEvaluator) EnsureData(strategy.Rule, *series.Frame) error { return nil }

func (colorEvaluator) Evaluate(r strategy.Rule, f *series.Frame, _ *position.Position, day int) (bool, error) {
	if len(r.Colors) == 0 {
		return false, &strategy.IndicatorError{Key: r.Key, Reason: "color requires an offset-to-color mapping"}
	}
	for _, c := range r.Colors {
		idx := day - c.Offset
		if idx < 0 {
			return false, nil
		}
		got, err := f.Color(idx)
		if err != nil {
			return false, err
		}
		if got != c.Color {
			return false, nil
		}
	}
	return true, nil
}

// ---- stop-loss / stop-profit ----

// stopEvaluator closes positions on profit/loss thresholds. "N%" compares
// against profit/loss percent, a plain operator expression against absolute
// profit/loss. A key containing "intraday" measures today's open against the
// close; otherwise the buy price against the close. Stops are only evaluated
// on the sell side with an open position; being called without one is a
// programming contract violation.
type stopEvaluator struct {
	symbol string
	profit bool
}

func (e *stopEvaluator) Symbol() string      { return e.symbol }
func (e *stopEvaluator) Referenceable() bool { return false }

func (e *stopEvaluator) Validate(r strategy.Rule) error {
	if len(r.Colors) > 0 || r.Group != nil {
		return &strategy.IndicatorError{Key: r.Key, Reason: e.symbol + " expects a threshold value"}
	}
	cmp, err := parseComparison(r.Key, r.Expr)
	if err != nil {
		return err
	}
	if cmp.Ref != "" {
		return &strategy.IndicatorError{Key: r.Key, Reason: e.symbol + " cannot reference another indicator"}
	}
	return nil
}

func (e *stopEvaluator) Lookback(strategy.Rule) (int, error)           { return 0, nil }
func (e *stopEvaluator) EnsureData(strategy.Rule, *series.Frame) error { return nil }

func (e *stopEvaluator) Evaluate(r strategy.Rule, f *series.Frame, pos *position.Position, day int) (bool, error) {
	if pos == nil {
		return false, fmt.Errorf("trigger: %s evaluated without an open position", e.symbol)
	}
	cmp, err := parseComparison(r.Key, r.Expr)
	if err != nil {
		return false, err
	}

	bar, err := f.Bar(day)
	if err != nil {
		return false, err
	}
	from := pos.BuyPrice()
	if strings.Contains(r.Key, "intraday") {
		from = bar.Open
	}

	if cmp.Percent {
		pl := pos.ProfitLossPercentBetween(from, bar.Close)
		threshold := decimal.NewFromFloat(cmp.Num)
		if e.profit {
			return pl.GreaterThanOrEqual(threshold), nil
		}
		return pl.LessThanOrEqual(threshold.Neg()), nil
	}

	pl := pos.ProfitLossBetween(from, bar.Close)
	return compare(pl.InexactFloat64(), cmp.Op, cmp.Num), nil
}

// validateComparisonRule checks the shared shape of comparison-valued rules
// and fail-fast-resolves any right-hand-side reference.
func validateComparisonRule(reg *Registry, symbol string, r strategy.Rule) error {
	if len(r.Colors) > 0 || r.Group != nil {
		return &strategy.IndicatorError{Key: r.Key, Reason: symbol + " expects a comparison expression"}
	}
	cmp, err := parseComparison(r.Key, r.Expr)
	if err != nil {
		return err
	}
	if cmp.Percent {
		return &strategy.IndicatorError{Key: r.Key, Reason: "percent thresholds apply to stop rules only"}
	}
	if cmp.Ref != "" {
		if reg == nil {
			return fmt.Errorf("trigger: %s evaluator not registered", symbol)
		}
		return reg.validateReference(r.Key, cmp.Ref)
	}
	return nil
}
