// Package trigger matches strategy rules against the data window: one
// evaluator per indicator kind, dispatched by longest-prefix match on the
// rule key, plus the recursive OR/AND evaluation over a rule tree.
package trigger

import (
	"sort"
	"strings"

	"strategy-backtester/internal/indicator"
	"strategy-backtester/internal/position"
	"strategy-backtester/internal/series"
	"strategy-backtester/internal/strategy"
)

// Registry is the dispatch table from rule keys to evaluators, built once.
// Resolution is longest-symbol-first so prefix-overlapping symbols cannot
// shadow each other.
type Registry struct {
	evaluators []Evaluator
}

func NewRegistry() *Registry {
	reg := &Registry{}
	for _, ev := range []Evaluator{
		&lengthIndicator{symbol: "SMA", compute: smaColumn},
		&lengthIndicator{symbol: "EMA", compute: emaColumn},
		&lengthIndicator{symbol: "RSI", defaultLen: indicator.DefaultRSILength, compute: rsiColumn},
		&lengthIndicator{symbol: "stochastic", compute: stochasticColumn},
		&macdEvaluator{},
		&priceEvaluator{},
		&volumeEvaluator{},
		colorEvaluator{},
		&stopEvaluator{symbol: "stop-loss"},
		&stopEvaluator{symbol: "stop-profit", profit: true},
	} {
		if b, ok := ev.(binder); ok {
			b.bind(reg)
		}
		reg.evaluators = append(reg.evaluators, ev)
	}
	sort.SliceStable(reg.evaluators, func(i, j int) bool {
		return len(reg.evaluators[i].Symbol()) > len(reg.evaluators[j].Symbol())
	})
	return reg
}

// Resolve returns the evaluator whose symbol is the longest prefix of key.
func (g *Registry) Resolve(key string) (Evaluator, error) {
	for _, ev := range g.evaluators {
		if strings.HasPrefix(key, ev.Symbol()) {
			return ev, nil
		}
	}
	return nil, &strategy.IndicatorError{Key: key, Reason: "unknown indicator symbol"}
}

// Validate walks a rule set recursively and fails fast on unknown symbols,
// missing lengths, and unparsable comparisons, before any day is simulated.
func (g *Registry) Validate(rs strategy.RuleSet) error {
	for _, r := range rs {
		if r.Group != nil {
			if err := g.Validate(r.Group); err != nil {
				return err
			}
			continue
		}
		ev, err := g.Resolve(r.Key)
		if err != nil {
			return err
		}
		if err := ev.Validate(r); err != nil {
			return err
		}
	}
	return nil
}

// Lookback is the additional-days requirement of a rule set: the maximum
// over every rule, nested groups and right-hand-side references included.
func (g *Registry) Lookback(rs strategy.RuleSet) (int, error) {
	max := 0
	for _, r := range rs {
		days, err := g.ruleLookback(r)
		if err != nil {
			return 0, err
		}
		if days > max {
			max = days
		}
	}
	return max, nil
}

func (g *Registry) ruleLookback(r strategy.Rule) (int, error) {
	if r.Group != nil {
		return g.Lookback(r.Group)
	}
	ev, err := g.Resolve(r.Key)
	if err != nil {
		return 0, err
	}
	days, err := ev.Lookback(r)
	if err != nil {
		return 0, err
	}
	if r.Expr != "" {
		cmp, err := parseComparison(r.Key, r.Expr)
		if err != nil {
			return 0, err
		}
		if cmp.Ref != "" {
			refDays, err := g.ruleLookback(strategy.Rule{Key: cmp.Ref, Expr: ">0"})
			if err != nil {
				return 0, err
			}
			if refDays > days {
				days = refDays
			}
		}
	}
	return days, nil
}

// EnsureData populates every indicator column a rule set references,
// including columns behind right-hand-side references. It runs once before
// the loop so evaluation never finds a column missing. Re-running is a no-op.
func (g *Registry) EnsureData(rs strategy.RuleSet, f *series.Frame) error {
	for _, r := range rs {
		if r.Group != nil {
			if err := g.EnsureData(r.Group, f); err != nil {
				return err
			}
			continue
		}
		ev, err := g.Resolve(r.Key)
		if err != nil {
			return err
		}
		if err := ev.EnsureData(r, f); err != nil {
			return err
		}
		if r.Expr != "" {
			cmp, err := parseComparison(r.Key, r.Expr)
			if err != nil {
				return err
			}
			if cmp.Ref != "" {
				refEv, err := g.Resolve(cmp.Ref)
				if err != nil {
					return err
				}
				if err := refEv.EnsureData(strategy.Rule{Key: cmp.Ref}, f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// EvaluateSet decides one side of a strategy for the current day: top-level
// rules are OR'd in document order with short-circuiting, group rules AND
// their children.
func (g *Registry) EvaluateSet(rs strategy.RuleSet, f *series.Frame, pos *position.Position, day int) (bool, error) {
	for _, r := range rs {
		hit, err := g.evaluateRule(r, f, pos, day)
		if err != nil {
			return false, err
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}

func (g *Registry) evaluateRule(r strategy.Rule, f *series.Frame, pos *position.Position, day int) (bool, error) {
	if r.Group != nil {
		for _, sub := range r.Group {
			hit, err := g.evaluateRule(sub, f, pos, day)
			if err != nil {
				return false, err
			}
			if !hit {
				return false, nil
			}
		}
		return true, nil
	}
	ev, err := g.Resolve(r.Key)
	if err != nil {
		return false, err
	}
	return ev.Evaluate(r, f, pos, day)
}

// compareAgainst finishes a numeric rule: resolves the right-hand side
// (literal or indicator reference) and applies the operator. A sentinel on
// either side makes the comparison false instead of an error.
func (g *Registry) compareAgainst(r strategy.Rule, lhs float64, f *series.Frame, day int) (bool, error) {
	cmp, err := parseComparison(r.Key, r.Expr)
	if err != nil {
		return false, err
	}
	if cmp.Percent {
		return false, &strategy.IndicatorError{Key: r.Key, Reason: "percent thresholds apply to stop rules only"}
	}
	if indicator.IsNoValue(lhs) {
		return false, nil
	}
	rhs := cmp.Num
	if cmp.Ref != "" {
		rhs, err = g.referenceValue(r.Key, cmp.Ref, f, day)
		if err != nil {
			return false, err
		}
		if indicator.IsNoValue(rhs) {
			return false, nil
		}
	}
	return compare(lhs, cmp.Op, rhs), nil
}

// validateReference checks a right-hand-side indicator key during the
// pre-pass: it must resolve, be referenceable, and carry a usable length.
func (g *Registry) validateReference(key, ref string) error {
	ev, err := g.Resolve(ref)
	if err != nil {
		return &strategy.IndicatorError{Key: key, Reason: "unknown reference " + ref}
	}
	if !ev.Referenceable() {
		return &strategy.IndicatorError{Key: key, Reason: ev.Symbol() + " cannot be referenced in a comparison"}
	}
	if _, err := ev.Lookback(strategy.Rule{Key: ref}); err != nil {
		return err
	}
	return nil
}

func (g *Registry) referenceValue(key, ref string, f *series.Frame, day int) (float64, error) {
	ev, err := g.Resolve(ref)
	if err != nil {
		return 0, err
	}
	v, ok := ev.(valuer)
	if !ok || !ev.Referenceable() {
		return 0, &strategy.IndicatorError{Key: key, Reason: ev.Symbol() + " cannot be referenced in a comparison"}
	}
	return v.Value(strategy.Rule{Key: ref}, f, day)
}
