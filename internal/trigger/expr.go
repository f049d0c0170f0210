package trigger

import (
	"strconv"
	"strings"

	"strategy-backtester/internal/strategy"
)

// comparison is a parsed rule value: an operator with either a numeric
// operand or a reference to another indicator key, or the bare percent form
// used by stop rules.
type comparison struct {
	Op      string
	Num     float64
	Ref     string
	Percent bool
}

var operators = []string{">=", "<=", "==", ">", "<"}

// parseComparison accepts "{op}{number}", "{op}{indicator-key}" and
// "{number}%". Anything else is an IndicatorError.
func parseComparison(key, raw string) (comparison, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return comparison{}, &strategy.IndicatorError{Key: key, Reason: "empty comparison"}
	}

	if strings.HasSuffix(expr, "%") {
		num, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(expr, "%")), 64)
		if err != nil {
			return comparison{}, &strategy.IndicatorError{Key: key, Reason: "unparsable percent value " + strconv.Quote(raw)}
		}
		return comparison{Num: num, Percent: true}, nil
	}

	for _, op := range operators {
		if !strings.HasPrefix(expr, op) {
			continue
		}
		operand := strings.TrimSpace(strings.TrimPrefix(expr, op))
		if operand == "" {
			return comparison{}, &strategy.IndicatorError{Key: key, Reason: "missing operand in " + strconv.Quote(raw)}
		}
		if num, err := strconv.ParseFloat(operand, 64); err == nil {
			return comparison{Op: op, Num: num}, nil
		}
		return comparison{Op: op, Ref: operand}, nil
	}
	return comparison{}, &strategy.IndicatorError{Key: key, Reason: "no comparison operator in " + strconv.Quote(raw)}
}

// compare applies op to two known values. Callers filter sentinels first.
func compare(lhs float64, op string, rhs float64) bool {
	switch op {
	case ">":
		return lhs > rhs
	case "<":
		return lhs < rhs
	case ">=":
		return lhs >= rhs
	case "<=":
		return lhs <= rhs
	case "==":
		return lhs == rhs
	}
	return false
}
