package strategy

import "fmt"

// MalformedStrategyError covers structural problems in a strategy document:
// missing top-level keys, empty rule groups, invalid rule value shapes. It is
// raised while parsing or during the pre-pass, never mid-simulation.
type MalformedStrategyError struct {
	Reason string
}

func (e *MalformedStrategyError) Error() string {
	return "malformed strategy: " + e.Reason
}

// IndicatorError covers rule keys and values that do not resolve to a usable
// indicator: unknown symbols, missing lengths, unparsable comparisons, or a
// reference to an indicator that cannot serve as a comparison operand.
type IndicatorError struct {
	Key    string
	Reason string
}

func (e *IndicatorError) Error() string {
	return fmt.Sprintf("indicator rule %q: %s", e.Key, e.Reason)
}

// InsufficientDataError means the fetched history cannot cover the strategy's
// lookback requirement plus its simulation span.
type InsufficientDataError struct {
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient history: need %d lookback days, have %d", e.Need, e.Have)
}
