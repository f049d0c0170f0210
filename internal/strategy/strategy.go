// Package strategy defines the declarative rule document a backtest runs:
// a start/end window plus buy and sell rule trees. Rule order inside a tree
// is significant (OR branches short-circuit in document order), so parsing
// walks the JSON tokens instead of decoding into a map.
package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"strategy-backtester/internal/indicator"
)

// GroupKey introduces a nested all-of group inside a rule tree.
const GroupKey = "and"

// Strategy is an immutable strategy document.
type Strategy struct {
	Start time.Time
	End   time.Time
	Buy   RuleSet
	Sell  RuleSet
}

// RuleSet is one side of a strategy in document order. Top-level entries are
// OR'd; a GroupKey entry carries a Group whose entries are AND'd.
type RuleSet []Rule

// Rule is a single entry of a rule tree. Exactly one of Expr, Colors, or
// Group is populated, depending on the rule's shape in the document.
type Rule struct {
	Key    string
	Expr   string
	Colors []ColorOffset
	Group  RuleSet
}

// ColorOffset pairs a relative day offset with the candle color expected
// there. Offsets are sorted ascending, offset 0 being the current day.
type ColorOffset struct {
	Offset int
	Color  string
}

// MaxOffset returns the largest offset a color rule references.
func (r Rule) MaxOffset() int {
	max := 0
	for _, c := range r.Colors {
		if c.Offset > max {
			max = c.Offset
		}
	}
	return max
}

// Parse decodes a strategy document, preserving rule order and validating
// structure. Missing start/end/buy/sell or an empty rule group fails with a
// MalformedStrategyError.
func Parse(data []byte) (*Strategy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, &MalformedStrategyError{Reason: "document is not a JSON object"}
	}

	var (
		s                  Strategy
		haveStart, haveEnd bool
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &MalformedStrategyError{Reason: err.Error()}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &MalformedStrategyError{Reason: "non-string top-level key"}
		}
		switch key {
		case "start":
			ts, err := decodeEpoch(dec)
			if err != nil {
				return nil, &MalformedStrategyError{Reason: "start: " + err.Error()}
			}
			s.Start, haveStart = ts, true
		case "end":
			ts, err := decodeEpoch(dec)
			if err != nil {
				return nil, &MalformedStrategyError{Reason: "end: " + err.Error()}
			}
			s.End, haveEnd = ts, true
		case "buy":
			rs, err := parseRuleSet(dec, "buy")
			if err != nil {
				return nil, err
			}
			s.Buy = rs
		case "sell":
			rs, err := parseRuleSet(dec, "sell")
			if err != nil {
				return nil, err
			}
			s.Sell = rs
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, &MalformedStrategyError{Reason: fmt.Sprintf("key %q: %v", key, err)}
			}
		}
	}

	switch {
	case !haveStart:
		return nil, &MalformedStrategyError{Reason: "missing start"}
	case !haveEnd:
		return nil, &MalformedStrategyError{Reason: "missing end"}
	case s.Buy == nil:
		return nil, &MalformedStrategyError{Reason: "missing buy rules"}
	case s.Sell == nil:
		return nil, &MalformedStrategyError{Reason: "missing sell rules"}
	case !s.End.After(s.Start):
		return nil, &MalformedStrategyError{Reason: "end must be after start"}
	}
	return &s, nil
}

func decodeEpoch(dec *json.Decoder) (time.Time, error) {
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return time.Time{}, err
	}
	sec, err := n.Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("not an integer epoch: %v", err)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func parseRuleSet(dec *json.Decoder, side string) (RuleSet, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, &MalformedStrategyError{Reason: side + ": rule set is not an object"}
	}
	return parseRuleSetBody(dec, side, 0)
}

// parseRuleSetBody consumes object entries up to and including the closing
// brace. The open brace has already been consumed.
func parseRuleSetBody(dec *json.Decoder, side string, depth int) (RuleSet, error) {
	if depth > 8 {
		return nil, &MalformedStrategyError{Reason: side + ": rule groups nested too deeply"}
	}
	var rs RuleSet
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &MalformedStrategyError{Reason: side + ": " + err.Error()}
		}
		key, ok := tok.(string)
		if !ok || key == "" {
			return nil, &MalformedStrategyError{Reason: side + ": empty or non-string rule key"}
		}
		rule, err := parseRuleValue(dec, side, key, depth)
		if err != nil {
			return nil, err
		}
		rs = append(rs, rule)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, &MalformedStrategyError{Reason: side + ": " + err.Error()}
	}
	if len(rs) == 0 {
		return nil, &MalformedStrategyError{Reason: side + ": empty rule group"}
	}
	return rs, nil
}

func parseRuleValue(dec *json.Decoder, side, key string, depth int) (Rule, error) {
	tok, err := dec.Token()
	if err != nil {
		return Rule{}, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: %v", side, key, err)}
	}
	switch v := tok.(type) {
	case string:
		if key == GroupKey {
			return Rule{}, &MalformedStrategyError{Reason: fmt.Sprintf("%s: %q must map to a rule group", side, GroupKey)}
		}
		if v == "" {
			return Rule{}, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: empty comparison", side, key)}
		}
		return Rule{Key: key, Expr: v}, nil
	case json.Delim:
		if v != '{' {
			return Rule{}, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: unexpected %v", side, key, v)}
		}
		if key == GroupKey {
			group, err := parseRuleSetBody(dec, side, depth+1)
			if err != nil {
				return Rule{}, err
			}
			return Rule{Key: key, Group: group}, nil
		}
		colors, err := parseColorBody(dec, side, key)
		if err != nil {
			return Rule{}, err
		}
		return Rule{Key: key, Colors: colors}, nil
	default:
		return Rule{}, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: rule value must be a string or object", side, key)}
	}
}

// parseColorBody reads an offset -> color mapping, the only object-valued
// rule besides GroupKey groups.
func parseColorBody(dec *json.Decoder, side, key string) ([]ColorOffset, error) {
	var out []ColorOffset
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: %v", side, key, err)}
		}
		offKey, ok := tok.(string)
		if !ok {
			return nil, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: non-string offset key", side, key)}
		}
		offset, err := strconv.Atoi(offKey)
		if err != nil || offset < 0 {
			return nil, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: offset %q is not a non-negative integer", side, key, offKey)}
		}
		var color string
		if err := dec.Decode(&color); err != nil {
			return nil, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s[%d]: %v", side, key, offset, err)}
		}
		if color != indicator.ColorGreen && color != indicator.ColorRed {
			return nil, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s[%d]: unknown color %q", side, key, offset, color)}
		}
		out = append(out, ColorOffset{Offset: offset, Color: color})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: %v", side, key, err)}
	}
	if len(out) == 0 {
		return nil, &MalformedStrategyError{Reason: fmt.Sprintf("%s.%s: empty color mapping", side, key)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

func expectDelim(dec *json.Decoder, d json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if got, ok := tok.(json.Delim); !ok || got != d {
		return fmt.Errorf("expected %v, got %v", d, tok)
	}
	return nil
}
