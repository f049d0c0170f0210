package strategy

import (
	"errors"
	"testing"
	"time"
)

const validDoc = `{
	"start": 1577836800,
	"end": 1609459200,
	"buy": {
		"SMA20": ">100",
		"and": {
			"RSI": "<30",
			"price": ">10"
		},
		"color": {"1": "red", "0": "green"}
	},
	"sell": {
		"stop-loss": "5%"
	}
}`

func TestParsePreservesRuleOrder(t *testing.T) {
	s, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Start; !got.Equal(time.Unix(1577836800, 0).UTC()) {
		t.Fatalf("start = %v", got)
	}
	keys := make([]string, len(s.Buy))
	for i, r := range s.Buy {
		keys[i] = r.Key
	}
	want := []string{"SMA20", "and", "color"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("buy keys = %v, want %v", keys, want)
		}
	}

	group := s.Buy[1].Group
	if len(group) != 2 || group[0].Key != "RSI" || group[1].Key != "price" {
		t.Fatalf("group = %+v, want RSI then price", group)
	}
	if group[0].Expr != "<30" {
		t.Fatalf("group RSI expr = %q", group[0].Expr)
	}
}

func TestParseColorOffsetsSorted(t *testing.T) {
	s, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatal(err)
	}
	colors := s.Buy[2].Colors
	if len(colors) != 2 {
		t.Fatalf("got %d color offsets, want 2", len(colors))
	}
	if colors[0].Offset != 0 || colors[0].Color != "green" {
		t.Fatalf("colors[0] = %+v", colors[0])
	}
	if colors[1].Offset != 1 || colors[1].Color != "red" {
		t.Fatalf("colors[1] = %+v", colors[1])
	}
	if s.Buy[2].MaxOffset() != 1 {
		t.Fatalf("MaxOffset = %d, want 1", s.Buy[2].MaxOffset())
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not an object", `[1,2]`},
		{"missing start", `{"end":2,"buy":{"price":">1"},"sell":{"price":">1"}}`},
		{"missing end", `{"start":1,"buy":{"price":">1"},"sell":{"price":">1"}}`},
		{"missing buy", `{"start":1,"end":2,"sell":{"price":">1"}}`},
		{"missing sell", `{"start":1,"end":2,"buy":{"price":">1"}}`},
		{"end before start", `{"start":2,"end":1,"buy":{"price":">1"},"sell":{"price":">1"}}`},
		{"empty buy", `{"start":1,"end":2,"buy":{},"sell":{"price":">1"}}`},
		{"empty group", `{"start":1,"end":2,"buy":{"and":{}},"sell":{"price":">1"}}`},
		{"empty comparison", `{"start":1,"end":2,"buy":{"price":""},"sell":{"price":">1"}}`},
		{"group as string", `{"start":1,"end":2,"buy":{"and":">1"},"sell":{"price":">1"}}`},
		{"numeric rule value", `{"start":1,"end":2,"buy":{"price":5},"sell":{"price":">1"}}`},
		{"bad color", `{"start":1,"end":2,"buy":{"color":{"0":"blue"}},"sell":{"price":">1"}}`},
		{"negative offset", `{"start":1,"end":2,"buy":{"color":{"-1":"red"}},"sell":{"price":">1"}}`},
		{"empty colors", `{"start":1,"end":2,"buy":{"color":{}},"sell":{"price":">1"}}`},
		{"non-integer start", `{"start":"x","end":2,"buy":{"price":">1"},"sell":{"price":">1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var malformed *MalformedStrategyError
			if !errors.As(err, &malformed) {
				t.Fatalf("got %v, want MalformedStrategyError", err)
			}
		})
	}
}

func TestParseIgnoresUnknownTopLevelKeys(t *testing.T) {
	doc := `{"start":1,"end":2,"note":"hi","buy":{"price":">1"},"sell":{"price":">1"}}`
	if _, err := Parse([]byte(doc)); err != nil {
		t.Fatal(err)
	}
}
