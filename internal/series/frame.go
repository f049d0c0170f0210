// Package series owns the daily bar window a simulation runs over: a fixed
// set of OHLCV columns plus indicator columns appended lazily by triggers.
package series

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"strategy-backtester/internal/indicator"
)

// Well-known column names present in every frame.
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

// Bar is one trading day. Prices stay decimal for money math; the frame keeps
// float64 views of each field for indicator math.
type Bar struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Frame is an ordered columnar window over daily bars. Indicator columns are
// added at most once per name; adding an existing name is a no-op. TrimFrom
// is one-shot and re-indexes day 0 to the simulation's effective start.
type Frame struct {
	bars    []Bar
	colors  []string
	columns map[string][]float64
	names   []string
	trimmed bool
}

func NewFrame(bars []Bar) (*Frame, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("series: empty bar list")
	}
	n := len(bars)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		opens[i] = b.Open.InexactFloat64()
		highs[i] = b.High.InexactFloat64()
		lows[i] = b.Low.InexactFloat64()
		closes[i] = b.Close.InexactFloat64()
		volumes[i] = float64(b.Volume)
	}
	colors, err := indicator.Colors(opens, closes)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		bars:    bars,
		colors:  colors,
		columns: make(map[string][]float64, 8),
	}
	for _, c := range []struct {
		name   string
		values []float64
	}{
		{ColOpen, opens}, {ColHigh, highs}, {ColLow, lows}, {ColClose, closes}, {ColVolume, volumes},
	} {
		f.columns[c.name] = c.values
		f.names = append(f.names, c.name)
	}
	return f, nil
}

func (f *Frame) Len() int { return len(f.bars) }

func (f *Frame) Bar(day int) (Bar, error) {
	if day < 0 || day >= len(f.bars) {
		return Bar{}, fmt.Errorf("series: day %d out of range [0,%d)", day, len(f.bars))
	}
	return f.bars[day], nil
}

func (f *Frame) Color(day int) (string, error) {
	if day < 0 || day >= len(f.colors) {
		return "", fmt.Errorf("series: day %d out of range [0,%d)", day, len(f.colors))
	}
	return f.colors[day], nil
}

// Column returns the backing slice for a column. Callers must not modify it.
func (f *Frame) Column(name string) ([]float64, error) {
	col, ok := f.columns[name]
	if !ok {
		return nil, fmt.Errorf("series: no column %q", name)
	}
	return col, nil
}

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

func (f *Frame) ColumnNames() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

func (f *Frame) Point(name string, day int) (float64, error) {
	col, err := f.Column(name)
	if err != nil {
		return 0, err
	}
	if day < 0 || day >= len(col) {
		return 0, fmt.Errorf("series: day %d out of range [0,%d) for column %q", day, len(col), name)
	}
	return col[day], nil
}

// PointsBack returns count values of a column walking backward from day,
// ordered oldest first: [day-count+1 .. day].
func (f *Frame) PointsBack(name string, day, count int) ([]float64, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("series: non-positive count %d", count)
	}
	if day >= len(col) || day-count+1 < 0 {
		return nil, fmt.Errorf("series: range [%d,%d] out of bounds for column %q (len %d)", day-count+1, day, name, len(col))
	}
	out := make([]float64, count)
	copy(out, col[day-count+1:day+1])
	return out, nil
}

// AddColumn appends a named column. Adding a name that already exists is a
// no-op so indicator columns are computed once per configuration per run.
func (f *Frame) AddColumn(name string, values []float64) error {
	if name == "" {
		return fmt.Errorf("series: empty column name")
	}
	if _, ok := f.columns[name]; ok {
		return nil
	}
	if len(values) != len(f.bars) {
		return fmt.Errorf("series: column %q has %d values, frame has %d days", name, len(values), len(f.bars))
	}
	f.columns[name] = values
	f.names = append(f.names, name)
	return nil
}

// TrimFrom drops all days before start and re-indexes day 0 to start. It may
// be called once per frame; indicator columns keep their post-start values.
func (f *Frame) TrimFrom(start int) error {
	if f.trimmed {
		return fmt.Errorf("series: frame already trimmed")
	}
	if start < 0 || start >= len(f.bars) {
		return fmt.Errorf("series: trim start %d out of range [0,%d)", start, len(f.bars))
	}
	f.bars = f.bars[start:]
	f.colors = f.colors[start:]
	for name, col := range f.columns {
		f.columns[name] = col[start:]
	}
	f.trimmed = true
	return nil
}

// Trimmed reports whether TrimFrom has already run.
func (f *Frame) Trimmed() bool { return f.trimmed }
