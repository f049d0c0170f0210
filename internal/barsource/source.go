// Package barsource supplies historical daily bars to the engine from local
// CSV files or a ClickHouse candle store.
package barsource

import (
	"context"
	"time"

	"strategy-backtester/internal/series"
)

// Source fetches the ordered daily bars for one symbol over a closed date
// range. Implementations must return bars sorted ascending by date with no
// duplicate dates.
type Source interface {
	Bars(ctx context.Context, symbol string, from, to time.Time) ([]series.Bar, error)
}
