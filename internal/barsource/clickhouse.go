package barsource

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"strategy-backtester/internal/series"
)

// ClickHouseConfig locates the daily bar table.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// ClickHouseSource serves bars from a ClickHouse daily candle table.
type ClickHouseSource struct {
	conn  driver.Conn
	table string
}

func NewClickHouse(cfg ClickHouseConfig) (*ClickHouseSource, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "daily_bars"
	}
	return &ClickHouseSource{conn: conn, table: table}, nil
}

func (s *ClickHouseSource) Bars(ctx context.Context, symbol string, from, to time.Time) ([]series.Bar, error) {
	query := fmt.Sprintf(`
		SELECT date, toFloat64(open), toFloat64(high), toFloat64(low), toFloat64(close), toInt64(volume)
		FROM %s
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date`, s.table)

	rows, err := s.conn.Query(ctx, query, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	var bars []series.Bar
	for rows.Next() {
		var (
			date       time.Time
			o, h, l, c float64
			volume     int64
		)
		if err := rows.Scan(&date, &o, &h, &l, &c, &volume); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		bars = append(bars, series.Bar{
			Date:   date.UTC(),
			Open:   decimal.NewFromFloat(o),
			High:   decimal.NewFromFloat(h),
			Low:    decimal.NewFromFloat(l),
			Close:  decimal.NewFromFloat(c),
			Volume: volume,
		})
	}
	return bars, rows.Err()
}

func (s *ClickHouseSource) Close() error {
	return s.conn.Close()
}
