// Package store persists finished simulation results in SQLite so runs can
// be listed and compared after the fact.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
	_ "modernc.org/sqlite"

	"strategy-backtester/internal/engine"
	"strategy-backtester/internal/position"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	job_id         TEXT PRIMARY KEY,
	symbol         TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	tradeable_days INTEGER NOT NULL,
	total_trades   INTEGER NOT NULL,
	effectiveness  TEXT NOT NULL,
	total_pl       TEXT NOT NULL,
	final_balance  TEXT NOT NULL,
	elapsed_ms     INTEGER NOT NULL,
	positions      TEXT NOT NULL
);`

// Store wraps the SQLite results database.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// PositionRecord is the serialized form of one closed position.
type PositionRecord struct {
	BuyPrice  string `json:"buy_price"`
	SellPrice string `json:"sell_price"`
	Shares    string `json:"shares"`
	BuyDay    int    `json:"buy_day"`
	SellDay   int    `json:"sell_day"`
}

// ResultRow is one persisted simulation.
type ResultRow struct {
	JobID         string
	Symbol        string
	CreatedAt     time.Time
	TradeableDays int
	TotalTrades   int
	Effectiveness string
	TotalPL       string
	FinalBalance  string
	Elapsed       time.Duration
	Positions     []PositionRecord
}

// Save persists a finished result. The open position, if any, is not part of
// the closed-position record.
func (s *Store) Save(ctx context.Context, r *engine.Result) error {
	records := lo.Map(r.Positions, func(p *position.Position, _ int) PositionRecord {
		return PositionRecord{
			BuyPrice:  p.BuyPrice().String(),
			SellPrice: p.SellPrice().String(),
			Shares:    p.Shares().String(),
			BuyDay:    p.BuyDay(),
			SellDay:   p.SellDay(),
		}
	})
	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("store marshal positions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (job_id, symbol, created_at, tradeable_days, total_trades,
			effectiveness, total_pl, final_balance, elapsed_ms, positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID,
		r.Symbol,
		time.Now().UTC().Format(time.RFC3339),
		r.TradeableDays,
		r.Summary.TotalTrades,
		r.Summary.Effectiveness.String(),
		r.Summary.TotalPL.String(),
		r.FinalBalance.String(),
		r.Elapsed.Milliseconds(),
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("store insert: %w", err)
	}
	return nil
}

// List returns persisted results, newest first.
func (s *Store) List(ctx context.Context) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, symbol, created_at, tradeable_days, total_trades,
			effectiveness, total_pl, final_balance, elapsed_ms, positions
		FROM results ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store list: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var (
			row       ResultRow
			createdAt string
			elapsedMs int64
			blob      string
		)
		if err := rows.Scan(&row.JobID, &row.Symbol, &createdAt, &row.TradeableDays,
			&row.TotalTrades, &row.Effectiveness, &row.TotalPL, &row.FinalBalance,
			&elapsedMs, &blob); err != nil {
			return nil, fmt.Errorf("store scan: %w", err)
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		row.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if err := json.Unmarshal([]byte(blob), &row.Positions); err != nil {
			return nil, fmt.Errorf("store unmarshal positions: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
