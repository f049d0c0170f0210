package barsource

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"strategy-backtester/internal/series"
)

const csvDateLayout = "2006-01-02"

// CSVSource reads one <symbol>.csv per symbol from a directory. Files carry
// date,open,high,low,close,volume rows with an optional header.
type CSVSource struct {
	dir string
}

func NewCSV(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

func (s *CSVSource) Bars(_ context.Context, symbol string, from, to time.Time) ([]series.Bar, error) {
	bars, err := LoadCSV(filepath.Join(s.dir, symbol+".csv"))
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// LoadCSV parses a daily bar file. Rows are sorted by date and duplicate
// dates keep the last row. The reader tolerates a UTF-8 BOM.
func LoadCSV(path string) ([]series.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer file.Close()

	bom := unicode.UTF8BOM.NewDecoder()
	r := csv.NewReader(transform.NewReader(bufio.NewReader(file), bom))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var bars []series.Bar
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bars line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 6 {
			return nil, fmt.Errorf("bars line %d: want 6 fields, got %d", line, len(rec))
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}

		date, err := time.ParseInLocation(csvDateLayout, strings.TrimSpace(rec[0]), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bars line %d: bad date %q", line, rec[0])
		}
		prices := make([]decimal.Decimal, 4)
		for i := 0; i < 4; i++ {
			prices[i], err = decimal.NewFromString(strings.TrimSpace(rec[i+1]))
			if err != nil {
				return nil, fmt.Errorf("bars line %d: bad price %q", line, rec[i+1])
			}
		}
		volume, err := strconv.ParseInt(strings.TrimSpace(rec[5]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bars line %d: bad volume %q", line, rec[5])
		}

		bars = append(bars, series.Bar{
			Date:   date,
			Open:   prices[0],
			High:   prices[1],
			Low:    prices[2],
			Close:  prices[3],
			Volume: volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	uniq := bars[:0]
	for _, b := range bars {
		if len(uniq) > 0 && uniq[len(uniq)-1].Date.Equal(b.Date) {
			uniq[len(uniq)-1] = b
			continue
		}
		uniq = append(uniq, b)
	}
	return uniq, nil
}
