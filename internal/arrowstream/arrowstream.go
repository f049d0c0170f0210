// Package arrowstream encodes bar windows as Arrow IPC streams for clients
// that consume columnar data.
package arrowstream

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"strategy-backtester/internal/series"
)

var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "date", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// EncodeBars serializes one symbol's daily bars as a single-record Arrow IPC
// stream. Dates are epoch seconds.
func EncodeBars(symbol string, bars []series.Bar) ([]byte, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("arrowstream: no bars to encode")
	}

	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, barSchema)
	defer builder.Release()

	symbols := builder.Field(0).(*array.StringBuilder)
	dates := builder.Field(1).(*array.Int64Builder)
	opens := builder.Field(2).(*array.Float64Builder)
	highs := builder.Field(3).(*array.Float64Builder)
	lows := builder.Field(4).(*array.Float64Builder)
	closes := builder.Field(5).(*array.Float64Builder)
	volumes := builder.Field(6).(*array.Int64Builder)

	for _, b := range bars {
		symbols.Append(symbol)
		dates.Append(b.Date.Unix())
		opens.Append(b.Open.InexactFloat64())
		highs.Append(b.High.InexactFloat64())
		lows.Append(b.Low.InexactFloat64())
		closes.Append(b.Close.InexactFloat64())
		volumes.Append(b.Volume)
	}

	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(barSchema), ipc.WithAllocator(pool))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("arrowstream: write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("arrowstream: close stream: %w", err)
	}
	return buf.Bytes(), nil
}
