// Command backtest runs one strategy over a local CSV bar file and prints
// the resulting statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"strategy-backtester/internal/barsource"
	"strategy-backtester/internal/engine"
	"strategy-backtester/internal/store"
	"strategy-backtester/internal/strategy"
)

func main() {
	strategyPath := flag.String("strategy", "strategy.json", "Path to strategy JSON document")
	csvPath := flag.String("csv", "", "Path to daily bar CSV (date,open,high,low,close,volume)")
	symbol := flag.String("symbol", "UNKNOWN", "Symbol label for the run")
	balanceFlag := flag.String("balance", "10000", "Initial account balance")
	storePath := flag.String("store", "", "Optional SQLite path to persist the result")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("missing -csv")
	}

	raw, err := os.ReadFile(*strategyPath)
	if err != nil {
		log.Fatalf("read strategy: %v", err)
	}
	strat, err := strategy.Parse(raw)
	if err != nil {
		log.Fatalf("parse strategy: %v", err)
	}

	balance, err := decimal.NewFromString(*balanceFlag)
	if err != nil {
		log.Fatalf("parse balance: %v", err)
	}

	bars, err := barsource.LoadCSV(*csvPath)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}
	log.Printf("Loaded %d bars from %s", len(bars), *csvPath)

	eng := engine.New(nil)
	result, err := eng.Run(*symbol, strat, bars, engine.Config{InitialBalance: balance})
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	s := result.Summary
	fmt.Printf("Symbol:            %s\n", result.Symbol)
	fmt.Printf("Tradeable days:    %d\n", result.TradeableDays)
	fmt.Printf("Elapsed:           %s\n", result.Elapsed)
	fmt.Printf("Closed trades:     %d\n", s.TotalTrades)
	fmt.Printf("Effectiveness:     %s%%\n", s.Effectiveness)
	fmt.Printf("Total P/L:         %s (%s%%)\n", s.TotalPL, s.TotalPLPercent)
	fmt.Printf("Average P/L:       %s (%s%%)\n", s.AvgPL, s.AvgPLPercent)
	fmt.Printf("Median P/L:        %s (%s%%)\n", s.MedianPL, s.MedianPLPercent)
	fmt.Printf("P/L std deviation: %s (%s%%)\n", s.StdDevPL, s.StdDevPLPercent)
	fmt.Printf("Average duration:  %s days\n", s.AvgDuration)
	fmt.Printf("Final balance:     %s\n", result.FinalBalance)
	if result.OpenPosition != nil {
		fmt.Printf("Still holding:     %s shares bought at %s (day %d)\n",
			result.OpenPosition.Shares(), result.OpenPosition.BuyPrice(), result.OpenPosition.BuyDay())
	}

	if *storePath != "" {
		db, err := store.Open(*storePath)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer db.Close()
		if err := db.Save(context.Background(), result); err != nil {
			log.Fatalf("persist result: %v", err)
		}
		log.Printf("Result %s persisted to %s", result.JobID, *storePath)
	}
}
