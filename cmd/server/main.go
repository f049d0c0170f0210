// Command server exposes the backtesting engine over HTTP: single and batch
// simulation runs, persisted result listing, and Arrow export of bar windows.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"strategy-backtester/internal/arrowstream"
	"strategy-backtester/internal/barsource"
	"strategy-backtester/internal/config"
	"strategy-backtester/internal/engine"
	"strategy-backtester/internal/position"
	"strategy-backtester/internal/store"
	"strategy-backtester/internal/strategy"
)

type server struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *engine.Engine
	source  barsource.Source
	results *store.Store
	balance decimal.Decimal
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	balance, err := decimal.NewFromString(cfg.Backtest.InitialBalance)
	if err != nil {
		logger.Fatal("parse initial balance", zap.Error(err))
	}

	var source barsource.Source
	switch cfg.Data.Source {
	case "clickhouse":
		ch, err := barsource.NewClickHouse(cfg.Data.ClickHouse)
		if err != nil {
			logger.Fatal("clickhouse source", zap.Error(err))
		}
		defer ch.Close()
		source = ch
	default:
		source = barsource.NewCSV(cfg.Data.CSVDir)
	}

	results, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatal("open result store", zap.Error(err))
	}
	defer results.Close()

	s := &server{
		cfg:     cfg,
		logger:  logger,
		engine:  engine.New(logger),
		source:  source,
		results: results,
		balance: balance,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := router.Group("/api/v1")
	api.POST("/backtest", s.handleBacktest)
	api.POST("/backtest/batch", s.handleBatch)
	api.GET("/results", s.handleResults)
	api.GET("/bars/:symbol", s.handleBars)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func (s *server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

type backtestRequest struct {
	Symbol   string          `json:"symbol" binding:"required"`
	Strategy json.RawMessage `json:"strategy" binding:"required"`
}

type batchRequest struct {
	Symbols  []string        `json:"symbols" binding:"required"`
	Strategy json.RawMessage `json:"strategy" binding:"required"`
}

func (s *server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.runOne(c.Request.Context(), req.Symbol, req.Strategy)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResultDTO(result))
}

// handleBatch fans symbols out over a worker pool. Each simulation owns its
// frame, account and position state, so workers share nothing.
func (s *server) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no symbols"})
		return
	}

	workers := s.cfg.Backtest.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(req.Symbols) {
		workers = len(req.Symbols)
	}

	symbolCh := make(chan string, len(req.Symbols))
	resultCh := make(chan *engine.Result, len(req.Symbols))
	errCh := make(chan error, len(req.Symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range symbolCh {
				result, err := s.runOne(c.Request.Context(), symbol, req.Strategy)
				if err != nil {
					errCh <- err
					continue
				}
				resultCh <- result
			}
		}()
	}
	for _, symbol := range req.Symbols {
		symbolCh <- symbol
	}
	close(symbolCh)
	wg.Wait()
	close(resultCh)
	close(errCh)

	var dtos []resultDTO
	for result := range resultCh {
		dtos = append(dtos, toResultDTO(result))
	}
	var failures []string
	for err := range errCh {
		failures = append(failures, err.Error())
	}
	c.JSON(http.StatusOK, gin.H{"results": dtos, "errors": failures})
}

func (s *server) handleResults(c *gin.Context) {
	rows, err := s.results.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": rows})
}

// handleBars exports a symbol's bar window as an Arrow IPC stream.
func (s *server) handleBars(c *gin.Context) {
	symbol := c.Param("symbol")
	from, err := epochQuery(c, "start")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := epochQuery(c, "end")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bars, err := s.source.Bars(c.Request.Context(), symbol, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	payload, err := arrowstream.EncodeBars(symbol, bars)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", payload)
}

func epochQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, errors.New("missing query parameter " + name)
	}
	var sec int64
	if err := json.Unmarshal([]byte(raw), &sec); err != nil {
		return time.Time{}, errors.New(name + " must be epoch seconds")
	}
	return time.Unix(sec, 0).UTC(), nil
}

func (s *server) runOne(ctx context.Context, symbol string, doc json.RawMessage) (*engine.Result, error) {
	strat, err := strategy.Parse(doc)
	if err != nil {
		return nil, err
	}
	lookback, err := s.engine.RequiredLookback(strat)
	if err != nil {
		return nil, err
	}

	// Trading days, not calendar days: over-fetch to cover weekends and
	// holidays in the lookback span.
	from := strat.Start.AddDate(0, 0, -(lookback*7/5 + 10))
	bars, err := s.source.Bars(ctx, symbol, from, strat.End)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, &strategy.InsufficientDataError{Need: lookback + 1, Have: 0}
	}

	result, err := s.engine.Run(symbol, strat, bars, engine.Config{InitialBalance: s.balance})
	if err != nil {
		return nil, err
	}
	if err := s.results.Save(ctx, result); err != nil {
		s.logger.Error("persist result", zap.String("job_id", result.JobID), zap.Error(err))
	}
	return result, nil
}

func statusFor(err error) int {
	var malformed *strategy.MalformedStrategyError
	var indicator *strategy.IndicatorError
	var insufficient *strategy.InsufficientDataError
	switch {
	case errors.As(err, &malformed), errors.As(err, &indicator):
		return http.StatusBadRequest
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type positionDTO struct {
	BuyPrice  string `json:"buy_price"`
	SellPrice string `json:"sell_price,omitempty"`
	Shares    string `json:"shares"`
	BuyDay    int    `json:"buy_day"`
	SellDay   int    `json:"sell_day"`
	Closed    bool   `json:"closed"`
}

type resultDTO struct {
	JobID         string        `json:"job_id"`
	Symbol        string        `json:"symbol"`
	ElapsedMs     int64         `json:"elapsed_ms"`
	TradeableDays int           `json:"tradeable_days"`
	FinalBalance  string        `json:"final_balance"`
	ProfitLoss    string        `json:"profit_loss"`
	Summary       any           `json:"summary"`
	Positions     []positionDTO `json:"positions"`
	OpenPosition  *positionDTO  `json:"open_position,omitempty"`
}

func toResultDTO(r *engine.Result) resultDTO {
	dto := resultDTO{
		JobID:         r.JobID,
		Symbol:        r.Symbol,
		ElapsedMs:     r.Elapsed.Milliseconds(),
		TradeableDays: r.TradeableDays,
		FinalBalance:  r.FinalBalance.String(),
		ProfitLoss:    r.ProfitLoss.String(),
		Summary:       r.Summary,
		Positions: lo.Map(r.Positions, func(p *position.Position, _ int) positionDTO {
			return toPositionDTO(p)
		}),
	}
	if r.OpenPosition != nil {
		open := toPositionDTO(r.OpenPosition)
		dto.OpenPosition = &open
	}
	return dto
}

func toPositionDTO(p *position.Position) positionDTO {
	dto := positionDTO{
		BuyPrice: p.BuyPrice().String(),
		Shares:   p.Shares().String(),
		BuyDay:   p.BuyDay(),
		Closed:   p.Closed(),
	}
	if p.Closed() {
		dto.SellPrice = p.SellPrice().String()
		dto.SellDay = p.SellDay()
	}
	return dto
}
