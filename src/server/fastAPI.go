package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"market-streamer/src/analysis"
	"market-streamer/src/helpers"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// FastAPIServer
// -----------------------------------------------------------------------------

type FastAPIServer struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	MarketData interfaces.IMarketData
	engine     *gin.Engine
	httpServer *http.Server

	// WebSocket clients, owned by the hub goroutine
	clients     map[*Client]struct{}
	broadcast   chan models.MQuote
	register    chan *Client
	unregister  chan *Client
	resubscribe chan *Client
	done        chan struct{}
	stopOnce    sync.Once

	// Latest quote per symbol, sent to new clients
	latestQuotes map[string]models.MQuote
	connections  int
	stateMutex   sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFastAPIServer(cfg *models.MConfig, md interfaces.IMarketData, log *logger.Logger) *FastAPIServer {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &FastAPIServer{
		Config:       cfg,
		Logger:       log,
		MarketData:   md,
		engine:       gin.New(),
		clients:      make(map[*Client]struct{}),
		broadcast:    make(chan models.MQuote, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		resubscribe:  make(chan *Client),
		done:         make(chan struct{}),
		latestQuotes: make(map[string]models.MQuote),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), corsMiddleware())
	s.setupRoutes()

	// Built here so Stop never races Start over the field.
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// -----------------------------------------------------------------------------

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *FastAPIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FastAPIServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/bars/:symbol", s.getBars)
	api.GET("/quotes/:symbol", s.getQuotes)
	api.GET("/symbols", s.getSymbols)
	api.GET("/token", s.getToken)
	api.GET("/snapshot/:symbol", s.getSnapshot)
	api.GET("/earnings/:symbol", s.getEarnings)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Engine exposes the router, mainly for httptest.
func (s *FastAPIServer) Engine() *gin.Engine {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start runs the hub and serves HTTP until Stop. Once Stop has been called
// Start returns immediately.
func (s *FastAPIServer) Start() error {
	s.Logger.Info("Starting server on %s", s.httpServer.Addr)

	go s.handleWebsockets()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := s.connections
	tracked := len(s.latestQuotes)
	s.stateMutex.RUnlock()

	resp := gin.H{
		"status":         "ok",
		"connections":    connections,
		"tracked_quotes": tracked,
	}
	if report, ok := s.MarketData.LastReport(); ok {
		resp["last_session"] = report
		if report.Error != "" {
			resp["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------

// getBars: ?lookback=24h&interval=5m, add cached=true to read storage instead of the feed.
func (s *FastAPIServer) getBars(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	lookback, err := durationQuery(c, "lookback", defaultLookback)
	if err != nil {
		badRequest(c, err)
		return
	}
	interval, err := models.ParseTimeframe(c.DefaultQuery("interval", string(models.M5)))
	if err != nil {
		badRequest(c, err)
		return
	}

	if c.Query("cached") == "true" {
		to := time.Now()
		bars, err := s.MarketData.StoredBars(symbol, interval, to.Add(-lookback), to)
		if err != nil {
			s.respondError(c, err, gin.H{"bars": bars})
			return
		}
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "count": len(bars), "bars": bars, "summary": analysis.SummarizeBars(bars)})
		return
	}

	bars, report, err := s.MarketData.HistoricalBars(c.Request.Context(), symbol, lookback, interval)
	if err != nil {
		s.respondError(c, err, gin.H{"bars": bars, "report": report})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": interval,
		"count":    len(bars),
		"bars":     bars,
		"summary":  analysis.SummarizeBars(bars),
		"report":   report,
	})
}

// -----------------------------------------------------------------------------

// getQuotes: ?duration=10s, capped at maxLiveDuration.
func (s *FastAPIServer) getQuotes(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	duration, err := durationQuery(c, "duration", defaultLiveDuration)
	if err != nil {
		badRequest(c, err)
		return
	}
	if duration > maxLiveDuration {
		badRequest(c, fmt.Errorf("duration %s exceeds the %s limit", duration, maxLiveDuration))
		return
	}

	quotes, report, err := s.MarketData.LiveQuotes(c.Request.Context(), symbol, duration)
	if err != nil {
		s.respondError(c, err, gin.H{"quotes": quotes, "report": report})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  symbol,
		"count":   len(quotes),
		"quotes":  quotes,
		"summary": analysis.SummarizeQuotes(quotes),
		"report":  report,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getSymbols(c *gin.Context) {
	symbols, err := s.MarketData.Symbols()
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getToken(c *gin.Context) {
	tok, err := s.MarketData.TokenInfo(c.Request.Context())
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     helpers.MaskToken(tok.Token),
		"url":       tok.URL,
		"issued_at": tok.Timestamp,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getSnapshot(c *gin.Context) {
	snap, err := s.MarketData.MarketSnapshot(c.Request.Context(), strings.ToUpper(c.Param("symbol")))
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *FastAPIServer) getEarnings(c *gin.Context) {
	out, err := s.MarketData.Earnings(c.Request.Context(), strings.ToUpper(c.Param("symbol")))
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}
