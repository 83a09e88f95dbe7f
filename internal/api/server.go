package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategyforge/internal/candleio"
	"github.com/atlas-desktop/strategyforge/internal/config"
	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/evaluator"
	"github.com/atlas-desktop/strategyforge/internal/ga_metrics"
	"github.com/atlas-desktop/strategyforge/internal/islands"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
)

// ServerConfig is the HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	WebSocketPath string
}

// DefaultServerConfig mirrors the Default*Config() shape every package in
// this repo uses.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "localhost",
		Port:          8080,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		WebSocketPath: "/ws",
	}
}

// RunStatus is the lifecycle state of one evolution run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RunState tracks one in-flight or finished `forge evolve`-equivalent run
// started through the API.
type RunState struct {
	ID       string
	Symbol   quote.Symbol
	Status   RunStatus
	Started  time.Time
	Progress islands.GenerationProgress
	Result   []RankedCandidate
	Error    string
	cancel   context.CancelFunc
}

// RankedCandidate is one entry of a completed run's final population,
// mirroring cmd/forge's candidateSummary shape so the HTTP/WS API and the
// CLI's --export report the same fields.
type RankedCandidate struct {
	Rank      int     `json:"rank"`
	ID        string  `json:"id"`
	Signature string  `json:"signature"`
	Fitness   float64 `json:"fitness"`
}

// RunRequest is the POST /api/v1/runs body. ConfigPath, like cmd/forge's
// --config flag, is optional; an empty path loads every Default*Config()
// in the repo unchanged.
type RunRequest struct {
	Symbol     string `json:"symbol"`
	Venue      string `json:"venue"`
	DataDir    string `json:"data_dir"`
	ConfigPath string `json:"config_path"`
	Top        int    `json:"top"`
}

// Server is the HTTP/WebSocket status server for running evolutions: a mux
// router, CORS wrapping, a websocket upgrader, a client hub, and an
// http.Server lifecycle wrapped around RunState, internal/candleio, and
// internal/islands.Driver.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	cfg        ServerConfig
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	upgrader   websocket.Upgrader

	runs map[string]*RunState
}

// NewServer builds a Server. Call Start to begin listening.
func NewServer(logger *zap.Logger, cfg ServerConfig) *Server {
	s := &Server{
		logger: logger,
		cfg:    cfg,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		runs:   make(map[string]*RunState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	go s.hub.Run()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/runs", s.handleStartRun).Methods("POST")
	s.router.HandleFunc("/api/v1/runs/{id}", s.handleGetRun).Methods("GET")
	s.router.HandleFunc("/api/v1/runs/{id}/cancel", s.handleCancelRun).Methods("POST")
	s.router.HandleFunc(s.cfg.WebSocketPath, s.handleWebSocket)
}

// Start starts the HTTP server; it blocks until Stop is called or the
// listener errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server and closes every connected client.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, run := range s.runs {
		if run.cancel != nil {
			run.cancel()
		}
	}
	s.mu.Unlock()

	s.hub.mu.Lock()
	for client := range s.hub.clients {
		client.conn.Close()
	}
	s.hub.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// handleStartRun launches a new evolve-equivalent run in the background,
// loading config.Config via internal/config.Load and candles via
// internal/candleio, the same pipeline cmd/forge's "evolve" verb drives.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if req.DataDir == "" {
		req.DataDir = "./data"
	}
	if req.Top <= 0 {
		req.Top = 10
	}

	cfg, err := config.Load(req.ConfigPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("loading config: %v", err), http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	symbol := quote.Symbol{Ticker: req.Symbol, Venue: req.Venue}
	ctx, cancel := context.WithCancel(context.Background())
	run := &RunState{ID: id, Symbol: symbol, Status: RunRunning, Started: time.Now(), cancel: cancel}

	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()

	go s.runEvolution(ctx, run, cfg, req)

	json.NewEncoder(w).Encode(map[string]any{
		"id":      id,
		"status":  run.Status,
		"started": run.Started.Unix(),
	})
}

func (s *Server) runEvolution(ctx context.Context, run *RunState, cfg config.Config, req RunRequest) {
	tfs := append([]quote.TimeFrame{cfg.Discovery.BaseTimeframe}, cfg.Discovery.AdditionalTimeframes...)
	loader := candleio.NewFileStore(s.logger, req.DataDir)
	frames, err := candleio.LoadAll(ctx, loader, run.Symbol, tfs, time.Time{}, time.Time{})
	if err != nil {
		s.failRun(run, err)
		return
	}

	builder := discovery.NewBuilder(cfg.Discovery)
	manager := islands.NewManager(cfg.Islands, cfg.Genetic, cfg.Discovery, builder)
	eval := evaluator.NewEvaluator(s.logger, cfg.Evaluator, frames)
	metrics := ga_metrics.NewRegistry(prometheus.NewRegistry())
	driver := islands.NewDriver(s.logger, manager, eval, cfg.Genetic, metrics)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	final, err := driver.Run(ctx, rng, func(p islands.GenerationProgress) {
		s.mu.Lock()
		run.Progress = p
		s.mu.Unlock()
		s.hub.BroadcastGenerationUpdate(run.ID, p)
	})
	if err != nil {
		s.failRun(run, err)
		return
	}

	top := req.Top
	if top > len(final) {
		top = len(final)
	}
	result := make([]RankedCandidate, 0, top)
	for i := 0; i < top; i++ {
		ind := final[i]
		result = append(result, RankedCandidate{Rank: i + 1, ID: ind.Candidate.ID, Signature: ind.Candidate.Signature, Fitness: ind.Fitness})
	}

	s.mu.Lock()
	run.Status = RunCompleted
	run.Result = result
	s.mu.Unlock()

	s.hub.BroadcastRunComplete(run.ID, result)
}

func (s *Server) failRun(run *RunState, err error) {
	s.mu.Lock()
	run.Status = RunFailed
	run.Error = err.Error()
	s.mu.Unlock()
	s.logger.Error("evolution run failed", zap.String("run_id", run.ID), zap.Error(err))
	s.hub.BroadcastRunStatus(run.ID, RunFailed)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	json.NewEncoder(w).Encode(map[string]any{
		"id":       run.ID,
		"symbol":   run.Symbol.String(),
		"status":   run.Status,
		"started":  run.Started.Unix(),
		"progress": run.Progress,
		"result":   run.Result,
		"error":    run.Error,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if run.Status != RunRunning {
		http.Error(w, "run not running", http.StatusBadRequest)
		return
	}

	run.cancel()

	s.mu.Lock()
	run.Status = RunCancelled
	s.mu.Unlock()
	s.hub.BroadcastRunStatus(run.ID, RunCancelled)

	json.NewEncoder(w).Encode(map[string]any{"id": id, "status": RunCancelled})
}

// handleWebSocket upgrades the connection and hands it to the Hub's
// Client/ReadPump/WritePump machinery defined in websocket.go.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
