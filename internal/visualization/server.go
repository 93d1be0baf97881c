package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/netwave/internal/network"
	"github.com/nvandessel/netwave/internal/simulation"
)

// maxServeSteps bounds the steps a single /api/simulate request may run.
const maxServeSteps = 100_000

// Server serves a scenario's graph and runs simulations on request.
type Server struct {
	scenario   simulation.Scenario
	runner     *simulation.Runner
	logger     *slog.Logger
	listenAddr string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithListenAddr sets the listen address. Defaults to "localhost:0".
func WithListenAddr(addr string) ServerOption {
	return func(s *Server) { s.listenAddr = addr }
}

// WithServerLogger sets the request logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a graph server for sc.
func NewServer(sc simulation.Scenario, runner *simulation.Runner, opts ...ServerOption) *Server {
	s := &Server{
		scenario:   sc,
		runner:     runner,
		logger:     slog.Default(),
		listenAddr: "localhost:0",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = simulation.NewRunner(simulation.WithLogger(s.logger))
	}
	return s
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /graph.dot", s.handleDOT)
	mux.HandleFunc("GET /graph.json", s.handleJSON)
	mux.HandleFunc("GET /api/simulate", s.handleSimulate)
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	s.logger.Info("graph server listening", "addr", s.addr, "scenario", s.scenario.Name)

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleDOT serves the scenario as DOT, after ?steps=N steps if given.
func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	nw, err := s.stateAt(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.Write([]byte(RenderDOT(nw)))
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	nw, err := s.stateAt(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, RenderJSON(nw))
}

// simulateResponse is the /api/simulate payload.
type simulateResponse struct {
	Steps     int       `json:"steps"`
	FinalTime float64   `json:"final_time"`
	Energy    []float64 `json:"energy"`
	Average   []float64 `json:"average"`
	Final     []float64 `json:"final"`
}

// handleSimulate runs the scenario for ?steps=N and returns its traces.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scenarioFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := s.runner.Run(r.Context(), sc, nil)
	if err != nil {
		http.Error(w, "simulation error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, simulateResponse{
		Steps:     summary.Steps,
		FinalTime: summary.FinalTime,
		Energy:    summary.Energy,
		Average:   summary.Average,
		Final:     summary.Final,
	})
}

// stateAt returns the network after ?steps=N steps (0 when absent).
func (s *Server) stateAt(r *http.Request) (*network.Network, error) {
	sc, err := s.scenarioFor(r)
	if err != nil {
		return nil, err
	}
	if r.URL.Query().Get("steps") == "" {
		sc.Steps = 0
	}
	summary, err := s.runner.Run(r.Context(), sc, nil)
	if err != nil {
		return nil, err
	}
	return FinalState(sc, summary)
}

func (s *Server) scenarioFor(r *http.Request) (simulation.Scenario, error) {
	sc := s.scenario
	if v := r.URL.Query().Get("steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxServeSteps {
			return sc, fmt.Errorf("steps must be an integer in [0, %d], got %q", maxServeSteps, v)
		}
		sc.Steps = n
	}
	return sc, nil
}

// FinalState rebuilds sc and installs the summary's final field and clock,
// giving a network that renders the end of the run. Random topologies only
// match the run when sc.Seed is set.
func FinalState(sc simulation.Scenario, summary simulation.Summary) (*network.Network, error) {
	nw, err := sc.Build(nil)
	if err != nil {
		return nil, err
	}
	for i, a := range summary.Final {
		if err := nw.SetAmplitude(i, a); err != nil {
			return nil, err
		}
	}
	nw.Advance(summary.FinalTime - nw.CurrentTime())
	return nw, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
