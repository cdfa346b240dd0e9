package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/conclavehq/conclave/internal/agent"
	"github.com/conclavehq/conclave/internal/config"
	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/metrics"
	"github.com/conclavehq/conclave/internal/runner"
	"github.com/conclavehq/conclave/internal/schedule"
	"github.com/conclavehq/conclave/internal/tool"
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewSessionID generates a session identifier
func NewSessionID() string {
	return "sess_" + uuid.New().String()[:8]
}

// Server exposes the session control plane over MCP
type Server struct {
	cfg            *config.Config
	pool           *runner.Pool
	factory        *agent.Factory
	toolRegistry   *tool.Registry
	scheduleStore  *schedule.Store
	scheduleRunner *schedule.Runner
	registry       *Registry   // Control-plane tool registry
	mcpServer      *mcp.Server // The underlying MCP server for handling requests
}

// ServerConfig assembles the control plane
type ServerConfig struct {
	Config        *config.Config
	Pool          *runner.Pool
	Factory       *agent.Factory
	ToolRegistry  *tool.Registry
	ScheduleStore *schedule.Store
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) *Server {
	s := &Server{
		cfg:           cfg.Config,
		pool:          cfg.Pool,
		factory:       cfg.Factory,
		toolRegistry:  cfg.ToolRegistry,
		scheduleStore: cfg.ScheduleStore,
		registry:      NewRegistry(),
	}

	// Initialize schedule runner if store is provided
	if s.scheduleStore != nil {
		s.scheduleRunner = schedule.NewRunner(s.scheduleStore, s.executeSchedule)
	}

	// Register all tools with the registry
	s.registerAllTools(s.registry)

	return s
}

// GetRegistry returns the control-plane tool registry
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// Close shuts down the server and cleans up resources
func (s *Server) Close() {
	// Stop schedule runner first (waits for in-flight)
	if s.scheduleRunner != nil {
		s.scheduleRunner.Stop()
	}

	s.pool.StopAll(context.Background(), "server shutdown")
}

// Serve starts the MCP HTTP server
func (s *Server) Serve(addr string) error {
	// Start schedule runner if configured
	if s.scheduleRunner != nil {
		s.scheduleRunner.Start()
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "conclave",
		Version: "0.1.0",
	}, nil)

	// Register tools from registry
	s.registry.RegisterWithMCPServer(s.mcpServer)

	// Create HTTP handler with streamable transport
	// Enable EventStore for SSE stream resumption support
	mcpHandler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, &mcp.StreamableHTTPOptions{
		EventStore: mcp.NewMemoryEventStore(nil),
	})

	// Wrap with request ID and logging middleware
	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		logger.InfoContext(ctx, "http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		mcpHandler.ServeHTTP(w, r)
	})

	mainMux := http.NewServeMux()

	// Health endpoints - no authentication required
	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)

	// Metrics endpoint for Prometheus scraping
	mainMux.Handle("/metrics", metrics.Handler())

	// MCP endpoints, wrapped with metrics middleware
	mainMux.Handle("/mcp", metrics.Middleware(loggingHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(loggingHandler))

	logger.Info("Conclave MCP server listening on %s", addr)
	logger.Info("Health check: http://localhost%s/health", addr)
	logger.Info("Metrics: http://localhost%s/metrics", addr)
	return http.ListenAndServe(addr, mainMux)
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the server can serve requests
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.pool.Len() >= s.poolCapacity() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready","reason":"runner pool at capacity"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) poolCapacity() int {
	if s.cfg != nil && s.cfg.Pool.MaxRunners > 0 {
		return s.cfg.Pool.MaxRunners
	}
	return runner.DefaultMaxRunners
}

// registerAllTools registers all MCP tools with the registry
func (s *Server) registerAllTools(r *Registry) {
	s.registerSessionTools(r)
	s.registerAgentTools(r)
	s.registerScheduleTools(r)
}

// startSession creates an agent of the given type, wraps it in a runner,
// and adds it to the pool
func (s *Server) startSession(agentType, projectDir string, allowedTools []string, maxSteps int) (*runner.Runner, error) {
	sessionID := NewSessionID()

	ag, err := s.factory.New(agentType, sessionID, projectDir)
	if err != nil {
		return nil, err
	}

	allowed := allowedTools
	if allowed == nil {
		allowed = agent.DefaultAllowedTools(agentType)
	}
	if maxSteps <= 0 && s.cfg != nil {
		maxSteps = s.cfg.Agents.MaxSteps
	}

	run := runner.New(runner.Config{
		SessionID:    sessionID,
		Agent:        ag,
		Registry:     s.toolRegistry,
		AllowedTools: allowed,
		MaxSteps:     maxSteps,
		BufferSize:   s.bufferSize(),
	})

	if err := s.pool.Add(run); err != nil {
		return nil, err
	}

	logger.Info("Session %s started: %s agent in %s", sessionID, agentType, projectDir)
	return run, nil
}

func (s *Server) bufferSize() int {
	if s.cfg != nil && s.cfg.Pool.EventBufferLen > 0 {
		return s.cfg.Pool.EventBufferLen
	}
	return 0
}

// executeSchedule is called by the schedule runner for each due
// schedule. It starts a fresh session, drives the prompt to completion,
// and returns the last text the agent produced.
func (s *Server) executeSchedule(ctx context.Context, sched *schedule.Schedule) (string, string, error) {
	run, err := s.startSession(sched.AgentType, sched.ProjectDir, nil, 0)
	if err != nil {
		return "", "", fmt.Errorf("failed to start session for schedule %s: %w", sched.ID, err)
	}
	sessionID := run.SessionID()

	driveCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if err := run.SendMessage(driveCtx, sched.Prompt); err != nil {
		return sessionID, "", err
	}

	output := lastTextOutput(run)

	// Scheduled sessions are one-shot
	_ = run.Stop(context.Background(), "schedule execution complete")
	s.pool.Remove(sessionID)

	return sessionID, output, nil
}

// lastTextOutput returns the content of the most recent respond or
// finished event, or empty when the drive produced neither
func lastTextOutput(run *runner.Runner) string {
	events, err := run.EventsAfter(-1)
	if err != nil {
		return ""
	}
	for i := len(events) - 1; i >= 0; i-- {
		m := events[i].Message
		if m == nil {
			continue
		}
		switch m.Kind {
		case message.KindRespond, message.KindFinished:
			return m.Content
		}
	}
	return ""
}
