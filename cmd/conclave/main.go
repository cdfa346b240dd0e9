package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/conclavehq/conclave/internal/agent"
	"github.com/conclavehq/conclave/internal/config"
	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/mcp"
	"github.com/conclavehq/conclave/internal/provider"
	"github.com/conclavehq/conclave/internal/runner"
	"github.com/conclavehq/conclave/internal/schedule"
	"github.com/conclavehq/conclave/internal/tool"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	configDir := flag.String("config", "", "Directory containing conclave.jsonc (default: ./config, ~/.conclave/config)")
	addrFlag := flag.String("addr", "", "Listen address, overrides config")
	projectDir := flag.String("project", "", "Default project directory for built-in workspace tools")
	flag.Parse()

	if *showVersion {
		fmt.Printf("conclave %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.LoadOrDefault(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	addr := cfg.Server.Address
	if *addrFlag != "" {
		addr = *addrFlag
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	logDir := filepath.Join(dataDir, "logs")

	if err := logger.Init(logDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	// Structured request logging goes through the slog bridge
	if err := logger.InitSlog(logDir, true); err != nil {
		log.Fatalf("Failed to initialize structured logger: %v", err)
	}
	defer func() { _ = logger.CloseSlog() }()

	logger.Println("Conclave - Multi-Agent Orchestration")
	logger.Println("")

	// Provider selection from config, wrapped with rate limiting
	prov, err := buildProvider(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize provider: %v", err)
	}
	prov = provider.NewRateLimited(prov, provider.DefaultRateLimiter())
	logger.Printf("Provider: %s (%s)", prov.Name(), prov.Model())

	usage := provider.NewUsageTracker()

	// Tool registry with the built-in workspace tools
	workDir := *projectDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	registry := tool.NewRegistry()
	tool.RegisterBuiltins(registry, workDir)
	agent.RegisterFinishTask(registry)
	logger.Printf("Registered %d tool(s) for workspace %s", registry.Len(), workDir)

	// Runner pool bounds concurrent sessions
	idleTimeout, err := cfg.IdleTimeout()
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}
	pool := runner.NewPool(cfg.Pool.MaxRunners, idleTimeout)

	factory := &agent.Factory{
		Registry: registry,
		Provider: prov,
		Usage:    usage,
		DebugDir: cfg.DebugDir,
	}

	// Schedule store for recurring agent runs
	scheduleStore, err := schedule.NewStore(dataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize schedule store: %v", err)
	}
	defer func() { _ = scheduleStore.Close() }()

	server := mcp.NewServer(&mcp.ServerConfig{
		Config:        cfg,
		Pool:          pool,
		Factory:       factory,
		ToolRegistry:  registry,
		ScheduleStore: scheduleStore,
	})

	logger.Println("Starting Conclave MCP server...")
	logger.Printf("Server address: http://localhost%s/mcp", addr)
	logger.Println("Use session_*, agent_list, and schedule_* tools to manage agents")
	logger.Println("")

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(addr)
	}()

	select {
	case err := <-serverErr:
		logger.Fatalf("Server error: %v", err)
	case sig := <-shutdownChan:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)

		done := make(chan struct{})
		go func() {
			server.Close()
			close(done)
		}()

		select {
		case <-done:
			logger.Println("Shutdown complete")
		case <-time.After(30 * time.Second):
			logger.Println("Shutdown timed out, exiting")
		}
	}
}

// buildProvider constructs the configured LLM provider
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	pc := cfg.DefaultProviderConfig()
	if pc.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Providers.Default)
	}

	switch cfg.Providers.Default {
	case "openai":
		return provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
		}), nil
	case "glm":
		return provider.NewGLM(pc.APIKey, pc.Model, pc.MaxTokens), nil
	case "anthropic":
		return provider.NewAnthropic(provider.AnthropicConfig{
			APIKey:    pc.APIKey,
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Providers.Default)
	}
}
