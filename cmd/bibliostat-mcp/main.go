package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"bibliostat-mcp/pkg/api"
	"bibliostat-mcp/pkg/cache"
	"bibliostat-mcp/pkg/client"
	"bibliostat-mcp/pkg/config"
	"bibliostat-mcp/pkg/logging"
	"bibliostat-mcp/pkg/query"
	"bibliostat-mcp/pkg/terms"

	mcp "github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

// setupSignalHandling configures graceful shutdown
func setupSignalHandling() chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	return sigs
}

// setupLogging initializes the application logger. NewConsoleLogger creates
// the log directory itself.
func setupLogging(cfg config.LoggingConfig) (*logging.ConsoleLogger, error) {
	logger, err := logging.NewConsoleLogger(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Log("Warning: Invalid log level '%s', defaulting to 'info'", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	// Stdout carries MCP protocol frames; logrus shares the console
	// logger's file+stderr writer instead.
	logrus.SetOutput(logger.GetWriter())

	return logger, nil
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	consoleLogger, err := setupLogging(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer consoleLogger.Close()

	consoleLogger.Log("Starting %s v%s", cfg.Server.Name, cfg.Server.Version)
	consoleLogger.Log("Upstream API: %s", cfg.API.BaseURL)

	// Initialize cache if enabled
	var resultCache cache.ObservationCache
	if cfg.Cache.Enabled {
		consoleLogger.Log("Initializing cache with expiry: %v", cfg.Cache.Expiry)
		resultCache = cache.NewResultCache(cfg.Cache.Expiry, log.New(os.Stderr, "[Cache] ", log.LstdFlags))
	} else {
		consoleLogger.Log("Cache is disabled")
		resultCache = cache.NewNoopCache()
	}

	// Resolve the term dictionary path and warm it up so a broken file is
	// reported at startup rather than on the first search.
	termsFile, err := filepath.Abs(cfg.Terms.File)
	if err != nil {
		consoleLogger.Log("Error resolving terms file path: %v", err)
		os.Exit(1)
	}
	dictionary := terms.NewDictionary(termsFile, logrus.StandardLogger())
	if dictionary.Healthy() {
		consoleLogger.Log("Term dictionary loaded: %d terms", len(dictionary.Load()))
	} else {
		consoleLogger.Log("Term dictionary unavailable (%s); term search will be empty", termsFile)
	}

	apiClient := client.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	service := query.NewService(apiClient, dictionary, resultCache, consoleLogger, cfg.API.DefaultLimit)

	// Create MCP server
	mcpServer := api.NewServer(cfg.Server.Name, cfg.Server.Version, service, log.New(os.Stderr, "[MCP] ", log.LstdFlags))

	// Start the MCP server using stdio transport
	serverErr := make(chan error, 1)
	go func() {
		consoleLogger.Log("Starting MCP server with stdio transport")
		if err := mcp.ServeStdio(mcpServer); err != nil {
			serverErr <- fmt.Errorf("error starting MCP server: %w", err)
		}
	}()

	// Set up signal handling
	signals := setupSignalHandling()

	// Wait for server error or interrupt signal
	select {
	case err := <-serverErr:
		consoleLogger.Log("Server error: %v", err)
		os.Exit(1)
	case sig := <-signals:
		consoleLogger.Log("Received signal: %v. Shutting down...", sig)
		// The stdio transport closes when the process exits.
		consoleLogger.Log("Server shutdown complete")
	}
}
