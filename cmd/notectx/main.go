package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/notectx/notectx-mcp/internal/config"
	"github.com/notectx/notectx-mcp/internal/mcp"
	"github.com/notectx/notectx-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and build info")
	configPath := flag.String("config", "", "path to config file (default: ./notectx.yaml, then ~/.config/notectx/config.yaml)")
	notesRoot := flag.String("notes", "", "override the note tree root from the config")
	flag.Parse()

	if *showVersion {
		fmt.Printf("NoteCtx MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		os.Exit(0)
	}

	// Log startup info to stderr (stdout reserved for MCP protocol)
	logger := log.New(os.Stderr, "", log.LstdFlags)
	logger.Printf("NoteCtx MCP Server v%s starting...", version)
	logger.Printf("Build Mode: %s, Driver: %s, Vector Extension: %v",
		storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if source != "" {
		logger.Printf("Config: %s", source)
	} else {
		logger.Printf("Config: built-in defaults")
	}

	if *notesRoot != "" {
		cfg.Syncer.NotesRoot = *notesRoot
	}
	if root := os.Getenv("NOTECTX_NOTES_ROOT"); root != "" && *notesRoot == "" {
		cfg.Syncer.NotesRoot = root
	}
	if dbPath := os.Getenv("NOTECTX_DB_PATH"); dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	logger.Printf("Notes root: %s", cfg.Syncer.NotesRoot)
	logger.Printf("Database: %s", cfg.Storage.Path)

	server, err := mcp.NewServer(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create MCP server: %v", err)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Fatalf("Server error: %v", err)
		}
	}

	logger.Println("Server stopped")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	return config.LoadDefault()
}
