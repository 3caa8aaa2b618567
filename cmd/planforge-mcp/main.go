package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/claude/planforge/internal/config"
	"github.com/claude/planforge/internal/mcp"
	"github.com/claude/planforge/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Speaks MCP over stdio. With -server it proxies a remote PlanForge REST
// API; otherwise it connects to the database named in the config file.
func main() {
	serverURL := flag.String("server", "", "remote PlanForge server URL (uses the REST API instead of a local database)")
	configPath := flag.String("config", "config.yaml", "path to config file (local mode)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("planforge-mcp", Version)
		return
	}

	// stdout carries the protocol, logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var ds mcp.DataSource
	if *serverURL != "" {
		ds = mcp.NewHTTPClient(*serverURL)
		log.Info("remote mode", "server", *serverURL)
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		db, err := storage.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ds = mcp.NewLocal(db, cfg.Engine.BuildWeeks)
		log.Info("local mode", "database", cfg.Database.Name)
	}

	srv := mcp.New(ds, Version, log)
	if err := mcpserver.ServeStdio(srv); err != nil {
		log.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
