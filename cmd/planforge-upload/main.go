package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude/planforge/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "PlanForge server URL (e.g. https://planforge.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("PLANFORGE_API_KEY"), "admin API key (defaults to PLANFORGE_API_KEY)")
	templatesPath := flag.String("path", "", "path to template directory")
	dryRun := flag.Bool("dry-run", false, "validate but don't send to server")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("planforge-upload", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *templatesPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: planforge-upload -server <URL> -path <template dir> [-api-key KEY] [-dry-run]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if !*dryRun {
		if *serverURL == "" {
			fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
			os.Exit(1)
		}
		if *apiKey == "" {
			fmt.Fprintf(os.Stderr, "Error: -api-key or PLANFORGE_API_KEY is required (or use -dry-run)\n")
			os.Exit(1)
		}
	}

	*serverURL = strings.TrimRight(*serverURL, "/")

	info, err := os.Stat(*templatesPath)
	if err != nil || !info.IsDir() {
		log.Error("template directory not found", "path", *templatesPath)
		os.Exit(1)
	}

	// Open state database
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	stateDir := filepath.Join(homeDir, ".planforge-upload")

	state, err := upload.OpenStateDB(stateDir)
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	// Create client (nil-safe in dry-run mode)
	var client *upload.Client
	if !*dryRun {
		client = upload.NewClient(*serverURL, *apiKey)
	}

	if *dryRun {
		log.Info("DRY RUN mode — templates will be validated but not sent")
	}

	uploader := upload.New(client, state, *templatesPath, *dryRun, log)
	stats, err := uploader.Run(context.Background())
	if err != nil {
		log.Error("upload failed", "error", err)
		printStats(stats)
		os.Exit(1)
	}

	printStats(stats)
	log.Info("upload complete")
}

func printStats(stats *upload.Stats) {
	fmt.Println()
	fmt.Println("=== Upload Summary ===")
	fmt.Printf("  Files total:    %d\n", stats.FilesTotal)
	fmt.Printf("  Files pushed:   %d\n", stats.FilesPushed)
	fmt.Printf("  Files skipped:  %d (unchanged)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:  %d\n", stats.FilesErrored)

	if len(stats.RejectedFiles) > 0 {
		fmt.Printf("\n  Rejected templates (failed validation):\n")
		for _, f := range stats.RejectedFiles {
			fmt.Printf("    - %s\n", f)
		}
	}
	fmt.Println()
}
