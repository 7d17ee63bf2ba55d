// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/graphforge/internal/ui"
	"github.com/kraklabs/graphforge/pkg/ingestion"
	"github.com/kraklabs/graphforge/pkg/statusbus"
	"github.com/kraklabs/graphforge/pkg/storage"
)

// runIndex executes the 'index' CLI command, ingesting the repository into
// the vector and graph stores (spec §4.8).
//
// Flags:
//   - --embed-workers: Number of parallel embedding workers (overrides config)
//   - --debug: Enable debug logging (default: false)
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//   - --reset: Delete existing local data before indexing
//   - --quiet: Suppress the progress bar
//   - --no-color: Disable colored progress output
//
// Examples:
//
//	cie index                     Ingest the configured repository
//	cie index --embed-workers 16  Use 16 parallel embedding workers
func runIndex(args []string, configPath string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	embedWorkers := fs.Int("embed-workers", 0, "Number of parallel embedding workers (0 = use config)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	reset := fs.Bool("reset", false, "Delete existing local data before indexing")
	quiet := fs.Bool("quiet", false, "Suppress the progress bar")
	noColor := fs.Bool("no-color", false, "Disable colored progress output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie index [options]

Ingests the configured repository (spec §4.8) using .cie/project.yaml.
Data is stored locally in ~/.cie/data/<project_id>/

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *embedWorkers > 0 {
		cfg.Engine.Concurrency.EmbedWorkers = *embedWorkers
	}

	dir, err := dataDir(cfg.ProjectID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *reset {
		if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: cannot reset local data: %v\n", err)
			os.Exit(1)
		}
		logger.Info("data.reset", "path", dir)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create data directory: %v\n", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	repoPath := cfg.RepoPath
	if repoPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
			os.Exit(1)
		}
		repoPath = cwd
	}

	ui.InitColors(*noColor)
	globals := GlobalFlags{Quiet: *quiet, NoColor: *noColor}
	result := runLocalIngest(ctx, logger, cfg, dir, repoPath, globals)
	printResult(result)
}

// runLocalIngest wires the shared vector/graph stores and status bus
// (spec §6.3: one per process) and drives one ingest task through the
// orchestrator (C8), rendering a progress bar off the status bus'
// published stage progress while the ingest runs.
func runLocalIngest(ctx context.Context, logger *slog.Logger, cfg *Config, dir, repoPath string, globals GlobalFlags) *ingestion.IngestResult {
	vectorStore, err := storage.NewChromemVectorStore(dir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open vector store: %v\n", err)
		os.Exit(1)
	}

	graphStore, err := storage.NewSQLiteGraphStore(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open graph store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = graphStore.Close() }()

	bus, err := statusbus.New(cfg.Engine.StatusBusEndpoint, filepath.Join(dir, "statusbus"), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open status bus: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = bus.Close() }()

	orchestrator, err := ingestion.NewOrchestrator(cfg.Engine, vectorStore, graphStore, bus, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create orchestrator: %v\n", err)
		os.Exit(1)
	}

	logger.Info("indexing.starting", "project_id", cfg.ProjectID, "repo_path", repoPath)

	progressCfg := NewProgressConfig(globals)
	bar := NewProgressBar(progressCfg, 100, "Indexing")
	if bar != nil {
		updates, unsubscribe := bus.Subscribe(ctx, cfg.ProjectID)
		defer unsubscribe()
		go func() {
			for ts := range updates {
				bar.Describe(ts.CurrentStage)
				_ = bar.Set(ts.OverallProgress)
			}
		}()
	}

	result, err := orchestrator.Run(ctx, ingestion.IngestRequest{
		TaskID:         cfg.ProjectID,
		RepositoryName: cfg.ProjectID,
		Source: ingestion.RepoSource{
			Type:  "local_path",
			Value: repoPath,
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: indexing failed: %v\n", err)
		os.Exit(1)
	}
	return result
}

// printResult prints the indexing result summary to stdout.
func printResult(result *ingestion.IngestResult) {
	fmt.Println()
	ui.Header("Indexing Complete")
	fmt.Printf("Repository: %s\n", result.RepositoryName)
	fmt.Printf("Status: %s\n", result.Status)
	fmt.Printf("Files Processed: %d\n", result.FilesProcessed)
	fmt.Printf("Chunks Extracted: %d\n", result.ChunksExtracted)
	fmt.Printf("Chunks Embedded: %s\n", ui.CountText(result.ChunksEmbedded))
	fmt.Printf("Patterns Found: %s\n", ui.CountText(result.PatternsFound))

	if result.ChunksEmbeddingFailed > 0 {
		ui.Warningf("Embedding Failures: %d", result.ChunksEmbeddingFailed)
	}
	if result.ParseErrors > 0 {
		ui.Warningf("Parse Errors: %d", result.ParseErrors)
	}
	if result.CodeTextTruncated > 0 {
		ui.Warningf("CodeText Truncated: %d", result.CodeTextTruncated)
	}
	for _, w := range result.Warnings {
		ui.Warning(w)
	}

	if result.Status == "completed" {
		ui.Successf("Finished in %s", result.TotalDuration)
	} else {
		ui.Errorf("Finished in %s with status %q", result.TotalDuration, result.Status)
	}

	homeDir, _ := os.UserHomeDir()
	fmt.Printf("Data stored in: %s\n", ui.DimText(filepath.Join(homeDir, ".cie", "data", result.RepositoryName)))
}
