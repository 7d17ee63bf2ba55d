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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kraklabs/graphforge/internal/ui"
	"github.com/kraklabs/graphforge/pkg/storage"
)

// RepositoryStatus summarizes one ingested repository for JSON output.
type RepositoryStatus struct {
	Name         string    `json:"name"`
	Origin       string    `json:"origin"`
	Branch       string    `json:"branch"`
	LastIngested time.Time `json:"last_ingested_at"`
	Patterns     int       `json:"patterns_found"`
}

// StatusResult represents the project status for JSON output.
type StatusResult struct {
	ProjectID    string             `json:"project_id"`
	DataDir      string             `json:"data_dir"`
	Connected    bool               `json:"connected"`
	Repositories []RepositoryStatus `json:"repositories"`
	Error        string             `json:"error,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, listing ingested
// repositories and their pattern-finding counts from the local graph
// store.
//
// Flags:
//   - --json: Output results as JSON (default: false)
func runStatus(args []string, configPath string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie status [options]

Shows locally ingested repositories.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		failStatus(*jsonOutput, "", err)
	}

	dir, err := dataDir(cfg.ProjectID)
	if err != nil {
		failStatus(*jsonOutput, cfg.ProjectID, err)
	}

	result := &StatusResult{
		ProjectID: cfg.ProjectID,
		DataDir:   dir,
		Timestamp: time.Now(),
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		result.Connected = false
		result.Error = "project not indexed yet; run 'cie index' first"
		if *jsonOutput {
			outputStatusJSON(result)
		} else {
			fmt.Printf("Project '%s' not indexed yet.\n", cfg.ProjectID)
			fmt.Println("Run 'cie index' to index the repository.")
		}
		os.Exit(0)
	}

	graphStore, err := storage.NewSQLiteGraphStore(dir)
	if err != nil {
		result.Error = fmt.Sprintf("cannot open graph store: %v", err)
		if *jsonOutput {
			outputStatusJSON(result)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", result.Error)
		}
		os.Exit(1)
	}
	defer func() { _ = graphStore.Close() }()

	result.Connected = true
	ctx := context.Background()

	repos, err := graphStore.ListRepositories(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("list repositories: %v", err)
	}
	for _, r := range repos {
		patterns, _ := graphStore.RepositoryPatterns(ctx, r.Name)
		result.Repositories = append(result.Repositories, RepositoryStatus{
			Name:         r.Name,
			Origin:       r.Origin,
			Branch:       r.Branch,
			LastIngested: r.LastIngested,
			Patterns:     len(patterns),
		})
	}

	if *jsonOutput {
		outputStatusJSON(result)
	} else {
		printLocalStatus(result)
	}
}

func failStatus(jsonOutput bool, projectID string, err error) {
	if jsonOutput {
		outputStatusJSON(&StatusResult{ProjectID: projectID, Connected: false, Error: err.Error(), Timestamp: time.Now()})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// outputStatusJSON writes the status result as formatted JSON to stdout.
func outputStatusJSON(result *StatusResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// printLocalStatus prints the status result as formatted text to stdout.
func printLocalStatus(result *StatusResult) {
	ui.Header("CIE Project Status")
	fmt.Printf("Project ID: %s\n", result.ProjectID)
	fmt.Printf("Data Dir:   %s\n", ui.DimText(result.DataDir))
	fmt.Println()

	if len(result.Repositories) == 0 {
		fmt.Println("No repositories ingested yet.")
	} else {
		ui.SubHeader("Repositories:")
		for _, r := range result.Repositories {
			fmt.Printf("  %s (%s@%s) - %s pattern(s), last ingested %s\n",
				r.Name, r.Origin, r.Branch, ui.CountText(r.Patterns), r.LastIngested.Format(time.RFC3339))
		}
	}

	if result.Error != "" {
		ui.Warning(result.Error)
	}
}
