// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kraklabs/graphforge/pkg/ingestion"
	"github.com/kraklabs/graphforge/pkg/retrieval"
	"github.com/kraklabs/graphforge/pkg/storage"
)

// runQuery executes the 'query' CLI command: spec §6.2's retrieval request
// against the locally ingested vector/graph stores (C10).
//
// Flags:
//   - --repo: repeatable; restricts the search to these repositories
//     (default: every ingested repository)
//   - --top-k: overrides the configured default top_k
//   - --min-score: overrides the configured default min_score
//   - --mode: code, hybrid (default), or architecture
//   - --json: output the full response as JSON
//   - --timeout: query timeout (default 30s)
//
// Examples:
//
//	cie query "how are struts actions forwarded after a failed validation?"
//	cie query --mode architecture --repo legacy-orders "summarize the order flow"
func runQuery(args []string, configPath string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output the full response as JSON")
	timeout := fs.Duration("timeout", 30*time.Second, "Query timeout")
	topK := fs.Int("top-k", 0, "Override the configured default top_k")
	minScore := fs.Float64("min-score", -1, "Override the configured default min_score")
	mode := fs.String("mode", "", "Retrieval mode: code, hybrid, architecture")
	var repos stringSliceFlag
	fs.Var(&repos, "repo", "Restrict the search to this repository (repeatable; default: all ingested repositories)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie query [options] <question>

Runs the hybrid retriever (spec §4.10) against the locally ingested
vector and graph stores and prints the assembled answer context with
citations.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  cie query "how are struts actions forwarded after a failed validation?"
  cie query --mode architecture --repo legacy-orders "summarize the order flow"
  cie query --top-k 20 --min-score 0.3 --json "where is tax computed?"

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: question argument required\n")
		fs.Usage()
		os.Exit(1)
	}
	question := strings.Join(fs.Args(), " ")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		failQuery(*jsonOutput, err)
	}

	dir, err := dataDir(cfg.ProjectID)
	if err != nil {
		failQuery(*jsonOutput, err)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		failQuery(*jsonOutput, fmt.Errorf("project %q not indexed yet; run 'cie index' first", cfg.ProjectID))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	vectorStore, err := storage.NewChromemVectorStore(dir, logger)
	if err != nil {
		failQuery(*jsonOutput, fmt.Errorf("open vector store: %w", err))
	}

	graphStore, err := storage.NewSQLiteGraphStore(dir)
	if err != nil {
		failQuery(*jsonOutput, fmt.Errorf("open graph store: %w", err))
	}
	defer func() { _ = graphStore.Close() }()

	embedder, err := ingestion.CreateEmbeddingProvider(cfg.Engine.Ingestion.EmbeddingProvider, logger)
	if err != nil {
		failQuery(*jsonOutput, fmt.Errorf("create embedding provider: %w", err))
	}

	retriever := retrieval.NewRetriever(vectorStore, graphStore, embedder, cfg.Engine.Retrieval, logger)

	req := retrieval.Request{
		Question:        question,
		RepositoryScope: repos,
		TopK:            *topK,
		Mode:            retrieval.Mode(*mode),
	}
	if *minScore >= 0 {
		req.MinScore = *minScore
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := retriever.Retrieve(ctx, req)
	if err != nil {
		failQuery(*jsonOutput, fmt.Errorf("retrieval failed: %w", err))
	}

	if *jsonOutput {
		outputQueryJSON(resp)
	} else {
		printQueryResult(resp)
	}
}

// stringSliceFlag accumulates repeated -repo flags into a []string.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return strings.Join(*s, ",") }
func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func failQuery(jsonOutput bool, err error) {
	if jsonOutput {
		outputQueryError(err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func outputQueryError(err error) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"error": err.Error()})
}

func outputQueryJSON(resp *retrieval.Response) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"answer_context": resp.PromptFragment,
		"citations":      resp.Citations,
		"diagnostics":    resp.Diagnostics,
	})
}

func printQueryResult(resp *retrieval.Response) {
	fmt.Println(resp.PromptFragment)

	if len(resp.Citations) == 0 {
		fmt.Println("No citations.")
	} else {
		fmt.Println("Citations:")
		for _, c := range resp.Citations {
			fmt.Printf("  [%.3f] %s (%s:%d-%d)\n", c.Score, c.RepositoryName, c.FilePath, c.StartLine, c.EndLine)
		}
	}

	d := resp.Diagnostics
	fmt.Printf("\nRepositories searched: %d | vector hits: %d | graph-expanded: %d | assembled: %d",
		d.RepositoriesSearched, d.VectorHits, d.GraphExpandedChunks, d.ChunksAssembled)
	if d.ChunksDroppedByBudget > 0 {
		fmt.Printf(" | dropped (budget): %d", d.ChunksDroppedByBudget)
	}
	fmt.Println()
	fmt.Printf("Latency: vector %s, graph %s, assembly %s\n", d.VectorStepLatency, d.GraphStepLatency, d.AssemblyLatency)
}
