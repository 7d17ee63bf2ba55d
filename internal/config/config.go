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

// Package config loads and validates the ingestion and retrieval
// configuration recognized by the CIE-GraphRAG core (spec §6.4).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration recognized by the system.
type Config struct {
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Retry      RetryConfig      `yaml:"retry"`

	VectorStoreEndpoint string `yaml:"vector_store_endpoint"`
	GraphStoreEndpoint  string `yaml:"graph_store_endpoint"`
	StatusBusEndpoint   string `yaml:"status_bus_endpoint"`

	LLMTimeoutSeconds int `yaml:"llm_timeout_seconds"`
}

// IngestionConfig controls parsing, embedding, and chunking behavior.
type IngestionConfig struct {
	// EmbeddingBatchSize (default 8) is validated but not read by the
	// embedding service, which embeds one chunk per provider call.
	EmbeddingBatchSize int `yaml:"embedding_batch_size"`

	// EmbeddingDim is the fixed vector dimension D for this deployment.
	EmbeddingDim int `yaml:"embedding_dim"`

	// EmbeddingModelID identifies the embedding model/provider.
	EmbeddingModelID string `yaml:"embedding_model_id"`

	// EmbeddingProvider selects the backend: mock, nomic, ollama, openai, llamacpp.
	EmbeddingProvider string `yaml:"embedding_provider"`

	MaxFileBytes      int64    `yaml:"max_file_bytes"`
	ChunkMinLines     int      `yaml:"chunk_min_lines"`
	ChunkMaxLines     int      `yaml:"chunk_max_lines"`
	ChunkOverlapLines int      `yaml:"chunk_overlap_lines"`
	IncludeGlobs      []string `yaml:"include_globs"`
	ExcludeGlobs      []string `yaml:"exclude_globs"`

	// ParseMaven/ParseJSP/ParseCORBA gate the business-pattern extractor's
	// per-framework rule sets (spec §6.1 ingest options).
	ParseMaven bool `yaml:"parse_maven"`
	ParseJSP   bool `yaml:"parse_jsp"`
	ParseCORBA bool `yaml:"parse_corba"`
}

// RetrievalConfig controls default hybrid-retrieval parameters (spec §4.10, §6.2).
type RetrievalConfig struct {
	TopKDefault   int     `yaml:"retrieval_top_k_default"`
	MinScoreDefault float64 `yaml:"retrieval_min_score_default"`
	// TokenBudget bounds the assembled prompt fragment's size (spec §4.10 step 3).
	TokenBudget int `yaml:"token_budget"`
	// MaxGraphHops bounds the graph-expansion step (spec §4.10 step 2: one or two hops).
	MaxGraphHops int `yaml:"max_graph_hops"`
}

// ConcurrencyConfig controls worker pool and repository-level parallelism
// (spec §5, §4.8 concurrency contract).
type ConcurrencyConfig struct {
	MaxConcurrentRepos int `yaml:"max_concurrent_repos"`
	ParseWorkers       int `yaml:"parse_workers"`
	EmbedWorkers       int `yaml:"embed_workers"`
}

// RetryConfig controls exponential backoff for store writes (spec §4.8 failure policy).
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

// DefaultConfig returns a config with sensible defaults, mirroring the
// teacher lineage's DefaultConfig but trimmed to this spec's scope: the
// Primary-Hub/gRPC/TLS/replication fields of the vjache-cie fork this was
// gap-filled from are out of scope (spec.md §1 excludes multi-repo hub
// orchestration) and are not carried forward.
func DefaultConfig() Config {
	return Config{
		Ingestion: IngestionConfig{
			EmbeddingBatchSize: 8,
			EmbeddingDim:       768,
			EmbeddingModelID:   "nomic-embed-text",
			EmbeddingProvider:  "mock",
			MaxFileBytes:       1048576,
			ChunkMinLines:      5,
			ChunkMaxLines:      400,
			ChunkOverlapLines:  10,
			ExcludeGlobs: []string{
				".git/**", "node_modules/**", "vendor/**",
				"dist/**", "build/**", "bin/**", "**/bin/**", "out/**",
				".idea/**", ".vscode/**", "*.swp", "*.swo",
				".next/**", ".nuxt/**", ".cie/**",
				"*.o", "*.so", "*.dylib", "*.exe", "*.dll", "*.a",
				"*.pack", "*.pack.gz", "*.pack.old",
				".cache/**", "coverage/**", "tmp/**", ".tmp/**",
				"*.min.js", "*.min.css",
				"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum",
			},
			ParseMaven: true,
			ParseJSP:   true,
			ParseCORBA: true,
		},
		Retrieval: RetrievalConfig{
			TopKDefault:     10,
			MinScoreDefault: 0.2,
			TokenBudget:     6000,
			MaxGraphHops:    2,
		},
		Concurrency: ConcurrencyConfig{
			MaxConcurrentRepos: 2,
			ParseWorkers:       4,
			EmbedWorkers:       8,
		},
		Retry: RetryConfig{
			MaxRetries:     5,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		},
		VectorStoreEndpoint: ".cie/vectors",
		GraphStoreEndpoint:  ".cie/graph.db",
		StatusBusEndpoint:   "",
		LLMTimeoutSeconds:   120,
	}
}

// Load reads a YAML config file and overlays it on DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for the constraints the orchestrator assumes.
// A ConfigInvalid error must surface at admission time, never mid-task
// (spec §7, §9).
func (c Config) Validate() error {
	if c.Ingestion.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", c.Ingestion.EmbeddingDim)
	}
	if c.Ingestion.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("embedding_batch_size must be positive, got %d", c.Ingestion.EmbeddingBatchSize)
	}
	if c.Ingestion.ChunkMinLines <= 0 || c.Ingestion.ChunkMaxLines <= 0 {
		return fmt.Errorf("chunk_min_lines and chunk_max_lines must be positive")
	}
	if c.Ingestion.ChunkMinLines > c.Ingestion.ChunkMaxLines {
		return fmt.Errorf("chunk_min_lines (%d) must not exceed chunk_max_lines (%d)", c.Ingestion.ChunkMinLines, c.Ingestion.ChunkMaxLines)
	}
	if c.Concurrency.MaxConcurrentRepos <= 0 {
		return fmt.Errorf("max_concurrent_repos must be positive, got %d", c.Concurrency.MaxConcurrentRepos)
	}
	if c.Concurrency.ParseWorkers <= 0 || c.Concurrency.EmbedWorkers <= 0 {
		return fmt.Errorf("parse_workers and embed_workers must be positive")
	}
	if c.Retrieval.TopKDefault <= 0 || c.Retrieval.TopKDefault > 50 {
		return fmt.Errorf("retrieval_top_k_default must be in 1..50, got %d", c.Retrieval.TopKDefault)
	}
	if c.Retrieval.MinScoreDefault < 0 || c.Retrieval.MinScoreDefault > 1 {
		return fmt.Errorf("retrieval_min_score_default must be in 0..1, got %f", c.Retrieval.MinScoreDefault)
	}
	return nil
}
