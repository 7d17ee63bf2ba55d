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

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kraklabs/graphforge/internal/config"
	"github.com/kraklabs/graphforge/pkg/ingestion"
	"github.com/kraklabs/graphforge/pkg/storage"
)

// Mode selects the retrieval strategy (spec §4.10, §6.2).
type Mode string

const (
	ModeCode         Mode = "code"
	ModeHybrid       Mode = "hybrid"
	ModeArchitecture Mode = "architecture"
)

// relationshipWhitelist is the fixed set of edge kinds the graph step may
// cross (spec §4.10 step 2). It deliberately omits CONTAINS_STRUTS_ACTION
// and FORWARDS_TO/CALLS_SERVICE: those are pattern-node edges surfaced
// separately through the architecture-mode summary, not general-purpose
// chunk neighbors.
var relationshipWhitelist = []string{
	storage.RelContains,
	storage.RelHasChunk,
	storage.RelCalls,
	storage.RelImplementsBusinessRule,
	storage.RelDependsOn,
}

// Request is the spec §6.2 retrieval request.
type Request struct {
	Question string
	// RepositoryScope limits the vector step to these repositories; empty
	// means every repository the graph store knows about.
	RepositoryScope []string
	TopK            int
	MinScore        float64
	Mode            Mode
}

// Citation names one chunk the assembled prompt fragment drew on (spec §6.2).
type Citation struct {
	ChunkID        string
	RepositoryName string
	FilePath       string
	StartLine      int
	EndLine        int
	Score          float64
}

// Diagnostics reports per-step latency and counts (spec §4.10 step 4).
type Diagnostics struct {
	VectorStepLatency time.Duration
	GraphStepLatency  time.Duration
	AssemblyLatency   time.Duration

	RepositoriesSearched int
	VectorHits           int
	GraphExpandedChunks  int
	ChunksAssembled      int
	ChunksDroppedByBudget int
	PatternsSummarized   int
}

// Response is the spec §6.2 retrieval response. PromptFragment is the
// `answer_context` the spec names at the external interface boundary; it
// is the prompt_fragment §4.10 step 3/4 produces.
type Response struct {
	PromptFragment string
	Citations      []Citation
	Diagnostics    Diagnostics
}

// Retriever is the Hybrid Retriever (C10).
type Retriever struct {
	vectorStore storage.VectorStore
	graphStore  storage.GraphStore
	embedder    ingestion.EmbeddingProvider
	cfg         config.RetrievalConfig
	logger      *slog.Logger
}

// NewRetriever wires C10 to the shared vector/graph stores and the
// process-wide embedding provider (the same one C5 uses to embed chunks at
// ingest time, so questions and chunks land in the same vector space).
func NewRetriever(vectorStore storage.VectorStore, graphStore storage.GraphStore, embedder ingestion.EmbeddingProvider, cfg config.RetrievalConfig, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		vectorStore: vectorStore,
		graphStore:  graphStore,
		embedder:    embedder,
		cfg:         cfg,
		logger:      logger,
	}
}

// resolveRequest fills in configured defaults for zero-valued fields (spec
// §6.4's retrieval_top_k_default / retrieval_min_score_default).
func (r *Retriever) resolveRequest(req Request) Request {
	if req.TopK <= 0 {
		req.TopK = r.cfg.TopKDefault
	}
	if req.MinScore <= 0 {
		req.MinScore = r.cfg.MinScoreDefault
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	return req
}

// Retrieve runs the full C10 pipeline (spec §4.10): vector step, graph
// step, assembly. Determinism requires identical stores and parameters to
// produce an identical citation set and order; every step here sorts its
// output by a total order (vector hits by score then id, assembled chunks
// by priority then id, graph neighbors by repository, file and id, patterns
// by kind and identity) rather than relying on map or store iteration order.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Response, error) {
	req = r.resolveRequest(req)
	if req.Question == "" {
		return nil, fmt.Errorf("retrieval: question is required")
	}

	repos := req.RepositoryScope
	if len(repos) == 0 {
		all, err := r.graphStore.ListRepositories(ctx)
		if err != nil {
			return nil, fmt.Errorf("list repositories for unscoped retrieval: %w", err)
		}
		for _, rep := range all {
			repos = append(repos, rep.Name)
		}
	}

	vecStart := time.Now()
	hits, err := r.vectorSearch(ctx, req.Question, repos, req.TopK, req.MinScore)
	if err != nil {
		return nil, fmt.Errorf("vector step: %w", err)
	}
	vecLatency := time.Since(vecStart)

	graphStart := time.Now()
	expansion, err := r.graphExpand(ctx, hits, req.Mode, repos)
	if err != nil {
		return nil, fmt.Errorf("graph step: %w", err)
	}
	graphLatency := time.Since(graphStart)

	asmStart := time.Now()
	fragment, citations, dropped := assemble(expansion, r.cfg.TokenBudget)
	asmLatency := time.Since(asmStart)

	if dropped > 0 {
		r.logger.Info("retrieval.assembly.budget_exceeded", "dropped_chunks", dropped, "token_budget", r.cfg.TokenBudget)
	}

	return &Response{
		PromptFragment: fragment,
		Citations:      citations,
		Diagnostics: Diagnostics{
			VectorStepLatency:     vecLatency,
			GraphStepLatency:      graphLatency,
			AssemblyLatency:       asmLatency,
			RepositoriesSearched:  len(repos),
			VectorHits:            len(hits),
			GraphExpandedChunks:   len(expansion.neighbors),
			ChunksAssembled:       len(citations),
			ChunksDroppedByBudget: dropped,
			PatternsSummarized:    len(expansion.patterns),
		},
	}, nil
}
