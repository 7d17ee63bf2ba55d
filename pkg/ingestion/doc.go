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

// Package ingestion turns a source repository into indexed, searchable
// CodeChunks: structurally parsed, annotated with business/framework
// patterns, embedded, and written to a vector store and a graph store.
//
// # Pipeline Overview
//
// Orchestrator drives one repository through seven stages, publishing
// progress to a Status Bus after each:
//
//  1. cloning: RepoLoader materializes a working tree from a git URL or
//     local path.
//  2. analyzing: AnalyzeRepository walks the tree and classifies files by
//     language, counting files/LOC and recording skip reasons.
//  3. parsing: a CodeParser (tree-sitter-backed, or the raw-text windowing
//     fallback) splits each file into CodeChunks on semantic boundaries; the
//     business-pattern extractor (pkg/ingestion/patterns) annotates chunks
//     with business domain, framework pattern, and migration complexity as
//     they're produced. A file that fails to parse is skipped with a
//     warning; the stage never fails outright.
//  4. embedding: EmbeddingGenerator embeds chunks one provider call per
//     chunk (no mini-batches). A chunk that keeps failing after its retries
//     gets a zero vector and an EmbeddingFailed flag rather than stopping
//     the task.
//  5. storing: chunks and their pattern findings are written to the graph
//     store (structure and relationships) and the vector store (embeddings
//     and metadata) together; a write failure here is stage-fatal after
//     retries are exhausted.
//  6. validating: a cross-store count check flags (but does not fail) a
//     mismatch between chunks written and vectors indexed.
//  7. completed / failed: terminal.
//
// # Quick Start
//
//	orch, err := ingestion.NewOrchestrator(cfg, vectorStore, graphStore, statusBus, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Close()
//
//	result, err := orch.Run(ctx, ingestion.IngestRequest{
//	    TaskID:         "t-1",
//	    RepositoryName: "order-service",
//	    Source:         ingestion.RepoSource{Type: "git_url", Value: "https://example.com/order-service.git"},
//	})
//
// # Key Components
//
// RepoLoader materializes a working tree from a git URL or local path:
//
//	repoLoader := ingestion.NewRepoLoader(logger)
//	result, err := repoLoader.LoadRepository(repoSource, excludeGlobs, maxFileSizeBytes)
//	defer repoLoader.Close()
//
// The CodeParser (tree-sitter, with a raw-text windowing fallback)
// produces ordered CodeChunks per file; pkg/ingestion/patterns layers
// business/framework pattern detection on top for Java, JSP, Struts
// config, CORBA IDL, and Maven POM files.
//
// EmbeddingGenerator produces embeddings concurrently, isolating failures
// per chunk:
//
//	embeddingGen := ingestion.NewEmbeddingGenerator(provider, workers, logger)
//	result, err := embeddingGen.EmbedChunks(ctx, chunks, dimension)
//
// Checkpoint is a standalone per-repository progress record; the status
// bus's on-disk fallback keeps its own task records and does not use it.
//
// # Configuration
//
// Orchestrator reads its defaults from internal/config.Config; per-request
// IngestOptions override individual fields (parse flags, exclude globs,
// max file size) for a single task without touching the shared config.
// Include globs and chunk line bounds are not applied: every non-excluded
// file is parsed, and the parser uses its own fixed chunk sizes.
package ingestion
