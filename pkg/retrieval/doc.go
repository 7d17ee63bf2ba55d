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

// Package retrieval implements the Hybrid Retriever (C10): it turns a
// natural-language question plus a few scoping parameters into a
// token-budgeted, cited prompt fragment ready to hand to an LLM.
//
// # Pipeline
//
// Retrieve runs three steps in sequence:
//
//  1. vector step (vector_step.go): embed the question once, search every
//     repository collection in scope at k = top_k, discard hits scoring
//     below min_score, merge the per-repository hit lists and rank by
//     score.
//  2. graph step (graph_step.go): expand one or two hops out from each
//     retained hit's chunk id along the relationship whitelist (CONTAINS,
//     HAS_CHUNK, CALLS, IMPLEMENTS_BUSINESS_RULE, DEPENDS_ON). Architecture
//     mode additionally pulls a per-repository pattern-finding summary.
//  3. assembly (assemble.go): order every retained chunk by score ×
//     importance, accumulate chunk text until the configured token budget
//     is spent, and render a prompt fragment citing each included chunk's
//     file_path, repository_name, and score, plus structural bullets for
//     the graph-expansion neighbors.
//
// Every step is a pure function of its inputs and the store contents, so
// identical stores and request parameters always produce the same citation
// set in the same order.
//
// # Quick Start
//
//	retriever := retrieval.NewRetriever(vectorStore, graphStore, embedder, cfg.Retrieval, logger)
//	resp, err := retriever.Retrieve(ctx, retrieval.Request{
//	    Question: "how are struts actions forwarded after a failed validation?",
//	    TopK:     10,
//	    MinScore: 0.2,
//	    Mode:     retrieval.ModeHybrid,
//	})
package retrieval
