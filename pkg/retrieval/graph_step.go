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
	"sort"

	"github.com/kraklabs/graphforge/pkg/storage"
)

// retrievedChunk pairs a graph-side ChunkNode with the text and score the
// vector step carries for it. Graph-expansion neighbors have no vector
// score (Score stays 0, Text stays empty) since they were never searched
// directly — their inclusion is justified structurally, not semantically.
type retrievedChunk struct {
	Node  storage.ChunkNode
	Text  string
	Score float64
}

// expansion is the graph step's output (spec §4.10 step 2).
type expansion struct {
	primary   []retrievedChunk
	neighbors []retrievedChunk
	patterns  []storage.PatternNode
}

// graphExpand hydrates each vector hit with its graph node (for importance
// score and line range), then expands one-to-two hops along the
// relationship whitelist. Architecture mode additionally summarizes every
// repository in scope via its recorded pattern findings.
func (r *Retriever) graphExpand(ctx context.Context, hits []VectorHit, mode Mode, repos []string) (*expansion, error) {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}

	nodes, err := r.graphStore.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate vector hits: %w", err)
	}
	byID := make(map[string]storage.ChunkNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	primary := make([]retrievedChunk, 0, len(hits))
	for _, h := range hits {
		node, ok := byID[h.ChunkID]
		if !ok {
			// A vector hit with no matching graph chunk means the two
			// stores have drifted out of parity; skip it rather than cite
			// a chunk with no structural identity.
			continue
		}
		primary = append(primary, retrievedChunk{Node: node, Text: h.Text, Score: h.Score})
	}

	maxHops := r.cfg.MaxGraphHops
	if maxHops <= 0 {
		maxHops = 2
	}
	neighborNodes, err := r.graphStore.Neighbors(ctx, ids, relationshipWhitelist, maxHops)
	if err != nil {
		return nil, fmt.Errorf("expand neighbors: %w", err)
	}
	neighbors := make([]retrievedChunk, 0, len(neighborNodes))
	for _, n := range neighborNodes {
		neighbors = append(neighbors, retrievedChunk{Node: n})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		a, b := neighbors[i].Node, neighbors[j].Node
		if a.RepositoryName != b.RepositoryName {
			return a.RepositoryName < b.RepositoryName
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.ID < b.ID
	})

	var patterns []storage.PatternNode
	if mode == ModeArchitecture {
		for _, repo := range repos {
			found, err := r.graphStore.RepositoryPatterns(ctx, repo)
			if err != nil {
				return nil, fmt.Errorf("repository pattern summary for %s: %w", repo, err)
			}
			patterns = append(patterns, found...)
		}
		sort.Slice(patterns, func(i, j int) bool {
			if patterns[i].Kind != patterns[j].Kind {
				return patterns[i].Kind < patterns[j].Kind
			}
			return patterns[i].Identity < patterns[j].Identity
		})
	}

	return &expansion{primary: primary, neighbors: neighbors, patterns: patterns}, nil
}
