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
)

// VectorHit is one merged, ranked result from the vector step (spec §4.10
// step 1), before graph hydration.
type VectorHit struct {
	ChunkID        string
	RepositoryName string
	FilePath       string
	Text           string
	Score          float64
}

// collectionName mirrors pkg/ingestion's per-repository collection naming
// (spec §6.3: "one collection per repository, named chunks__<repository_name>").
func collectionName(repositoryName string) string {
	return "chunks__" + repositoryName
}

// vectorSearch embeds the question once and searches every repository's
// collection at k = top_k, discarding hits below minScore, then merges and
// ranks the combined set (spec §4.10 step 1).
func (r *Retriever) vectorSearch(ctx context.Context, question string, repos []string, topK int, minScore float64) ([]VectorHit, error) {
	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	var merged []VectorHit
	for _, repo := range repos {
		hits, err := r.vectorStore.Search(ctx, collectionName(repo), vector, topK, nil)
		if err != nil {
			return nil, fmt.Errorf("search repository %s: %w", repo, err)
		}
		for _, h := range hits {
			if float64(h.Score) < minScore {
				continue
			}
			merged = append(merged, VectorHit{
				ChunkID:        h.ID,
				RepositoryName: h.Metadata["repository_name"],
				FilePath:       h.Metadata["file_path"],
				Text:           h.Text,
				Score:          float64(h.Score),
			})
		}
	}

	// Rank by score descending; break ties on chunk id so the merged order
	// is a total order regardless of per-repository search order (spec
	// §4.10's determinism invariant: identical stores+params -> identical
	// citation order).
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ChunkID < merged[j].ChunkID
	})

	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}
