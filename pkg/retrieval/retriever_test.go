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
	"testing"

	"github.com/kraklabs/graphforge/internal/config"
	"github.com/kraklabs/graphforge/pkg/storage"
)

// fakeVectorStore returns a fixed hit list per collection, ignoring the
// query vector (every test question embeds the same, so exact vectors
// don't matter to these assertions).
type fakeVectorStore struct {
	hits map[string][]storage.VectorHit
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	return nil
}

func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, items []storage.VectorItem) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]storage.VectorHit, error) {
	hits := f.hits[collection]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeVectorStore) Drop(ctx context.Context, collection string) error { return nil }

// fakeGraphStore is a minimal in-memory GraphStore backing the parts of
// the interface the retriever actually calls.
type fakeGraphStore struct {
	storage.GraphStore // nil embed: panics if an unused method is called
	repos              []storage.RepositoryNode
	chunks             map[string]storage.ChunkNode
	edges              []edge
	patterns           map[string][]storage.PatternNode
}

type edge struct {
	src, rel, dst string
}

func (f *fakeGraphStore) ListRepositories(ctx context.Context) ([]storage.RepositoryNode, error) {
	return f.repos, nil
}

func (f *fakeGraphStore) GetChunks(ctx context.Context, ids []string) ([]storage.ChunkNode, error) {
	var out []storage.ChunkNode
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeGraphStore) Neighbors(ctx context.Context, srcIDs []string, rels []string, maxHops int) ([]storage.ChunkNode, error) {
	relSet := make(map[string]bool, len(rels))
	for _, r := range rels {
		relSet[r] = true
	}
	visited := make(map[string]bool, len(srcIDs))
	for _, id := range srcIDs {
		visited[id] = true
	}
	frontier := append([]string(nil), srcIDs...)
	found := make(map[string]bool)

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		frontierSet := make(map[string]bool, len(frontier))
		for _, id := range frontier {
			frontierSet[id] = true
		}
		var next []string
		for _, e := range f.edges {
			if !relSet[e.rel] {
				continue
			}
			var other string
			switch {
			case frontierSet[e.src]:
				other = e.dst
			case frontierSet[e.dst]:
				other = e.src
			default:
				continue
			}
			if !visited[other] {
				visited[other] = true
				found[other] = true
				next = append(next, other)
			}
		}
		frontier = next
	}

	var out []storage.ChunkNode
	for id := range found {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeGraphStore) RepositoryPatterns(ctx context.Context, repositoryName string) ([]storage.PatternNode, error) {
	return f.patterns[repositoryName], nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestRetriever_Retrieve_RanksByScoreAndCites(t *testing.T) {
	vs := &fakeVectorStore{hits: map[string][]storage.VectorHit{
		"chunks__orders": {
			{ID: "c1", Score: 0.9, Text: "func Validate() {}", Metadata: map[string]string{"repository_name": "orders", "file_path": "validate.go"}},
			{ID: "c2", Score: 0.4, Text: "func Forward() {}", Metadata: map[string]string{"repository_name": "orders", "file_path": "forward.go"}},
		},
	}}
	gs := &fakeGraphStore{
		repos: []storage.RepositoryNode{{Name: "orders"}},
		chunks: map[string]storage.ChunkNode{
			"c1": {ID: "c1", RepositoryName: "orders", FilePath: "validate.go", Kind: "function", Name: "Validate", StartLine: 1, EndLine: 10, ImportanceScore: 1},
			"c2": {ID: "c2", RepositoryName: "orders", FilePath: "forward.go", Kind: "function", Name: "Forward", StartLine: 1, EndLine: 5, ImportanceScore: 1},
		},
	}

	r := NewRetriever(vs, gs, fakeEmbedder{}, config.RetrievalConfig{TopKDefault: 10, MinScoreDefault: 0.1, TokenBudget: 6000, MaxGraphHops: 2}, nil)

	resp, err := r.Retrieve(context.Background(), Request{Question: "how is an order validated?"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("len(Citations) = %d, want 2", len(resp.Citations))
	}
	if resp.Citations[0].ChunkID != "c1" {
		t.Errorf("Citations[0].ChunkID = %q, want c1 (higher vector score)", resp.Citations[0].ChunkID)
	}
	if resp.Diagnostics.VectorHits != 2 {
		t.Errorf("Diagnostics.VectorHits = %d, want 2", resp.Diagnostics.VectorHits)
	}
}

func TestRetriever_Retrieve_MinScoreFiltersHits(t *testing.T) {
	vs := &fakeVectorStore{hits: map[string][]storage.VectorHit{
		"chunks__orders": {
			{ID: "c1", Score: 0.9, Text: "kept", Metadata: map[string]string{"repository_name": "orders", "file_path": "a.go"}},
			{ID: "c2", Score: 0.05, Text: "dropped", Metadata: map[string]string{"repository_name": "orders", "file_path": "b.go"}},
		},
	}}
	gs := &fakeGraphStore{
		repos: []storage.RepositoryNode{{Name: "orders"}},
		chunks: map[string]storage.ChunkNode{
			"c1": {ID: "c1", RepositoryName: "orders", FilePath: "a.go", ImportanceScore: 1},
			"c2": {ID: "c2", RepositoryName: "orders", FilePath: "b.go", ImportanceScore: 1},
		},
	}

	r := NewRetriever(vs, gs, fakeEmbedder{}, config.RetrievalConfig{TopKDefault: 10, MinScoreDefault: 0.2, TokenBudget: 6000, MaxGraphHops: 1}, nil)
	resp, err := r.Retrieve(context.Background(), Request{Question: "q", MinScore: 0.2})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].ChunkID != "c1" {
		t.Fatalf("Citations = %+v, want only c1 (c2 below min_score)", resp.Citations)
	}
}

func TestRetriever_Retrieve_GraphExpansionAddsStructuralNeighbors(t *testing.T) {
	vs := &fakeVectorStore{hits: map[string][]storage.VectorHit{
		"chunks__orders": {
			{ID: "c1", Score: 0.8, Text: "func Validate() { callHelper() }", Metadata: map[string]string{"repository_name": "orders", "file_path": "validate.go"}},
		},
	}}
	gs := &fakeGraphStore{
		repos: []storage.RepositoryNode{{Name: "orders"}},
		chunks: map[string]storage.ChunkNode{
			"c1": {ID: "c1", RepositoryName: "orders", FilePath: "validate.go", Kind: "function", Name: "Validate", ImportanceScore: 1},
			"c2": {ID: "c2", RepositoryName: "orders", FilePath: "helper.go", Kind: "function", Name: "callHelper", ImportanceScore: 1},
		},
		edges: []edge{{src: "c1", rel: storage.RelCalls, dst: "c2"}},
	}

	r := NewRetriever(vs, gs, fakeEmbedder{}, config.RetrievalConfig{TopKDefault: 10, MinScoreDefault: 0.1, TokenBudget: 6000, MaxGraphHops: 2}, nil)
	resp, err := r.Retrieve(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if resp.Diagnostics.GraphExpandedChunks != 1 {
		t.Fatalf("GraphExpandedChunks = %d, want 1 (callHelper via CALLS)", resp.Diagnostics.GraphExpandedChunks)
	}
	// The expanded neighbor contributes a structural bullet, not a citation
	// (it was never vector-scored).
	if len(resp.Citations) != 1 {
		t.Fatalf("len(Citations) = %d, want 1 (only the vector hit)", len(resp.Citations))
	}
}

func TestRetriever_Retrieve_RequiresQuestion(t *testing.T) {
	r := NewRetriever(&fakeVectorStore{}, &fakeGraphStore{}, fakeEmbedder{}, config.RetrievalConfig{TopKDefault: 10, MinScoreDefault: 0.1}, nil)
	if _, err := r.Retrieve(context.Background(), Request{}); err == nil {
		t.Fatal("Retrieve() with empty question: want error, got nil")
	}
}
