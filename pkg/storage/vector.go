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

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// VectorItem is one unit of upsert for the vector store (spec §4.6):
// (id, vector, metadata, text).
type VectorItem struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// VectorHit is one ranked result from Search.
type VectorHit struct {
	ID       string
	Score    float32
	Text     string
	Metadata map[string]string
}

// VectorStore is the contract C6 fulfills: per-repository collections with
// an embedding-function contract, upserted by chunk id.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection string, items []VectorItem) error
	Search(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]VectorHit, error)
	Drop(ctx context.Context, collection string) error
}

// ChromemVectorStore implements VectorStore on an embedded chromem-go
// database, one persistent directory per deployment and one chromem
// collection per repository name.
//
// Collections never use chromem's own embedding function: every vector
// this system stores was already produced by the embedding service (C5),
// so documents are always added with a precomputed Embedding and queried
// with QueryEmbedding.
type ChromemVectorStore struct {
	logger *slog.Logger

	mu   sync.Mutex
	db   *chromem.DB
	dims map[string]int
}

// NewChromemVectorStore opens (or creates) a persistent chromem-go database
// rooted at dataDir/vectors.
func NewChromemVectorStore(dataDir string, logger *slog.Logger) (*ChromemVectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := filepath.Join(dataDir, "vectors")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create vector data dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(root, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}

	return &ChromemVectorStore{
		logger: logger,
		db:     db,
		dims:   make(map[string]int),
	}, nil
}

// noopEmbeddingFunc satisfies chromem's collection constructor without ever
// being invoked: every document and query in this store carries a
// precomputed vector from the embedding service.
func noopEmbeddingFunc(_ context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem embedding function invoked without a precomputed vector for %q", text)
}

// EnsureCollection implements VectorStore. If the collection already exists
// and an earlier EnsureCollection call in this process recorded a different
// dimension for it, it is dropped and recreated — logged as a destructive
// action per spec §4.6. The recorded dimensions live only in memory, so a
// collection loaded from disk whose dimension was not recorded in this
// process is kept as it is, whatever its dimension.
func (s *ChromemVectorStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.db.GetCollection(name, noopEmbeddingFunc)
	if existing != nil {
		if prevDim, ok := s.dims[name]; ok && prevDim != dim && prevDim != 0 {
			s.logger.Warn("vectorstore.collection.dimension_mismatch",
				"collection", name, "previous_dim", prevDim, "new_dim", dim)
			if err := s.db.DeleteCollection(name); err != nil {
				return fmt.Errorf("drop mismatched collection %s: %w", name, err)
			}
			if _, err := s.db.CreateCollection(name, noopEmbeddingFunc, nil); err != nil {
				return fmt.Errorf("recreate collection %s: %w", name, err)
			}
		}
		s.dims[name] = dim
		return nil
	}

	if _, err := s.db.CreateCollection(name, noopEmbeddingFunc, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	s.dims[name] = dim
	return nil
}

// Upsert implements VectorStore. Upsert is idempotent by id: chromem-go's
// AddDocument replaces any document sharing the same ID.
func (s *ChromemVectorStore) Upsert(ctx context.Context, collection string, items []VectorItem) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	col := s.db.GetCollection(collection, noopEmbeddingFunc)
	s.mu.Unlock()
	if col == nil {
		return fmt.Errorf("upsert: collection %s not found (call EnsureCollection first)", collection)
	}

	docs := make([]chromem.Document, 0, len(items))
	for _, item := range items {
		docs = append(docs, chromem.Document{
			ID:        item.ID,
			Content:   item.Text,
			Metadata:  item.Metadata,
			Embedding: item.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, addDocumentsConcurrency); err != nil {
		return fmt.Errorf("upsert %d documents into %s: %w", len(docs), collection, err)
	}
	return nil
}

// Search implements VectorStore.
func (s *ChromemVectorStore) Search(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]VectorHit, error) {
	s.mu.Lock()
	col := s.db.GetCollection(collection, noopEmbeddingFunc)
	s.mu.Unlock()
	if col == nil {
		return nil, nil
	}

	n := k
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}

	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, VectorHit{
			ID:       r.ID,
			Score:    r.Similarity,
			Text:     r.Content,
			Metadata: r.Metadata,
		})
	}
	return hits, nil
}

// Drop implements VectorStore: removes all data for a repository.
func (s *ChromemVectorStore) Drop(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dims, collection)
	if s.db.GetCollection(collection, noopEmbeddingFunc) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("drop collection %s: %w", collection, err)
	}
	return nil
}

// addDocumentsConcurrency bounds how many documents chromem-go indexes
// concurrently per AddDocuments call.
const addDocumentsConcurrency = 4

// metadataInt parses an int metadata value, defaulting to 0.
func metadataInt(meta map[string]string, key string) int {
	v, err := strconv.Atoi(meta[key])
	if err != nil {
		return 0
	}
	return v
}
