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
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Relationship type constants (spec §4.7).
const (
	RelContains               = "CONTAINS"
	RelHasChunk               = "HAS_CHUNK"
	RelDependsOn              = "DEPENDS_ON"
	RelImplementsBusinessRule = "IMPLEMENTS_BUSINESS_RULE"
	RelContainsStrutsAction   = "CONTAINS_STRUTS_ACTION"
	RelCallsService           = "CALLS_SERVICE"
	RelForwardsTo             = "FORWARDS_TO"
	RelCalls                  = "CALLS"
)

// RepositoryNode is the Repository entity (spec §3.1).
type RepositoryNode struct {
	Name         string
	Origin       string
	Branch       string
	CreatedAt    time.Time
	LastIngested time.Time
}

// FileNode is the File entity.
type FileNode struct {
	RepositoryName string
	Path           string
	Language       string
	SizeBytes      int64
	LOC            int
}

// ChunkNode is the graph-side projection of a CodeChunk (spec §3.1): the
// vector store holds the embedding and text, the graph store holds the
// structural identity and relationships.
type ChunkNode struct {
	ID                  string
	RepositoryName      string
	FilePath            string
	Kind                string
	Name                string
	StartLine           int
	EndLine             int
	BusinessDomain      string
	FrameworkPattern    string
	MigrationComplexity string
	ImportanceScore     float64
}

// PatternNode is a framework-pattern finding (StrutsAction, CORBAInterface,
// JSPComponent, BusinessRule, MavenArtifact — spec §3.1). Kind disambiguates
// which; Identity is the canonical name within that kind.
type PatternNode struct {
	Kind                string
	Identity            string
	BusinessPurpose     string
	MigrationComplexity string
	SourceFilePath      string
	SourceChunkID       string
}

// GraphStore is the contract C7 fulfills.
type GraphStore interface {
	EnsureSchema(ctx context.Context) error
	UpsertRepository(ctx context.Context, r RepositoryNode) error
	UpsertFile(ctx context.Context, f FileNode) error
	UpsertChunk(ctx context.Context, c ChunkNode) error
	UpsertPattern(ctx context.Context, p PatternNode) error
	Link(ctx context.Context, srcID, rel, dstID string, props map[string]any) error
	DropRepository(ctx context.Context, repositoryName string) error

	// GetChunks returns the chunk nodes named by ids, in no particular
	// order; an id with no matching chunk is silently omitted. Used by the
	// hybrid retriever (C10) to hydrate vector-hit ids into full nodes.
	GetChunks(ctx context.Context, ids []string) ([]ChunkNode, error)

	// Neighbors returns the distinct chunks reachable from srcIDs by
	// following any edge whose relationship is in rels, for up to maxHops
	// hops, in either edge direction (spec §4.10 step 2's graph expansion).
	Neighbors(ctx context.Context, srcIDs []string, rels []string, maxHops int) ([]ChunkNode, error)

	// RepositoryPatterns returns every pattern finding recorded against a
	// repository's chunks, for the architecture-mode flow summary (spec
	// §4.10 step 2).
	RepositoryPatterns(ctx context.Context, repositoryName string) ([]PatternNode, error)

	// ListRepositories returns every ingested repository, used to resolve
	// an empty retrieval scope (spec §4.10: "search every repository in
	// scope") to a concrete collection list.
	ListRepositories(ctx context.Context) ([]RepositoryNode, error)

	Close() error
}

// SQLiteGraphStore implements GraphStore on an embedded, pure-Go SQLite
// database: one table per node kind plus a single polymorphic edges table,
// enforcing the uniqueness constraints named in spec §4.7.
type SQLiteGraphStore struct {
	db *sql.DB
}

// NewSQLiteGraphStore opens (or creates) the graph database at
// dataDir/graph.db.
func NewSQLiteGraphStore(dataDir string) (*SQLiteGraphStore, error) {
	path := filepath.Join(dataDir, "graph.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	// A single connection keeps writes serialized without needing our own
	// mutex; SQLite itself does not support concurrent writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteGraphStore{db: db}
	if err := store.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema implements GraphStore, creating tables idempotently.
func (s *SQLiteGraphStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		origin TEXT,
		branch TEXT,
		created_at INTEGER NOT NULL,
		last_ingested_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS files (
		repository_name TEXT NOT NULL,
		path TEXT NOT NULL,
		language TEXT,
		size_bytes INTEGER,
		loc INTEGER,
		PRIMARY KEY (repository_name, path),
		FOREIGN KEY (repository_name) REFERENCES repositories(name)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		repository_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT,
		start_line INTEGER,
		end_line INTEGER,
		business_domain TEXT,
		framework_pattern TEXT,
		migration_complexity TEXT,
		importance_score REAL,
		FOREIGN KEY (repository_name, file_path) REFERENCES files(repository_name, path)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_repo ON chunks(repository_name);

	CREATE TABLE IF NOT EXISTS patterns (
		kind TEXT NOT NULL,
		identity TEXT NOT NULL,
		business_purpose TEXT,
		migration_complexity TEXT,
		source_file_path TEXT,
		source_chunk_id TEXT,
		PRIMARY KEY (kind, identity)
	);

	CREATE TABLE IF NOT EXISTS edges (
		src_id TEXT NOT NULL,
		rel TEXT NOT NULL,
		dst_id TEXT NOT NULL,
		props TEXT,
		PRIMARY KEY (src_id, rel, dst_id)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src_id);
	CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure graph schema: %w", err)
	}
	return nil
}

// UpsertRepository implements GraphStore.
func (s *SQLiteGraphStore) UpsertRepository(ctx context.Context, r RepositoryNode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (name, origin, branch, created_at, last_ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			origin = excluded.origin,
			branch = excluded.branch,
			last_ingested_at = excluded.last_ingested_at
	`, r.Name, r.Origin, r.Branch, r.CreatedAt.Unix(), r.LastIngested.Unix())
	if err != nil {
		return fmt.Errorf("upsert repository %s: %w", r.Name, err)
	}
	return nil
}

// UpsertFile implements GraphStore. The owning Repository must already
// exist (spec §3.2: "a Repository node is created before any of its
// chunks are written").
func (s *SQLiteGraphStore) UpsertFile(ctx context.Context, f FileNode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (repository_name, path, language, size_bytes, loc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repository_name, path) DO UPDATE SET
			language = excluded.language,
			size_bytes = excluded.size_bytes,
			loc = excluded.loc
	`, f.RepositoryName, f.Path, f.Language, f.SizeBytes, f.LOC)
	if err != nil {
		return fmt.Errorf("upsert file %s/%s: %w", f.RepositoryName, f.Path, err)
	}
	return nil
}

// UpsertChunk implements GraphStore.
func (s *SQLiteGraphStore) UpsertChunk(ctx context.Context, c ChunkNode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, repository_name, file_path, kind, name, start_line, end_line,
			business_domain, framework_pattern, migration_complexity, importance_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			business_domain = excluded.business_domain,
			framework_pattern = excluded.framework_pattern,
			migration_complexity = excluded.migration_complexity,
			importance_score = excluded.importance_score
	`, c.ID, c.RepositoryName, c.FilePath, c.Kind, c.Name, c.StartLine, c.EndLine,
		c.BusinessDomain, c.FrameworkPattern, c.MigrationComplexity, c.ImportanceScore)
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
	}
	return nil
}

// UpsertPattern implements GraphStore.
func (s *SQLiteGraphStore) UpsertPattern(ctx context.Context, p PatternNode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (kind, identity, business_purpose, migration_complexity, source_file_path, source_chunk_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, identity) DO UPDATE SET
			business_purpose = excluded.business_purpose,
			migration_complexity = excluded.migration_complexity,
			source_file_path = excluded.source_file_path,
			source_chunk_id = excluded.source_chunk_id
	`, p.Kind, p.Identity, p.BusinessPurpose, p.MigrationComplexity, p.SourceFilePath, p.SourceChunkID)
	if err != nil {
		return fmt.Errorf("upsert pattern %s:%s: %w", p.Kind, p.Identity, err)
	}
	return nil
}

// Link implements GraphStore.
func (s *SQLiteGraphStore) Link(ctx context.Context, srcID, rel, dstID string, props map[string]any) error {
	var propsJSON []byte
	if len(props) > 0 {
		var err error
		propsJSON, err = json.Marshal(props)
		if err != nil {
			return fmt.Errorf("marshal edge props: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (src_id, rel, dst_id, props)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(src_id, rel, dst_id) DO UPDATE SET props = excluded.props
	`, srcID, rel, dstID, string(propsJSON))
	if err != nil {
		return fmt.Errorf("link %s -%s-> %s: %w", srcID, rel, dstID, err)
	}
	return nil
}

// DropRepository removes a repository, its files and chunks, and every edge
// touching any of them (spec §3.3: deletion cascades). Pattern nodes are
// keyed by kind and identity rather than by repository and are kept.
func (s *SQLiteGraphStore) DropRepository(ctx context.Context, repositoryName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drop transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Repository and file node ids follow the ingestion writer's
	// "repo:<name>" and "file:<name>/<path>" convention.
	repoID := "repo:" + repositoryName
	filePrefix := "file:" + repositoryName + "/"

	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM edges WHERE src_id IN (SELECT id FROM chunks WHERE repository_name = ?) OR dst_id IN (SELECT id FROM chunks WHERE repository_name = ?)`, []any{repositoryName, repositoryName}},
		{`DELETE FROM edges WHERE src_id = ? OR dst_id = ? OR substr(src_id, 1, length(?)) = ? OR substr(dst_id, 1, length(?)) = ?`, []any{repoID, repoID, filePrefix, filePrefix, filePrefix, filePrefix}},
		{`DELETE FROM chunks WHERE repository_name = ?`, []any{repositoryName}},
		{`DELETE FROM files WHERE repository_name = ?`, []any{repositoryName}},
		{`DELETE FROM repositories WHERE name = ?`, []any{repositoryName}},
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("drop repository %s: %w", repositoryName, err)
		}
	}
	return tx.Commit()
}

// chunkColumns is the column list shared by every query that scans full
// ChunkNode rows, keeping the SELECT and the Scan destinations in sync.
const chunkColumns = `id, repository_name, file_path, kind, name, start_line, end_line,
	business_domain, framework_pattern, migration_complexity, importance_score`

func scanChunks(rows *sql.Rows) ([]ChunkNode, error) {
	defer rows.Close()
	var out []ChunkNode
	for rows.Next() {
		var c ChunkNode
		if err := rows.Scan(&c.ID, &c.RepositoryName, &c.FilePath, &c.Kind, &c.Name,
			&c.StartLine, &c.EndLine, &c.BusinessDomain, &c.FrameworkPattern,
			&c.MigrationComplexity, &c.ImportanceScore); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunks implements GraphStore.
func (s *SQLiteGraphStore) GetChunks(ctx context.Context, ids []string) ([]ChunkNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s FROM chunks WHERE id IN (%s)", chunkColumns, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	return scanChunks(rows)
}

// Neighbors implements GraphStore via breadth-first expansion over the
// edges table, one round trip per hop. A chunk already visited (including
// a starting id) is never re-expanded, so cycles terminate naturally.
func (s *SQLiteGraphStore) Neighbors(ctx context.Context, srcIDs []string, rels []string, maxHops int) ([]ChunkNode, error) {
	if len(srcIDs) == 0 || len(rels) == 0 || maxHops <= 0 {
		return nil, nil
	}

	relPlaceholders := make([]string, len(rels))
	relArgs := make([]any, len(rels))
	for i, r := range rels {
		relPlaceholders[i] = "?"
		relArgs[i] = r
	}
	relIn := strings.Join(relPlaceholders, ",")

	visited := make(map[string]bool, len(srcIDs))
	for _, id := range srcIDs {
		visited[id] = true
	}
	frontier := append([]string(nil), srcIDs...)
	found := make(map[string]bool)

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		idPlaceholders := make([]string, len(frontier))
		idArgs := make([]any, len(frontier))
		for i, id := range frontier {
			idPlaceholders[i] = "?"
			idArgs[i] = id
		}
		idIn := strings.Join(idPlaceholders, ",")

		query := fmt.Sprintf(`SELECT dst_id FROM edges WHERE src_id IN (%s) AND rel IN (%s)
			UNION
			SELECT src_id FROM edges WHERE dst_id IN (%s) AND rel IN (%s)`, idIn, relIn, idIn, relIn)
		args := make([]any, 0, len(idArgs)*2+len(relArgs)*2)
		args = append(args, idArgs...)
		args = append(args, relArgs...)
		args = append(args, idArgs...)
		args = append(args, relArgs...)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("neighbors hop %d: %w", hop, err)
		}

		var next []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan neighbor id: %w", err)
			}
			if !visited[id] {
				visited[id] = true
				found[id] = true
				next = append(next, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		frontier = next
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	return s.GetChunks(ctx, ids)
}

// RepositoryPatterns implements GraphStore.
func (s *SQLiteGraphStore) RepositoryPatterns(ctx context.Context, repositoryName string) ([]PatternNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.kind, p.identity, p.business_purpose, p.migration_complexity, p.source_file_path, p.source_chunk_id
		FROM patterns p
		JOIN chunks c ON c.id = p.source_chunk_id
		WHERE c.repository_name = ?
	`, repositoryName)
	if err != nil {
		return nil, fmt.Errorf("repository patterns: %w", err)
	}
	defer rows.Close()

	var out []PatternNode
	for rows.Next() {
		var p PatternNode
		if err := rows.Scan(&p.Kind, &p.Identity, &p.BusinessPurpose, &p.MigrationComplexity, &p.SourceFilePath, &p.SourceChunkID); err != nil {
			return nil, fmt.Errorf("scan pattern row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListRepositories implements GraphStore.
func (s *SQLiteGraphStore) ListRepositories(ctx context.Context) ([]RepositoryNode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, origin, branch, created_at, last_ingested_at FROM repositories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []RepositoryNode
	for rows.Next() {
		var r RepositoryNode
		var createdAt, lastIngested int64
		if err := rows.Scan(&r.Name, &r.Origin, &r.Branch, &createdAt, &lastIngested); err != nil {
			return nil, fmt.Errorf("scan repository row: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		r.LastIngested = time.Unix(lastIngested, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close implements GraphStore.
func (s *SQLiteGraphStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one transaction, rolling back if fn returns an
// error and committing otherwise. fn receives the *sql.Tx itself. The
// store's Upsert and Link methods do not use it: each runs as its own
// statement outside any shared transaction.
func (s *SQLiteGraphStore) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
