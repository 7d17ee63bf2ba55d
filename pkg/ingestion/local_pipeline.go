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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/graphforge/internal/config"
	ingerrors "github.com/kraklabs/graphforge/internal/errors"
	"github.com/kraklabs/graphforge/pkg/ingestion/patterns"
	"github.com/kraklabs/graphforge/pkg/statusbus"
	"github.com/kraklabs/graphforge/pkg/storage"
)

// Orchestrator is the Ingestion Orchestrator (C8, spec §4.8): it drives one
// repository through the queued -> cloning -> analyzing -> parsing ->
// embedding -> storing -> validating -> completed|failed stage sequence,
// publishing progress to the Status Bus at every transition and gating
// overall parallelism with a counting semaphore over max_concurrent_repos.
type Orchestrator struct {
	cfg    config.Config
	logger *slog.Logger

	repoLoader   *RepoLoader
	parser       CodeParser
	embeddingGen *EmbeddingGenerator

	vectorStore storage.VectorStore
	graphStore  storage.GraphStore
	statusBus   statusbus.Bus

	repoSem chan struct{}
}

// NewOrchestrator wires the C8 orchestrator to its store and status-bus
// dependencies. The stores and status bus are constructed once per process
// (spec §6.3: one graph database, one vector-store root, one status-bus
// endpoint) and shared across every task the orchestrator runs.
func NewOrchestrator(cfg config.Config, vectorStore storage.VectorStore, graphStore storage.GraphStore, statusBus statusbus.Bus, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embeddingProvider, err := CreateEmbeddingProvider(cfg.Ingestion.EmbeddingProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	embeddingGen := NewEmbeddingGenerator(embeddingProvider, cfg.Concurrency.EmbedWorkers, logger)
	embeddingGen.SetRetryConfig(cfg.Retry)

	parser := NewTreeSitterParser(logger)

	maxRepos := cfg.Concurrency.MaxConcurrentRepos
	if maxRepos <= 0 {
		maxRepos = 1
	}

	return &Orchestrator{
		cfg:          cfg,
		logger:       logger,
		repoLoader:   NewRepoLoader(logger),
		parser:       parser,
		embeddingGen: embeddingGen,
		vectorStore:  vectorStore,
		graphStore:   graphStore,
		statusBus:    statusBus,
		repoSem:      make(chan struct{}, maxRepos),
	}, nil
}

// Close releases the orchestrator's own resources (temp clone directories).
// The stores and status bus outlive any one orchestrator and are closed by
// whoever constructed them.
func (o *Orchestrator) Close() error {
	return o.repoLoader.Close()
}

// IngestRequest is the logical ingest-trigger contract (spec §6.1). Zero
// valued Options fields fall back to the orchestrator's configured
// defaults.
type IngestRequest struct {
	TaskID         string
	RepositoryName string
	Source         RepoSource
	Options        IngestOptions
}

// IngestOptions mirrors spec §6.1's `options` object. A zero value for any
// field means "use the configured default". IncludeGlobs is not read, and
// ChunkMinLines/ChunkMaxLines are resolved but not passed to the parser.
type IngestOptions struct {
	ParseMaven      *bool
	ParseJSP        *bool
	ParseCORBA      *bool
	IncludeGlobs    []string
	ExcludeGlobs    []string
	MaxFileBytes    int64
	ChunkMinLines   int
	ChunkMaxLines   int
}

// resolved collapses an IngestOptions against the orchestrator's config
// defaults (spec §6.4's ambient configuration).
type resolved struct {
	parseMaven    bool
	parseJSP      bool
	parseCORBA    bool
	excludeGlobs  []string
	maxFileBytes  int64
	chunkMinLines int
	chunkMaxLines int
}

func (o *Orchestrator) resolveOptions(opts IngestOptions) resolved {
	r := resolved{
		parseMaven:    o.cfg.Ingestion.ParseMaven,
		parseJSP:      o.cfg.Ingestion.ParseJSP,
		parseCORBA:    o.cfg.Ingestion.ParseCORBA,
		excludeGlobs:  o.cfg.Ingestion.ExcludeGlobs,
		maxFileBytes:  o.cfg.Ingestion.MaxFileBytes,
		chunkMinLines: o.cfg.Ingestion.ChunkMinLines,
		chunkMaxLines: o.cfg.Ingestion.ChunkMaxLines,
	}
	if opts.ParseMaven != nil {
		r.parseMaven = *opts.ParseMaven
	}
	if opts.ParseJSP != nil {
		r.parseJSP = *opts.ParseJSP
	}
	if opts.ParseCORBA != nil {
		r.parseCORBA = *opts.ParseCORBA
	}
	if len(opts.ExcludeGlobs) > 0 {
		r.excludeGlobs = opts.ExcludeGlobs
	}
	if opts.MaxFileBytes > 0 {
		r.maxFileBytes = opts.MaxFileBytes
	}
	if opts.ChunkMinLines > 0 {
		r.chunkMinLines = opts.ChunkMinLines
	}
	if opts.ChunkMaxLines > 0 {
		r.chunkMaxLines = opts.ChunkMaxLines
	}
	return r
}

// IngestResult summarizes one completed (or failed) ingestion task.
type IngestResult struct {
	TaskID         string
	RepositoryName string
	Status         string // "completed", "completed_with_warnings", "failed"

	FilesProcessed        int
	ChunksExtracted       int
	ChunksEmbedded        int
	ChunksEmbeddingFailed int
	PatternsFound         int
	ParseErrors           int
	CodeTextTruncated     int

	Warnings []string

	TotalDuration time.Duration
}

// collectionName derives the per-repository vector collection name (spec
// §6.3: "one collection per repository, named chunks__<repository_name>").
func collectionName(repositoryName string) string {
	return "chunks__" + repositoryName
}

// Run drives req through every stage of spec §4.8, publishing a Status Bus
// record at each transition. Up to max_concurrent_repos tasks may be
// in-flight; Run blocks on the semaphore (honoring ctx cancellation) until
// a slot is free.
func (o *Orchestrator) Run(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	start := time.Now()
	opts := o.resolveOptions(req.Options)

	status := &taskStatusBuilder{
		bus: o.statusBus,
		ts: statusbus.TaskStatus{
			TaskID:         req.TaskID,
			RepositoryName: req.RepositoryName,
			Status:         statusbus.StatusQueued,
			CurrentStage:   statusbus.StageQueued,
			StartedAt:      start,
		},
	}
	status.publish(ctx, statusbus.StageQueued, 0)

	select {
	case o.repoSem <- struct{}{}:
	case <-ctx.Done():
		return o.cancelled(ctx, status, statusbus.StageQueued, start)
	}
	defer func() { <-o.repoSem }()

	result, err := o.runStages(ctx, req, opts, status, start)
	recordTotalDuration(time.Since(start).Seconds())
	return result, err
}

// runStages is Run's body, split out so the semaphore-acquire/release in
// Run stays a single, easily-audited defer pair.
func (o *Orchestrator) runStages(ctx context.Context, req IngestRequest, opts resolved, status *taskStatusBuilder, start time.Time) (*IngestResult, error) {
	status.ts.Status = statusbus.StatusRunning

	// --- cloning (0-20) ---
	status.publish(ctx, statusbus.StageCloning, 0)
	if err := ctxErr(ctx); err != nil {
		return o.cancelled(ctx, status, statusbus.StageCloning, start)
	}
	loadResult, err := o.repoLoader.LoadRepository(req.Source, opts.excludeGlobs, opts.maxFileBytes)
	if err != nil {
		kerr := ingerrors.NewSourceUnavailableError("repository unavailable", err.Error(), err)
		return o.fatal(ctx, status, statusbus.StageCloning, start, kerr)
	}
	sort.Slice(loadResult.Files, func(i, j int) bool { return loadResult.Files[i].Path < loadResult.Files[j].Path })
	status.publish(ctx, statusbus.StageCloning, 20)

	// --- analyzing (20-40) ---
	if err := ctxErr(ctx); err != nil {
		return o.cancelled(ctx, status, statusbus.StageAnalyzing, start)
	}
	summary := AnalyzeRepository(loadResult)
	status.ts.CurrentStageProgress = statusbus.StageProgress{TotalItems: summary.FileCount}
	status.publish(ctx, statusbus.StageAnalyzing, 40)

	// --- parsing (40-80) ---
	parseWorkers := o.cfg.Concurrency.ParseWorkers
	if parseWorkers <= 0 {
		parseWorkers = 4
	}
	o.parser.ResetTruncatedCount()
	chunks, parseErrors, parseWarnings, err := o.parseAndAnnotate(ctx, loadResult.Files, req.RepositoryName, parseWorkers, opts, status)
	if err != nil {
		return o.cancelled(ctx, status, statusbus.StageParsing, start)
	}
	recordChunksParsed(len(chunks))
	truncated := o.parser.GetTruncatedCount()
	recordCodeTextTruncated(truncated)
	status.ts.Warnings = append(status.ts.Warnings, parseWarnings...)
	status.publish(ctx, statusbus.StageParsing, 80)

	// --- embedding (80-85) ---
	if err := ctxErr(ctx); err != nil {
		return o.cancelled(ctx, status, statusbus.StageEmbedding, start)
	}
	embedResult, err := o.embeddingGen.EmbedChunks(ctx, chunks, o.cfg.Ingestion.EmbeddingDim)
	if err != nil {
		kerr := ingerrors.NewEmbeddingBatchErrorKind("embedding generation failed", err.Error(), err)
		return o.fatal(ctx, status, statusbus.StageEmbedding, start, kerr)
	}
	chunks = embedResult.Chunks
	recordChunksEmbedded(len(chunks)-embedResult.ErrorCount, embedResult.ErrorCount)
	if embedResult.ErrorCount > 0 {
		status.ts.Warnings = append(status.ts.Warnings, fmt.Sprintf("%d chunks substituted a zero-vector after embedding retries were exhausted", embedResult.ErrorCount))
	}
	status.publish(ctx, statusbus.StageEmbedding, 85)

	// --- storing (85-95) ---
	if err := ctxErr(ctx); err != nil {
		return o.cancelled(ctx, status, statusbus.StageStoring, start)
	}
	patternsFound, err := o.store(ctx, req.RepositoryName, req.Source, loadResult, chunks, status.findings)
	if err != nil {
		kerr, ok := err.(*ingerrors.KindedError)
		if !ok {
			kerr = ingerrors.NewGraphStoreWriteErrorKind("store write failed", err.Error(), err)
		}
		return o.fatal(ctx, status, statusbus.StageStoring, start, kerr)
	}
	status.publish(ctx, statusbus.StageStoring, 95)

	// --- validating (95-100) ---
	completedWithWarnings := false
	if count, cerr := o.countVectors(ctx, collectionName(req.RepositoryName)); cerr == nil && count != len(chunks) {
		completedWithWarnings = true
		status.ts.Warnings = append(status.ts.Warnings, fmt.Sprintf("cross-store parity mismatch: %d vectors vs %d chunks", count, len(chunks)))
	}
	status.publish(ctx, statusbus.StageValidating, 100)

	// --- completed ---
	status.ts.Status = statusbus.StatusCompleted
	now := time.Now()
	status.ts.CompletedAt = &now
	status.publish(ctx, statusbus.StageCompleted, 100)

	resultStatus := "completed"
	if completedWithWarnings || parseErrors > 0 || embedResult.ErrorCount > 0 {
		resultStatus = "completed_with_warnings"
	}

	return &IngestResult{
		TaskID:                req.TaskID,
		RepositoryName:        req.RepositoryName,
		Status:                resultStatus,
		FilesProcessed:        len(loadResult.Files),
		ChunksExtracted:       len(chunks),
		ChunksEmbedded:        len(chunks) - embedResult.ErrorCount,
		ChunksEmbeddingFailed: embedResult.ErrorCount,
		PatternsFound:         patternsFound,
		ParseErrors:           parseErrors,
		CodeTextTruncated:     truncated,
		Warnings:              status.ts.Warnings,
		TotalDuration:         time.Since(start),
	}, nil
}

// countVectors is a small helper over Search used only to approximate the
// validating stage's cross-store parity check (spec §8 property 4); a
// dedicated Count operation isn't part of the VectorStore contract, so this
// asks for an oversized k and counts what comes back.
func (o *Orchestrator) countVectors(ctx context.Context, collection string) (int, error) {
	probe := make([]float32, o.cfg.Ingestion.EmbeddingDim)
	hits, err := o.vectorStore.Search(ctx, collection, probe, 1<<30, nil)
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

// parsedFile holds one file's parsed chunks together with the
// patterns.Finding(s) the business-pattern extractor derived from them.
type parsedFile struct {
	chunks   []CodeChunk
	findings []patterns.Finding
	warnings []string
	err      error
	path     string
}

// parseAndAnnotate runs the structural parser (C3) and business-pattern
// extractor (C4) over every file with a bounded worker pool, honoring
// per-file parser-error isolation (spec §4.8 failure policy: "per-file
// parser errors -> warning, skip file, continue").
func (o *Orchestrator) parseAndAnnotate(ctx context.Context, files []FileInfo, repositoryName string, workers int, opts resolved, status *taskStatusBuilder) ([]CodeChunk, int, []string, error) {
	if len(files) == 0 {
		return nil, 0, nil, nil
	}

	jobs := make(chan int, len(files))
	results := make([]parsedFile, len(files))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				fileInfo := files[i]
				pr, err := o.parser.ParseFile(fileInfo, repositoryName)
				pf := parsedFile{path: fileInfo.Path}
				if err != nil {
					pf.err = err
				} else {
					pf.chunks = pr.Chunks
					pf.warnings = pr.Warnings
					for i := range pf.chunks {
						findings := o.annotateChunk(&pf.chunks[i], opts)
						pf.findings = append(pf.findings, findings...)
					}
				}
				results[i] = pf
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	status.ts.CurrentStageProgress.ProcessedItems = len(files)
	status.publish(ctx, statusbus.StageParsing, 80)

	if ctxErr(ctx) != nil {
		return nil, 0, nil, ctx.Err()
	}

	var allChunks []CodeChunk
	var warnings []string
	errCount := 0
	for _, pf := range results {
		if pf.err != nil {
			errCount++
			recordParseError()
			warnings = append(warnings, fmt.Sprintf("parser error for %s: %v (file skipped)", pf.path, pf.err))
			continue
		}
		allChunks = append(allChunks, pf.chunks...)
		warnings = append(warnings, pf.warnings...)
		if len(pf.findings) > 0 {
			status.findings = append(status.findings, pf.findings...)
		}
	}
	return allChunks, errCount, warnings, nil
}

// annotateChunk routes a chunk to the business-pattern extractor (C4) rule
// matching its file kind / language, writing back the ChunkAnnotation onto
// the chunk and returning any Findings it produced (spec §4.4).
func (o *Orchestrator) annotateChunk(chunk *CodeChunk, opts resolved) []patterns.Finding {
	lowerPath := strings.ToLower(chunk.FilePath)

	switch {
	case chunk.Kind == ChunkKindJSPScriptlet:
		ann := patterns.AnnotateJSPScriptlet(chunk.Name, chunk.Text)
		applyAnnotation(chunk, ann)
		return nil

	case opts.parseJSP && chunk.Language == "jsp" && chunk.Kind == ChunkKindXMLBlock:
		f, ok := patterns.AnalyzeJSPMarkup(chunk.FilePath, chunk.ID, chunk.Text)
		if !ok {
			return nil
		}
		applyAnnotation(chunk, patterns.ChunkAnnotation{
			BusinessDomain:      f.BusinessPurpose,
			FrameworkPattern:    f.Kind,
			MigrationComplexity: f.MigrationComplexity,
		})
		return []patterns.Finding{f}

	case strings.HasSuffix(lowerPath, "struts-config.xml") && chunk.Kind == ChunkKindXMLBlock:
		actions := patterns.ParseStrutsConfigActions(chunk.Text)
		findings := make([]patterns.Finding, 0, len(actions))
		for _, a := range actions {
			findings = append(findings, a.ToFinding(chunk.FilePath, chunk.ID))
		}
		if len(findings) > 0 {
			applyAnnotation(chunk, patterns.ChunkAnnotation{
				FrameworkPattern:    "StrutsAction",
				MigrationComplexity: findings[0].MigrationComplexity,
			})
		}
		return findings

	case opts.parseMaven && chunk.Language == "maven-pom":
		artifact, err := patterns.ParseMavenPOM(chunk.Text)
		if err != nil {
			return nil
		}
		f := artifact.ToFinding(chunk.FilePath, chunk.ID)
		applyAnnotation(chunk, patterns.ChunkAnnotation{
			FrameworkPattern:    f.Kind,
			MigrationComplexity: f.MigrationComplexity,
		})
		return []patterns.Finding{f}

	case opts.parseCORBA && chunk.Language == "corba-idl" && chunk.Kind == ChunkKindClass:
		name, ops := patterns.ParseIDLInterface(chunk.Name, chunk.Text)
		f := patterns.ToCORBAFinding(chunk.FilePath, chunk.ID, name, ops)
		applyAnnotation(chunk, patterns.ChunkAnnotation{
			FrameworkPattern:    f.Kind,
			MigrationComplexity: f.MigrationComplexity,
		})
		return []patterns.Finding{f}

	case chunk.Language == "java" && chunk.Kind == ChunkKindClass:
		f, ok := patterns.AnalyzeJavaClass(chunk.FilePath, chunk.ID, chunk.Name, chunk.Text)
		if !ok {
			return nil
		}
		applyAnnotation(chunk, patterns.ChunkAnnotation{
			BusinessDomain:      f.BusinessPurpose,
			FrameworkPattern:    f.Kind,
			MigrationComplexity: f.MigrationComplexity,
		})
		return []patterns.Finding{f}

	case opts.parseCORBA && chunk.Language == "java" && (chunk.Kind == ChunkKindMethod || chunk.Kind == ChunkKindFunction):
		f, ok := patterns.AnalyzeJavaMethod(chunk.FilePath, chunk.ID, chunk.Name, chunk.Text)
		if !ok {
			return nil
		}
		applyAnnotation(chunk, patterns.ChunkAnnotation{
			BusinessDomain:      f.BusinessPurpose,
			FrameworkPattern:    f.Kind,
			MigrationComplexity: f.MigrationComplexity,
		})
		return []patterns.Finding{f}
	}
	return nil
}

func applyAnnotation(chunk *CodeChunk, ann patterns.ChunkAnnotation) {
	if ann.BusinessDomain != "" {
		chunk.BusinessDomain = ann.BusinessDomain
	}
	if ann.FrameworkPattern != "" {
		chunk.FrameworkPattern = ann.FrameworkPattern
	}
	if ann.MigrationComplexity != "" {
		chunk.MigrationComplexity = MigrationComplexity(ann.MigrationComplexity)
	}
}

// store is the storing stage (spec §4.7, §4.8: 85-95%). It writes the
// Repository/File/CodeChunk/Pattern nodes and their relationships to the
// graph store and upserts every chunk's vector, retrying the whole stage
// with exponential backoff on a store-write error per spec §7 before
// declaring it stage-fatal.
func (o *Orchestrator) store(ctx context.Context, repositoryName string, source RepoSource, loadResult *LoadResult, chunks []CodeChunk, findings []patterns.Finding) (int, error) {
	var patternsFound int
	attempt := func() error {
		n, err := o.storeOnce(ctx, repositoryName, source, loadResult, chunks, findings)
		patternsFound = n
		return err
	}

	err := withBackoff(ctx, o.cfg.Retry, attempt)
	return patternsFound, err
}

func (o *Orchestrator) storeOnce(ctx context.Context, repositoryName string, source RepoSource, loadResult *LoadResult, chunks []CodeChunk, findings []patterns.Finding) (int, error) {
	now := time.Now()
	if err := o.graphStore.UpsertRepository(ctx, storage.RepositoryNode{
		Name:         repositoryName,
		Origin:       source.Value,
		Branch:       "",
		CreatedAt:    now,
		LastIngested: now,
	}); err != nil {
		return 0, ingerrors.NewGraphStoreWriteErrorKind("upsert repository failed", err.Error(), err)
	}

	filesSeen := make(map[string]bool)
	for _, f := range loadResult.Files {
		if filesSeen[f.Path] {
			continue
		}
		filesSeen[f.Path] = true
		if err := o.graphStore.UpsertFile(ctx, storage.FileNode{
			RepositoryName: repositoryName,
			Path:           f.Path,
			Language:       f.Language,
			SizeBytes:      f.Size,
		}); err != nil {
			return 0, ingerrors.NewGraphStoreWriteErrorKind("upsert file failed", err.Error(), err)
		}
		if err := o.graphStore.Link(ctx, "repo:"+repositoryName, storage.RelContains, "file:"+repositoryName+"/"+f.Path, nil); err != nil {
			return 0, ingerrors.NewGraphStoreWriteErrorKind("link repository to file failed", err.Error(), err)
		}
	}

	if err := o.vectorStore.EnsureCollection(ctx, collectionName(repositoryName), o.cfg.Ingestion.EmbeddingDim); err != nil {
		return 0, ingerrors.NewVectorStoreWriteErrorKind("ensure vector collection failed", err.Error(), err)
	}

	items := make([]storage.VectorItem, 0, len(chunks))
	for _, c := range chunks {
		if err := o.graphStore.UpsertChunk(ctx, storage.ChunkNode{
			ID:                  c.ID,
			RepositoryName:      c.RepositoryName,
			FilePath:            c.FilePath,
			Kind:                string(c.Kind),
			Name:                c.Name,
			StartLine:           c.StartLine,
			EndLine:             c.EndLine,
			BusinessDomain:      c.BusinessDomain,
			FrameworkPattern:    c.FrameworkPattern,
			MigrationComplexity: string(c.MigrationComplexity),
			ImportanceScore:     c.ImportanceScore,
		}); err != nil {
			return 0, ingerrors.NewGraphStoreWriteErrorKind("upsert chunk failed", err.Error(), err)
		}
		if err := o.graphStore.Link(ctx, "file:"+repositoryName+"/"+c.FilePath, storage.RelHasChunk, c.ID, nil); err != nil {
			return 0, ingerrors.NewGraphStoreWriteErrorKind("link file to chunk failed", err.Error(), err)
		}

		items = append(items, storage.VectorItem{
			ID:     c.ID,
			Vector: c.Embedding,
			Text:   c.Text,
			Metadata: map[string]string{
				"repository_name":     c.RepositoryName,
				"file_path":           c.FilePath,
				"language":            c.Language,
				"kind":                string(c.Kind),
				"business_domain":     c.BusinessDomain,
				"framework_pattern":   c.FrameworkPattern,
				"migration_complexity": string(c.MigrationComplexity),
			},
		})
	}
	if err := o.vectorStore.Upsert(ctx, collectionName(repositoryName), items); err != nil {
		return 0, ingerrors.NewVectorStoreWriteErrorKind("upsert vectors failed", err.Error(), err)
	}

	for _, f := range findings {
		if err := o.writeFinding(ctx, repositoryName, f); err != nil {
			return 0, ingerrors.NewGraphStoreWriteErrorKind("write pattern finding failed", err.Error(), err)
		}
	}

	return len(findings), nil
}

// writeFinding persists one business-pattern Finding (C4) as a
// storage.PatternNode plus the relationship(s) spec §4.7 assigns its kind:
// StrutsAction -> CONTAINS_STRUTS_ACTION from its source chunk and
// FORWARDS_TO for each forward target; BusinessRule/JSPComponent ->
// IMPLEMENTS_BUSINESS_RULE from their source chunk; CORBAInterface ->
// CALLS_SERVICE from their source chunk; MavenArtifact -> DEPENDS_ON from
// the repository.
func (o *Orchestrator) writeFinding(ctx context.Context, repositoryName string, f patterns.Finding) error {
	if err := o.graphStore.UpsertPattern(ctx, storage.PatternNode{
		Kind:                f.Kind,
		Identity:            f.Identity,
		BusinessPurpose:     f.BusinessPurpose,
		MigrationComplexity: f.MigrationComplexity,
		SourceFilePath:      f.SourceFilePath,
		SourceChunkID:       f.SourceChunkID,
	}); err != nil {
		return err
	}

	patternID := f.Kind + ":" + f.Identity
	props := make(map[string]any, len(f.Props))
	for k, v := range f.Props {
		props[k] = v
	}

	switch f.Kind {
	case "StrutsAction":
		if f.SourceChunkID != "" {
			if err := o.graphStore.Link(ctx, f.SourceChunkID, storage.RelContainsStrutsAction, patternID, props); err != nil {
				return err
			}
		}
		for name, path := range f.ForwardTargets {
			if err := o.graphStore.Link(ctx, patternID, storage.RelForwardsTo, path, map[string]any{"forward_name": name}); err != nil {
				return err
			}
		}
	case "CORBAInterface":
		if f.SourceChunkID != "" {
			if err := o.graphStore.Link(ctx, f.SourceChunkID, storage.RelCallsService, patternID, props); err != nil {
				return err
			}
		}
	case "MavenArtifact":
		if err := o.graphStore.Link(ctx, "repo:"+repositoryName, storage.RelDependsOn, patternID, nil); err != nil {
			return err
		}
	case "BusinessRule", "JSPComponent":
		if f.SourceChunkID != "" {
			if err := o.graphStore.Link(ctx, f.SourceChunkID, storage.RelImplementsBusinessRule, patternID, props); err != nil {
				return err
			}
		}
	}
	return nil
}

// withBackoff retries fn with exponential backoff per cfg, up to
// cfg.MaxRetries attempts, stopping early on context cancellation (spec §4.8
// failure policy: "retries the stage with exponential backoff up to a
// bound, then marks the task failed").
func withBackoff(ctx context.Context, cfg config.RetryConfig, fn func() error) error {
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return lastErr
}

// toErrorEntry converts an internal/errors.StageError to the Status Bus's
// own ErrorEntry shape; the two packages intentionally don't share a type
// so the bus wire format doesn't leak the ingestion error taxonomy's Kind type.
func toErrorEntry(se ingerrors.StageError) statusbus.ErrorEntry {
	return statusbus.ErrorEntry{
		Stage:       se.Stage,
		Kind:        string(se.Kind),
		Message:     se.Message,
		FilePath:    se.FilePath,
		Recoverable: se.Recoverable,
	}
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// taskStatusBuilder accumulates the in-progress TaskStatus record and
// publishes it to the Status Bus at each stage transition, keeping the
// monotonicity bookkeeping (stage_history) in one place.
type taskStatusBuilder struct {
	bus      statusbus.Bus
	ts       statusbus.TaskStatus
	findings []patterns.Finding
}

func (b *taskStatusBuilder) publish(ctx context.Context, stage string, progress int) {
	if b.ts.CurrentStage != stage {
		now := time.Now()
		if len(b.ts.StageHistory) > 0 {
			b.ts.StageHistory[len(b.ts.StageHistory)-1].CompletedAt = &now
		}
		b.ts.StageHistory = append(b.ts.StageHistory, statusbus.StageHistoryEntry{Stage: stage, StartedAt: now})
	}
	b.ts.CurrentStage = stage
	b.ts.OverallProgress = progress
	if b.bus == nil {
		return
	}
	if err := b.bus.Publish(ctx, b.ts); err != nil {
		slog.Default().Warn("orchestrator.statusbus.publish_failed", "task_id", b.ts.TaskID, "stage", stage, "err", err)
	}
}

// cancelled finalizes a task as failed/cancelled (spec §7 Cancelled:
// "terminal failed with cause cancelled; no cleanup on failure to aid
// diagnosis").
func (o *Orchestrator) cancelled(ctx context.Context, status *taskStatusBuilder, stage string, start time.Time) (*IngestResult, error) {
	kerr := ingerrors.NewCancelledErrorKind("ingestion cancelled during " + stage)
	status.ts.Errors = append(status.ts.Errors, toErrorEntry(ingerrors.NewStageError(stage, kerr.Kind, kerr.Error(), "")))
	status.ts.Status = statusbus.StatusFailed
	now := time.Now()
	status.ts.CompletedAt = &now
	// Publish with a background context: the task's own ctx is already
	// cancelled, but the terminal record still must reach the bus.
	status.publish(context.Background(), statusbus.StageFailed, status.ts.OverallProgress)
	return &IngestResult{
		TaskID:         status.ts.TaskID,
		RepositoryName: status.ts.RepositoryName,
		Status:         "failed",
		Warnings:       status.ts.Warnings,
		TotalDuration:  time.Since(start),
	}, kerr
}

// fatal finalizes a task as failed due to a stage-fatal KindedError (spec
// §7: SourceUnavailable, exhausted-retry VectorStoreWriteError /
// GraphStoreWriteError, etc).
func (o *Orchestrator) fatal(ctx context.Context, status *taskStatusBuilder, stage string, start time.Time, kerr *ingerrors.KindedError) (*IngestResult, error) {
	status.ts.Errors = append(status.ts.Errors, toErrorEntry(ingerrors.NewStageError(stage, kerr.Kind, kerr.Error(), "")))
	status.ts.Status = statusbus.StatusFailed
	now := time.Now()
	status.ts.CompletedAt = &now
	status.publish(ctx, statusbus.StageFailed, status.ts.OverallProgress)
	return &IngestResult{
		TaskID:         status.ts.TaskID,
		RepositoryName: status.ts.RepositoryName,
		Status:         "failed",
		Warnings:       status.ts.Warnings,
		TotalDuration:  time.Since(start),
	}, kerr
}
