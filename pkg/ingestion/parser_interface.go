// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"log/slog"
	"sync"
	"sync/atomic"

	sitter "github.com/smacker/go-tree-sitter"
)

// ChunkKind is the semantic category of a CodeChunk (spec §3.1).
type ChunkKind string

const (
	ChunkKindFunction     ChunkKind = "function"
	ChunkKindClass        ChunkKind = "class"
	ChunkKindMethod       ChunkKind = "method"
	ChunkKindModule       ChunkKind = "module"
	ChunkKindJSPScriptlet ChunkKind = "jsp_scriptlet"
	ChunkKindXMLBlock     ChunkKind = "xml_block"
	ChunkKindRawText      ChunkKind = "raw_text"
)

// MigrationComplexity is the ordinal attached to framework-pattern findings
// (spec §4.4, GLOSSARY).
type MigrationComplexity string

const (
	ComplexityLow    MigrationComplexity = "low"
	ComplexityMedium MigrationComplexity = "medium"
	ComplexityHigh   MigrationComplexity = "high"
)

// CodeChunk is the language-agnostic unit the parser emits (spec §3.1, §4.3).
type CodeChunk struct {
	ID             string
	RepositoryName string
	FilePath       string
	Language       string
	Kind           ChunkKind
	Name           string
	Text           string
	StartLine      int
	EndLine        int
	StartCol       int
	EndCol         int

	ImportanceScore float64

	// Set by the business-pattern extractor (C4), never by the structural parser.
	BusinessDomain      string
	FrameworkPattern    string
	MigrationComplexity MigrationComplexity

	// Set by the embedding service (C5). EmbeddingFailed marks a chunk whose
	// Embedding is a zero vector substituted after retries were exhausted
	// (spec §4.5, §7), not a genuine embedding.
	Embedding       []float32
	EmbeddingFailed bool
}

// CallEdge is an unresolved or resolved call-graph edge discovered while
// walking a function/method body. CalleePackage is empty for same-file
// calls and set when the parser could infer the imported package of a
// qualified call (e.g. `pkg.Func()`), mirroring the teacher's local vs.
// cross-package call resolution split.
type CallEdge struct {
	CallerChunkID string
	CallerName    string
	CalleeName    string
	CalleePackage string
	FilePath      string
	Line          int
}

// ParseResult is what CodeParser.ParseFile returns for one source file.
type ParseResult struct {
	FilePath    string
	Language    string
	PackageName string
	Chunks      []CodeChunk
	Calls       []CallEdge
	Imports     []string
	Warnings    []string
}

// CodeParser defines the interface for code parsing implementations,
// polymorphic over a per-language dispatch table (spec §4.3, §9
// "polymorphism over capability sets").
type CodeParser interface {
	// ParseFile parses a source file and extracts CodeChunks, call edges,
	// and imports.
	ParseFile(fileInfo FileInfo, repositoryName string) (*ParseResult, error)

	// SetMaxCodeTextSize sets the maximum size for a chunk's Text (in bytes).
	SetMaxCodeTextSize(size int64)

	// GetTruncatedCount returns the number of chunk texts that were truncated.
	GetTruncatedCount() int

	// ResetTruncatedCount resets the truncation counter.
	ResetTruncatedCount()
}

var _ CodeParser = (*TreeSitterParser)(nil)
var _ CodeParser = (*Parser)(nil)

// ParserMode determines which parser implementation to use.
type ParserMode string

const (
	// ParserModeTreeSitter uses Tree-sitter for accurate AST-based parsing.
	ParserModeTreeSitter ParserMode = "treesitter"

	// ParserModeSimplified uses raw-text windowing (fallback). Does not
	// require a tree-sitter grammar for the language in question.
	ParserModeSimplified ParserMode = "simplified"

	// ParserModeAuto uses Tree-sitter for languages with a registered
	// grammar, falling back to raw-text windowing otherwise.
	ParserModeAuto ParserMode = "auto"
)

// DefaultParserMode prefers Tree-sitter when available.
const DefaultParserMode = ParserModeAuto

// TreeSitterParser dispatches to a per-language sitter.Parser and falls
// back to raw-text windowing (spec §4.3) when a file's language has no
// registered grammar or when tree-sitter itself fails to produce a usable
// tree.
//
// sitter.Parser values are not safe for concurrent use; callers parsing
// files in parallel must not share a TreeSitterParser across goroutines
// without the mutex below, which serializes all Parse calls.
type TreeSitterParser struct {
	logger *slog.Logger

	mu      sync.Mutex
	parsers map[string]*sitter.Parser

	maxCodeTextSize int64
	truncatedCount  int64
}

// NewTreeSitterParser creates a TreeSitterParser with grammars registered
// for every language this system treats as first-class (spec §4.3: Python,
// Java, JavaScript/TypeScript, Go, Rust, C/C++). JSP, XML and CORBA IDL
// have no grammar and are handled by hand-written scanners in ParseFile.
func NewTreeSitterParser(logger *slog.Logger) *TreeSitterParser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &TreeSitterParser{
		logger:          logger,
		parsers:         make(map[string]*sitter.Parser),
		maxCodeTextSize: 102400,
	}
	p.registerGrammars()
	return p
}

// SetMaxCodeTextSize implements CodeParser.
func (p *TreeSitterParser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

// GetTruncatedCount implements CodeParser.
func (p *TreeSitterParser) GetTruncatedCount() int {
	return int(atomic.LoadInt64(&p.truncatedCount))
}

// ResetTruncatedCount implements CodeParser.
func (p *TreeSitterParser) ResetTruncatedCount() {
	atomic.StoreInt64(&p.truncatedCount, 0)
}

func (p *TreeSitterParser) truncate(text string) (string, bool) {
	if int64(len(text)) <= p.maxCodeTextSize {
		return text, false
	}
	atomic.AddInt64(&p.truncatedCount, 1)
	return text[:p.maxCodeTextSize], true
}

// Parser is the raw-text windowing fallback (spec §4.3: "When AST parsing
// fails, the parser falls back to raw-text windowing at a configured line
// count with overlap"). It never fails, only its caller (ParseFile) can
// return an I/O error.
type Parser struct {
	logger *slog.Logger

	maxCodeTextSize int64
	truncatedCount  int64

	minLines     int
	maxLines     int
	overlapLines int
}

// NewParser creates the simplified fallback parser with the spec's default
// chunk-size window (chunk_min_lines/chunk_max_lines/chunk_overlap_lines,
// spec §6.4), overridable via SetWindow.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:          logger,
		maxCodeTextSize: 102400,
		minLines:        5,
		maxLines:        400,
		overlapLines:    10,
	}
}

// SetWindow configures the raw-text windowing parameters.
func (p *Parser) SetWindow(minLines, maxLines, overlapLines int) {
	if minLines > 0 {
		p.minLines = minLines
	}
	if maxLines > 0 {
		p.maxLines = maxLines
	}
	if overlapLines >= 0 {
		p.overlapLines = overlapLines
	}
}

// SetMaxCodeTextSize implements CodeParser.
func (p *Parser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

// GetTruncatedCount implements CodeParser.
func (p *Parser) GetTruncatedCount() int {
	return int(atomic.LoadInt64(&p.truncatedCount))
}

// ResetTruncatedCount implements CodeParser.
func (p *Parser) ResetTruncatedCount() {
	atomic.StoreInt64(&p.truncatedCount, 0)
}
