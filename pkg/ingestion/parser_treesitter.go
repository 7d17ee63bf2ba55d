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
	"context"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// semanticNodeTypes maps a language tag (as produced by
// detectLanguageFromPath) to the set of Tree-sitter node-type strings that
// should become their own CodeChunk. One dispatch table per language
// instead of one parser implementation per language: the node types are
// the only thing that varies, the walk/extract logic is shared.
var semanticNodeTypes = map[string]map[string]bool{
	"go": {
		"function_declaration": true,
		"method_declaration":   true,
		"type_declaration":     true,
	},
	"java": {
		"class_declaration":       true,
		"interface_declaration":   true,
		"enum_declaration":        true,
		"method_declaration":      true,
		"constructor_declaration": true,
	},
	"javascript": {
		"function_declaration": true,
		"class_declaration":    true,
		"method_definition":    true,
		"arrow_function":       true,
		"function_expression":  true,
	},
	"typescript": {
		"function_declaration":   true,
		"class_declaration":      true,
		"interface_declaration":  true,
		"type_alias_declaration": true,
		"method_definition":      true,
		"arrow_function":         true,
	},
	"python": {
		"function_definition": true,
		"class_definition":    true,
	},
	"rust": {
		"function_item": true,
		"struct_item":   true,
		"impl_item":     true,
		"trait_item":    true,
		"enum_item":     true,
	},
	"c": {
		"function_definition": true,
		"struct_specifier":    true,
	},
	"cpp": {
		"function_definition": true,
		"class_specifier":     true,
		"struct_specifier":    true,
	},
}

// kindForNodeType maps a Tree-sitter node type to the ChunkKind it
// represents. Unrecognized node types default to ChunkKindFunction, since
// every table above only lists function-, method-, and type-like nodes.
var kindForNodeType = map[string]ChunkKind{
	"class_declaration":      ChunkKindClass,
	"interface_declaration":  ChunkKindClass,
	"enum_declaration":       ChunkKindClass,
	"class_definition":       ChunkKindClass,
	"class_specifier":        ChunkKindClass,
	"struct_specifier":       ChunkKindClass,
	"struct_item":            ChunkKindClass,
	"impl_item":              ChunkKindClass,
	"trait_item":             ChunkKindClass,
	"enum_item":              ChunkKindClass,
	"type_declaration":       ChunkKindClass,
	"type_alias_declaration": ChunkKindClass,
	"method_declaration":     ChunkKindMethod,
	"method_definition":      ChunkKindMethod,
	"constructor_declaration": ChunkKindMethod,
}

// registerGrammars registers every Tree-sitter grammar this system treats
// as first-class (spec §4.3). Go is the most heavily exercised grammar;
// the rest share the generic dispatch-table walker below.
func (p *TreeSitterParser) registerGrammars() {
	register := func(lang string, grammar *sitter.Language) {
		sp := sitter.NewParser()
		sp.SetLanguage(grammar)
		p.parsers[lang] = sp
	}

	register("go", golang.GetLanguage())
	register("java", java.GetLanguage())
	register("javascript", javascript.GetLanguage())
	register("typescript", typescript.GetLanguage())
	register("python", python.GetLanguage())
	register("rust", rust.GetLanguage())
	register("c", c.GetLanguage())
	register("cpp", cpp.GetLanguage())
}

// ParseFile implements CodeParser. It dispatches to a registered grammar
// when one exists for fileInfo.Language, to the JSP/XML/IDL handlers for
// those languages, and otherwise falls back to raw-text windowing.
func (p *TreeSitterParser) ParseFile(fileInfo FileInfo, repositoryName string) (*ParseResult, error) {
	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return &ParseResult{FilePath: fileInfo.Path, Language: fileInfo.Language}, nil
	}

	switch fileInfo.Language {
	case "jsp":
		return p.parseJSP(fileInfo, repositoryName, content), nil
	case "xml", "struts-config", "maven-pom":
		return p.parseXML(fileInfo, repositoryName, content), nil
	case "corba-idl":
		return p.parseIDL(fileInfo, repositoryName, content), nil
	}

	p.mu.Lock()
	sp, ok := p.parsers[fileInfo.Language]
	if !ok {
		p.mu.Unlock()
		return p.fallbackWindow(fileInfo, repositoryName, content, "no_grammar_registered"), nil
	}
	tree, err := sp.ParseCtx(context.Background(), nil, content)
	p.mu.Unlock()
	if err != nil || tree == nil {
		p.logger.Warn("parser.treesitter.parse_failed", "path", fileInfo.Path, "language", fileInfo.Language, "err", err)
		return p.fallbackWindow(fileInfo, repositoryName, content, "parse_failed"), nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return p.fallbackWindow(fileInfo, repositoryName, content, "empty_tree"), nil
	}

	nodeTypes := semanticNodeTypes[fileInfo.Language]
	lines := strings.Split(string(content), "\n")

	var chunks []CodeChunk
	var calls []CallEdge
	walkSemanticNodes(root, nodeTypes, func(node *sitter.Node) {
		chunk := nodeToChunk(node, content, lines, repositoryName, fileInfo.Path, fileInfo.Language)
		if text, truncated := p.truncate(chunk.Text); truncated {
			chunk.Text = text
		}
		chunks = append(chunks, chunk)
		calls = append(calls, extractCallEdges(node, content, chunk.ID, chunk.Name, fileInfo.Path)...)
	})

	if len(chunks) == 0 {
		// No semantic nodes found (e.g. a file of only top-level statements);
		// window the whole file into module chunks of up to 400 lines rather
		// than emitting nothing.
		chunks = windowChunks(repositoryName, fileInfo.Path, fileInfo.Language, ChunkKindModule, lines, 400, 0)
	}

	chunks = splitOversizedChunks(repositoryName, chunks, 8000)
	chunks = mergeUndersizedChunks(repositoryName, chunks, 40)

	return &ParseResult{
		FilePath: fileInfo.Path,
		Language: fileInfo.Language,
		Chunks:   chunks,
		Calls:    calls,
	}, nil
}

// fallbackWindow implements the "AST parsing fails" edge policy (spec
// §4.3): raw-text windowing, chunk kind raw_text, with a warning recorded.
func (p *TreeSitterParser) fallbackWindow(fileInfo FileInfo, repositoryName string, content []byte, reason string) *ParseResult {
	lines := strings.Split(string(content), "\n")
	chunks := windowChunks(repositoryName, fileInfo.Path, fileInfo.Language, ChunkKindRawText, lines, 400, 10)
	return &ParseResult{
		FilePath: fileInfo.Path,
		Language: fileInfo.Language,
		Chunks:   chunks,
		Warnings: []string{"raw_text_fallback: " + reason},
	}
}

// walkSemanticNodes recursively walks the AST and invokes callback for every node
// whose type is in nodeTypes. It still recurses into matched nodes'
// children so nested functions/classes are also found (spec §4.4
// hierarchical coverage).
func walkSemanticNodes(node *sitter.Node, nodeTypes map[string]bool, callback func(*sitter.Node)) {
	if node == nil {
		return
	}
	if nodeTypes[node.Type()] {
		callback(node)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkSemanticNodes(node.Child(i), nodeTypes, callback)
	}
}

// nodeToChunk converts a matched AST node into a CodeChunk.
func nodeToChunk(node *sitter.Node, content []byte, lines []string, repositoryName, filePath, language string) CodeChunk {
	startPoint := node.StartPoint()
	endPoint := node.EndPoint()
	startLine := int(startPoint.Row) + 1
	endLine := int(endPoint.Row) + 1

	kind, ok := kindForNodeType[node.Type()]
	if !ok {
		kind = ChunkKindFunction
	}

	return CodeChunk{
		ID:             GenerateChunkID(repositoryName, filePath, startLine, endLine, string(kind)),
		RepositoryName: repositoryName,
		FilePath:       filePath,
		Language:       language,
		Kind:           kind,
		Name:           nodeName(node, content),
		Text:           node.Content(content),
		StartLine:      startLine,
		EndLine:        endLine,
		StartCol:       int(startPoint.Column),
		EndCol:         int(endPoint.Column),
	}
}

// nodeName extracts the declared name of a function/class/method node by
// looking for its first identifier-like child. Tree-sitter grammars differ
// on the exact field name for "the identifier" (name, identifier,
// property_identifier, type_identifier) so this checks the common set
// rather than a single field accessor per grammar.
func nodeName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier", "field_identifier", "type_identifier", "property_identifier", "name":
			return child.Content(content)
		}
	}
	return ""
}

// extractCallEdges walks a node's subtree for call-expression-shaped nodes
// and records an edge per call found. Node type names for "a call" vary by
// grammar (call_expression, call) so both are checked; the callee name is
// read the same way nodeName reads a declaration name.
func extractCallEdges(node *sitter.Node, content []byte, callerChunkID, callerName, filePath string) []CallEdge {
	var edges []CallEdge
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "call_expression", "call", "method_invocation":
			if callee := n.Child(0); callee != nil {
				name := callee.Content(content)
				pkg := ""
				if idx := strings.LastIndex(name, "."); idx >= 0 {
					pkg = name[:idx]
					name = name[idx+1:]
				}
				edges = append(edges, CallEdge{
					CallerChunkID: callerChunkID,
					CallerName:    callerName,
					CalleeName:    name,
					CalleePackage: pkg,
					FilePath:      filePath,
					Line:          int(n.StartPoint().Row) + 1,
				})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i))
	}
	return edges
}
