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
	"regexp"
	"strings"
)

// idlInterfaceRe finds `interface Foo { ... }` blocks. CORBA IDL has no
// Tree-sitter grammar in this pack (spec §4.3 still treats it as
// first-class), so interfaces are located with a brace-matching scan
// seeded by this header pattern rather than a full grammar.
var idlInterfaceRe = regexp.MustCompile(`(?m)^\s*interface\s+(\w+)`)

// parseIDL emits one chunk per top-level `interface` block, and one
// raw_text chunk for each stretch of IDL content outside interface declarations
// (module declarations, typedefs, #include directives). Operation-
// signature extraction within an interface happens in the business-pattern
// extractor (C4), which re-parses each interface chunk's text.
func (p *TreeSitterParser) parseIDL(fileInfo FileInfo, repositoryName string, content []byte) *ParseResult {
	text := string(content)
	lineOf := newLineIndex(text)

	var chunks []CodeChunk
	matches := idlInterfaceRe.FindAllStringSubmatchIndex(text, -1)

	cursor := 0
	for _, m := range matches {
		headerStart := m[0]
		nameStart, nameEnd := m[2], m[3]
		name := text[nameStart:nameEnd]

		braceOpen := strings.IndexByte(text[headerStart:], '{')
		if braceOpen < 0 {
			continue
		}
		braceOpen += headerStart

		end := matchingBrace(text, braceOpen)
		if end < 0 {
			end = len(text)
		}

		if headerStart > cursor {
			emitIDLRawText(&chunks, repositoryName, fileInfo.Path, text[cursor:headerStart], cursor, lineOf)
		}

		segment := text[headerStart : end+1]
		startLine := lineOf.lineAt(headerStart)
		endLine := lineOf.lineAt(end)
		chunks = append(chunks, CodeChunk{
			ID:             GenerateChunkID(repositoryName, fileInfo.Path, startLine, endLine, string(ChunkKindClass)),
			RepositoryName: repositoryName,
			FilePath:       fileInfo.Path,
			Language:       "corba-idl",
			Kind:           ChunkKindClass,
			Name:           name,
			Text:           segment,
			StartLine:      startLine,
			EndLine:        endLine,
		})
		cursor = end + 1
	}

	if cursor < len(text) {
		emitIDLRawText(&chunks, repositoryName, fileInfo.Path, text[cursor:], cursor, lineOf)
	}

	if len(chunks) == 0 {
		lines := strings.Split(text, "\n")
		chunks = windowChunks(repositoryName, fileInfo.Path, "corba-idl", ChunkKindRawText, lines, 400, 10)
	}

	for i := range chunks {
		if truncated, ok := p.truncate(chunks[i].Text); ok {
			chunks[i].Text = truncated
		}
	}

	return &ParseResult{
		FilePath: fileInfo.Path,
		Language: "corba-idl",
		Chunks:   chunks,
	}
}

func emitIDLRawText(chunks *[]CodeChunk, repositoryName, filePath, segment string, offset int, lineOf *lineIndex) {
	if strings.TrimSpace(segment) == "" {
		return
	}
	startLine := lineOf.lineAt(offset)
	endLine := lineOf.lineAt(offset + len(segment))
	*chunks = append(*chunks, CodeChunk{
		ID:             GenerateChunkID(repositoryName, filePath, startLine, endLine, string(ChunkKindRawText)),
		RepositoryName: repositoryName,
		FilePath:       filePath,
		Language:       "corba-idl",
		Kind:           ChunkKindRawText,
		Text:           segment,
		StartLine:      startLine,
		EndLine:        endLine,
	})
}

// matchingBrace returns the index of the brace matching the '{' at open,
// or -1 if unbalanced.
func matchingBrace(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
